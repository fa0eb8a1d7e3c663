// Package util provides small helpers shared across packages: log-safe
// truncation of sensitive strings and OAuth scope string handling.
package util
