// Package testutil provides fixtures and helpers shared by the package tests:
// a controllable clock, random strings, PKCE pairs and client records.
package testutil
