// Package providers defines the boundary to the host application's identity
// data: the player directory (name to stable account id, online and
// registered status) and the password credential store used by the login
// step of the authorization endpoint.
//
// Authenticator composes the two into the single Identity the server needs.
// Implementations live in sub-packages: static (YAML file) and mock (tests).
package providers
