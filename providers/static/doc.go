// Package static implements providers.Directory and
// providers.CredentialVerifier from a YAML accounts file. It suits small
// deployments and local development where the host has no directory API.
//
// File format:
//
//	accounts:
//	  - id: 0190a5b2-7c1e-7d3a-9f00-0a1b2c3d4e5f
//	    name: Steve
//	    nickname: steve_builds
//	    picture: https://example.com/steve.png
//	    registered: true
//	    password_hash: $2a$10$...   # bcrypt
package static
