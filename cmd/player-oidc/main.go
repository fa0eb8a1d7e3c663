// Package main is the entry point for the player-oidc authorization server.
package main

import (
	"os"

	"github.com/giantswarm/player-oidc/cmd/player-oidc/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
