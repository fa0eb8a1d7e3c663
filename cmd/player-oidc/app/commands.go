// Package app provides the commands of the player-oidc binary.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	oauth "github.com/giantswarm/player-oidc"
)

// version is set at build time with -ldflags "-X ...app.version=..."
var version = "dev"

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "player-oidc",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "OAuth2 and OpenID Connect provider for game server players",
		Long: `player-oidc lets players of a game server sign in to external applications.

It implements the authorization code grant with PKCE, issues signed access,
refresh and ID tokens, and keeps registered clients and revoked tokens in
SQLite or Redis. Configuration is read from PLAYER_OIDC_* environment
variables and optional .env files.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringSlice("env-file", nil,
		"Environment files to load before reading the configuration (default .env.local, .env)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newClientCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// loadConfig reads the configuration and builds the logger for a command
func loadConfig(cmd *cobra.Command) (*oauth.Config, *slog.Logger, error) {
	envFiles, err := cmd.Flags().GetStringSlice("env-file")
	if err != nil {
		return nil, nil, err
	}

	cfg, err := oauth.LoadConfig(envFiles...)
	if err != nil {
		return nil, nil, err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg *oauth.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
