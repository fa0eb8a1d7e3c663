package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/player-oidc/server"
	"github.com/giantswarm/player-oidc/storage"
)

func newClientCmd() *cobra.Command {
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Manage OAuth clients",
		Long: `Manage the OAuth clients of a player.

Every client is owned by the player named with --owner. Commands on a
client owned by someone else report it as not found.`,
	}
	clientCmd.PersistentFlags().String("owner", "", "Name of the player owning the client (required)")
	_ = clientCmd.MarkPersistentFlagRequired("owner")

	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new client",
		Long: `Register a new client and print its id.

A confidential client also gets a secret. It is printed once and cannot be
recovered; use rotate-secret to replace a lost secret.`,
		Args: cobra.NoArgs,
		RunE: clientRegisterCmdFunc,
	}
	registerCmd.Flags().String("name", "", "Display name shown on the login page")
	registerCmd.Flags().String("type", storage.ClientTypeConfidential, "Client type: confidential or public")
	registerCmd.Flags().String("redirect-pattern", "", "Allowed redirect URI, or a regular expression prefixed with regex:")
	_ = registerCmd.MarkFlagRequired("name")
	_ = registerCmd.MarkFlagRequired("redirect-pattern")

	updateCmd := &cobra.Command{
		Use:   "update [client-id]",
		Short: "Change the name or redirect pattern of a client",
		Args:  cobra.ExactArgs(1),
		RunE:  clientUpdateCmdFunc,
	}
	updateCmd.Flags().String("name", "", "New display name")
	updateCmd.Flags().String("redirect-pattern", "", "New redirect URI pattern")

	clientCmd.AddCommand(
		registerCmd,
		&cobra.Command{
			Use:   "list",
			Short: "List the clients of a player",
			Args:  cobra.NoArgs,
			RunE:  clientListCmdFunc,
		},
		updateCmd,
		&cobra.Command{
			Use:   "rotate-secret [client-id]",
			Short: "Replace the secret of a confidential client",
			Args:  cobra.ExactArgs(1),
			RunE:  clientRotateSecretCmdFunc,
		},
		&cobra.Command{
			Use:   "delete [client-id]",
			Short: "Delete a client",
			Args:  cobra.ExactArgs(1),
			RunE:  clientDeleteCmdFunc,
		},
	)

	return clientCmd
}

// withOwner opens the runtime, resolves --owner to an account id and runs fn
func withOwner(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime, ownerID string) error) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	if err := rt.requireDurable(); err != nil {
		return err
	}

	ownerName, err := cmd.Flags().GetString("owner")
	if err != nil {
		return err
	}
	owner, err := rt.directory.LookupByName(ctx, ownerName)
	if err != nil {
		return fmt.Errorf("player %q: %w", ownerName, err)
	}

	return fn(ctx, rt, owner.ID)
}

func clientRegisterCmdFunc(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("name")
	clientType, _ := cmd.Flags().GetString("type")
	pattern, _ := cmd.Flags().GetString("redirect-pattern")

	return withOwner(cmd, func(ctx context.Context, rt *runtime, ownerID string) error {
		client, secret, err := rt.server.RegisterClient(ctx, server.RegisterClientRequest{
			ClientName:         name,
			ClientType:         clientType,
			RedirectURIPattern: pattern,
			OwnerAccountID:     ownerID,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "client_id:     %s\n", client.ClientID)
		if secret != "" {
			fmt.Fprintf(out, "client_secret: %s\n", secret)
		}
		return nil
	})
}

func clientListCmdFunc(cmd *cobra.Command, _ []string) error {
	return withOwner(cmd, func(ctx context.Context, rt *runtime, ownerID string) error {
		clients, err := rt.server.ListClientsByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		return printClients(cmd.OutOrStdout(), clients)
	})
}

func printClients(w io.Writer, clients []*storage.ClientRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLIENT ID\tNAME\tTYPE\tREDIRECT PATTERN\tCREATED")
	for _, c := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.ClientID, c.ClientName, c.ClientType, c.RedirectURIPattern, c.CreatedAt.UTC().Format(time.RFC3339))
	}
	return tw.Flush()
}

func clientUpdateCmdFunc(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	pattern, _ := cmd.Flags().GetString("redirect-pattern")
	if name == "" && pattern == "" {
		return fmt.Errorf("nothing to update: set --name or --redirect-pattern")
	}

	return withOwner(cmd, func(ctx context.Context, rt *runtime, ownerID string) error {
		current, err := rt.server.FindClient(ctx, args[0])
		if err != nil {
			return err
		}
		if name == "" {
			name = current.ClientName
		}
		if pattern == "" {
			pattern = current.RedirectURIPattern
		}

		client, err := rt.server.UpdateClient(ctx, ownerID, args[0], name, pattern)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", client.ClientID)
		return nil
	})
}

func clientRotateSecretCmdFunc(cmd *cobra.Command, args []string) error {
	return withOwner(cmd, func(ctx context.Context, rt *runtime, ownerID string) error {
		secret, err := rt.server.RotateClientSecret(ctx, ownerID, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "client_secret: %s\n", secret)
		return nil
	})
}

func clientDeleteCmdFunc(cmd *cobra.Command, args []string) error {
	return withOwner(cmd, func(ctx context.Context, rt *runtime, ownerID string) error {
		if err := rt.server.DeleteClient(ctx, ownerID, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
}
