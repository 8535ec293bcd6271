package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/erazemk/tovor/internal/auth"
	"github.com/erazemk/tovor/internal/store"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var bridge string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bridge API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer a.Close()

			secret, err := store.GetJWTSecret(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			token, claims, err := auth.GenerateToken(secret, bridge, ttl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "id: %s\nexpires: %s\n", claims.ID, claims.ExpiresAt.Time.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&bridge, "bridge", "default", "Name of the chat bridge using the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.TokenExpiry, "Token lifetime")
	cmd.AddCommand(newTokenRevokeCommand(ctx))
	return cmd
}

func newTokenRevokeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a bridge token by its id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer a.Close()

			// The revocation is kept until any token with this id must have
			// expired anyway.
			until := time.Now().Add(auth.TokenExpiry)
			if err := store.RevokeToken(cmd.Context(), a.db, args[0], until); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}
