package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/erazemk/tovor/internal/store"
)

func newInviteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invite",
		Short: "Create a one-time invite code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer a.Close()

			// Invites created from the command line have no chat creator.
			code, err := store.CreateInvite(cmd.Context(), a.db, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "/start %s\n", code)
			return nil
		},
	}
}

func newInvitesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "invites",
		Short: "List unused invite codes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer a.Close()

			invites, err := store.ListOpenInvites(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			if len(invites) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No open invites.")
				return nil
			}

			rows := make([][]string, 0, len(invites))
			for _, inv := range invites {
				creator := "cli"
				if inv.CreatedBy != 0 {
					creator = fmt.Sprint(inv.CreatedBy)
				}
				rows = append(rows, []string{inv.Code, creator, humanize.Time(inv.CreatedAt)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Code", "Created by", "Created"}, rows))
			return nil
		},
	}
}
