package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/erazemk/tovor/internal/store"
)

func newUsersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List admitted chat users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := store.ListUsers(cmd.Context(), a.db)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No users.")
				return nil
			}

			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{strconv.FormatInt(u.ID, 10), humanize.Time(u.JoinedAt)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"User", "Joined"}, rows))
			return nil
		},
	}
}
