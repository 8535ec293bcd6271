package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <user-id>",
		Short: "List a user's archived documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q", args[0])
			}

			a, err := ctx.open()
			if err != nil {
				return err
			}
			defer a.Close()

			arch, err := a.archive(cmd.Context())
			if err != nil {
				return err
			}
			entries, err := arch.List(cmd.Context(), userID)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No documents.")
				return nil
			}

			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Size", "Modified"}, rows))
			return nil
		},
	}
}
