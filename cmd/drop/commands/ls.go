package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored things, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Drop == nil {
			return fmt.Errorf("app not initialized")
		}

		ctx := cmd.Context()
		total, err := Drop.Registry.Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to count items: %w", err)
		}
		if total == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No things yet.")
			return nil
		}

		items, err := Drop.Registry.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("failed to list items: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DIGEST\tKIND\tNAME\tORIGINAL\tCREATED")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				it.Digest.Short(), it.Kind, it.ServableName(), it.OriginalName,
				it.CreatedAt.Local().Format(time.DateTime))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d things\n", total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
