package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the artifact cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List committed artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			artifacts, err := c.app.CacheList()
			if err != nil {
				return err
			}
			printArtifacts(cmd.OutOrStdout(), artifacts)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Re-hash every cached payload against its manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := c.app.CacheVerify()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d artifacts verified\n", n)
			return nil
		},
	})
	return cmd
}
