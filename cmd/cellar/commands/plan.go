package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [packages...]",
		Short: "Print the ordered build plan without fetching or building",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, flags, err := parseRequest(cmd, args)
			if err != nil {
				return err
			}
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			opts.Flags = flags

			plan, err := c.app.Plan(cmd.Context(), req, opts)
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}
	addRequestFlags(cmd)
	return cmd
}
