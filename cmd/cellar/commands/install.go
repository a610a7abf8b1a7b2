package commands

import (
	"github.com/spf13/cobra"
)

func (c *CLI) newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Build or pour packages and their dependencies",
		Long: "Resolve the named packages against the formula directory, then fetch, build\n" +
			"and cache every step that is not already cached. Targets may be given as name@channel.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				// Display command usage help without returning an error
				_ = cmd.Help()
				return nil
			}
			req, flags, err := parseRequest(cmd, args)
			if err != nil {
				return err
			}
			opts, err := options(cmd)
			if err != nil {
				return err
			}
			opts.Flags = flags

			report, err := c.app.Install(cmd.Context(), req, opts)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			return err
		},
	}
	addRequestFlags(cmd)
	return cmd
}
