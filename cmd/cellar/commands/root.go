// Package commands implements the CLI commands for the cellar package manager.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.trai.ch/cellar/internal/app"
	"go.trai.ch/cellar/internal/build"
	"go.trai.ch/cellar/internal/core/domain"
)

// CLI represents the command line interface for cellar.
type CLI struct {
	app     *app.App
	rootCmd *cobra.Command
}

// New creates a new CLI instance with the given app.
func New(a *app.App) *CLI {
	rootCmd := &cobra.Command{
		Use:           "cellar",
		Short:         "Build and install packages from source formulas",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().IntP("jobs", "j", 0, "Maximum number of concurrent builds (default from settings)")
	rootCmd.PersistentFlags().String("platform", "", "Resolve for another os/arch, e.g. darwin/arm64")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newInstallCmd())
	rootCmd.AddCommand(c.newPlanCmd())
	rootCmd.AddCommand(c.newCacheCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func options(cmd *cobra.Command) (app.Options, error) {
	var opts app.Options

	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return opts, err
	}
	opts.Jobs = jobs

	tag, err := cmd.Flags().GetString("platform")
	if err != nil {
		return opts, err
	}
	if tag != "" {
		p, err := domain.ParsePlatform(tag)
		if err != nil {
			return opts, err
		}
		opts.Platform = &p
	}
	return opts, nil
}

// SetOutput redirects command output and errors. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}
