// Package cli implements the simulator command line.
package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	seedPath string
	envFile  string
)

// NewRootCommand assembles the simulator command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "simulator",
		Short: "Tick-driven constellation telemetry simulator",
		Long: `simulator advances a seeded fleet of satellites and a circular
mission timeline on a fixed tick, and serves the live state to dashboards.`,
		SilenceUsage: true,
	}
	root.Version = Version
	root.SetVersionTemplate("simulator version {{.Version}}\n")

	root.PersistentFlags().StringVarP(&seedPath, "seed", "s", "", "seed snapshot (.yaml, .yml or .json); defaults to the built-in fleet")
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")

	root.AddCommand(newRunCommand(), newValidateCommand(), newStepCommand())
	return root
}

// Execute runs the root command with the given output streams and arguments.
func Execute(out io.Writer, args []string) error {
	root := NewRootCommand()
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	return root.Execute()
}
