package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-telemetry/internal/engine"
	"github.com/signalsfoundry/constellation-telemetry/internal/seed"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check that a seed snapshot can start the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := seed.Load(seedPath)
			if err != nil {
				return err
			}
			if _, err := engine.New(snap); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed ok: %d entities, %d phases, %d task lists\n",
				len(snap.Entities), len(snap.Phases), len(snap.Tasks))
			return nil
		},
	}
}
