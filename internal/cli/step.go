package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-telemetry/fleet"
	"github.com/signalsfoundry/constellation-telemetry/internal/engine"
	"github.com/signalsfoundry/constellation-telemetry/internal/seed"
	"github.com/signalsfoundry/constellation-telemetry/model"
)

type stepOutput struct {
	Ticks    int            `json:"ticks"`
	Summary  engine.Summary `json:"summary"`
	Entities []model.Entity `json:"entities"`
	Phases   []model.Phase  `json:"phases"`
}

func newStepCommand() *cobra.Command {
	var (
		ticks  int
		jitter float64
	)
	cmd := &cobra.Command{
		Use:   "step",
		Short: "Apply N ticks without waiting and print the resulting state as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ticks < 0 {
				return fmt.Errorf("--ticks must be non-negative, got %d", ticks)
			}
			snap, err := seed.Load(seedPath)
			if err != nil {
				return err
			}
			var opts []engine.Option
			if cmd.Flags().Changed("jitter") {
				if jitter < 0 || jitter >= 1 {
					return fmt.Errorf("--jitter must be in [0, 1), got %v", jitter)
				}
				opts = append(opts, engine.WithSource(fleet.SourceFunc(func() float64 { return jitter })))
			}
			eng, err := engine.New(snap, opts...)
			if err != nil {
				return err
			}
			for range ticks {
				eng.Tick(cmd.Context())
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(stepOutput{
				Ticks:    ticks,
				Summary:  eng.Summary(),
				Entities: eng.Entities(),
				Phases:   eng.Phases(),
			})
		},
	}
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 1, "number of ticks to apply")
	cmd.Flags().Float64Var(&jitter, "jitter", 0.5, "fixed random draw in [0,1) for reproducible latency")
	return cmd
}
