package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localinfer/localinfer/internal/engine"
	"github.com/localinfer/localinfer/internal/envconfig"
	"github.com/localinfer/localinfer/internal/objectstore"
)

// newLoadCmd builds the load subcommand, a one-shot smoke test that
// brings an Engine from Empty to Ready against a bundle and reports its
// progress events, then exits -- unlike serve, it does not keep the
// engine resident for later Generate calls.
func newLoadCmd() *cobra.Command {
	var deviceName string

	loadCmd := &cobra.Command{
		Use:   "load BUNDLE",
		Short: "Load a converted bundle and report readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundleDir := args[0]

			store, err := objectstore.Open(envconfig.ModelsDir())
			if err != nil {
				return err
			}

			e := engine.New()
			events, err := e.Load(context.Background(), store, engine.LoadOptions{
				BundleDir:  bundleDir,
				DeviceName: deviceName,
			})
			if err != nil {
				return err
			}

			for ev := range events {
				switch ev.Kind {
				case engine.EventProgress:
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s: %3d%%", ev.Phase, ev.Percent)
				case engine.EventError:
					return ev.Err
				case engine.EventDone:
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s is ready\n", bundleDir)
				}
			}
			return nil
		},
	}

	loadCmd.Flags().StringVar(&deviceName, "device", "", "compute device name (default cpu)")

	return loadCmd
}
