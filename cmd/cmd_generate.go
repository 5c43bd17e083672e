package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/localinfer/localinfer/internal/engine"
	"github.com/localinfer/localinfer/internal/envconfig"
	"github.com/localinfer/localinfer/internal/objectstore"
	"github.com/localinfer/localinfer/internal/sampler"
)

// parseIntList parses a comma-separated list of integers, e.g. token
// IDs; an empty or all-whitespace string yields a nil slice and no error.
func parseIntList(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid token id %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// newGenerateCmd builds the generate subcommand: a one-shot load,
// prefill+decode, unload cycle over explicit token IDs. There is no
// tokenizer wired into the CLI, so prompts are given as token IDs
// directly; cmd/serve's HTTP surface has the same constraint.
func newGenerateCmd() *cobra.Command {
	var (
		promptTokens string
		stopTokens   string
		maxNewTokens int
		temperature  float64
		topK         int
		topP         float64
		seed         int64
		deviceName   string
	)

	generateCmd := &cobra.Command{
		Use:   "generate BUNDLE",
		Short: "Load a bundle, generate tokens from a prompt, then unload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundleDir := args[0]

			tokens, err := parseIntList(promptTokens)
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				return fmt.Errorf("generate: --prompt-tokens is required")
			}
			stopIDs, err := parseIntList(stopTokens)
			if err != nil {
				return err
			}

			store, err := objectstore.Open(envconfig.ModelsDir())
			if err != nil {
				return err
			}

			e := engine.New()
			loadEvents, err := e.Load(context.Background(), store, engine.LoadOptions{
				BundleDir:  bundleDir,
				DeviceName: deviceName,
			})
			if err != nil {
				return err
			}
			for ev := range loadEvents {
				if ev.Kind == engine.EventError {
					return ev.Err
				}
			}

			genEvents, err := e.Generate(context.Background(), engine.GenerateParams{
				PromptTokens: tokens,
				MaxNewTokens: maxNewTokens,
				StopTokenIDs: stopIDs,
				Sampler: sampler.Params{
					Temperature: temperature,
					TopK:        topK,
					TopP:        topP,
					Seed:        seed,
				},
			})
			if err != nil {
				return err
			}

			for ev := range genEvents {
				switch ev.Kind {
				case engine.EventToken:
					fmt.Fprintf(cmd.OutOrStdout(), "%d ", ev.TokenID)
				case engine.EventDone:
					fmt.Fprintf(cmd.OutOrStdout(), "\n%d tokens, %.2f tokens/sec\n", ev.TokenCount, ev.TokensPerSecond)
				case engine.EventError:
					return ev.Err
				}
			}

			return e.Unload()
		},
	}

	generateCmd.Flags().StringVar(&promptTokens, "prompt-tokens", "", "comma-separated prompt token IDs (required)")
	generateCmd.Flags().StringVar(&stopTokens, "stop-tokens", "", "comma-separated stop token IDs, in addition to the config's EOS")
	generateCmd.Flags().IntVar(&maxNewTokens, "max-new-tokens", 256, "maximum tokens to generate")
	generateCmd.Flags().Float64Var(&temperature, "temperature", 0.8, "sampling temperature; 0 selects greedy argmax")
	generateCmd.Flags().IntVar(&topK, "top-k", 40, "top-k truncation; 0 disables it")
	generateCmd.Flags().Float64Var(&topP, "top-p", 0.95, "nucleus sampling threshold; 0 or 1 disables it")
	generateCmd.Flags().Int64Var(&seed, "seed", 0, "PRNG seed for repeatable sampling")
	generateCmd.Flags().StringVar(&deviceName, "device", "", "compute device name (default cpu)")

	return generateCmd
}
