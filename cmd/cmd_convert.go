package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/localinfer/localinfer/internal/converter"
	"github.com/localinfer/localinfer/internal/envconfig"
	"github.com/localinfer/localinfer/internal/objectstore"
	"github.com/localinfer/localinfer/internal/quant"
	"github.com/localinfer/localinfer/internal/safetensors"
)

// newConvertCmd builds the convert subcommand: safetensors file in,
// quantized shard bundle out, under envconfig.ModelsDir()/BUNDLE.
func newConvertCmd() *cobra.Command {
	var (
		tokenizerPath   string
		targetQuant     string
		blockSize       int
		calibrate       bool
		maxShardBytes   int64
		mistralOverride bool
		gemmaOverride   bool
	)

	convertCmd := &cobra.Command{
		Use:   "convert SAFETENSORS BUNDLE",
		Short: "Convert a safetensors checkpoint into a quantized shard bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourcePath, bundleDir := args[0], args[1]

			dtype, err := quant.ParseDType(targetQuant)
			if err != nil {
				return err
			}

			f, err := os.Open(sourcePath)
			if err != nil {
				return err
			}
			defer f.Close()

			src, err := safetensors.NewFileSource(f)
			if err != nil {
				return err
			}
			reader, err := safetensors.Open(src)
			if err != nil {
				return err
			}

			var tokenizerJSON []byte
			if tokenizerPath != "" {
				tokenizerJSON, err = os.ReadFile(tokenizerPath)
				if err != nil {
					return err
				}
			}

			store, err := objectstore.Open(envconfig.ModelsDir())
			if err != nil {
				return err
			}

			result, err := converter.Convert(reader, store, bundleDir, tokenizerJSON, converter.Options{
				TargetQuant:     dtype,
				BlockSize:       blockSize,
				Calibrate:       calibrate,
				MaxShardBytes:   maxShardBytes,
				MistralOverride: mistralOverride,
				GemmaOverride:   gemmaOverride,
				OnProgress: func(phase string, percent int) {
					fmt.Fprintf(cmd.ErrOrStderr(), "\r%s: %3d%%", phase, percent)
					if percent == 100 {
						fmt.Fprintln(cmd.ErrOrStderr())
					}
				},
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "converted %s (%s) into %d shard(s) at %s\n",
				result.Config.Arch, result.Manifest.Quant, result.Manifest.NumShards, bundleDir)
			return nil
		},
	}

	convertCmd.Flags().StringVar(&tokenizerPath, "tokenizer", "", "path to tokenizer.json to embed in the bundle")
	convertCmd.Flags().StringVar(&targetQuant, "quant", "q4", "target weight dtype: f32, f16, q8, or q4")
	convertCmd.Flags().IntVar(&blockSize, "block-size", 0, "quantization block size: 16, 32, or 64 (default 32)")
	convertCmd.Flags().BoolVar(&calibrate, "calibrate", false, "enable Q4 99th-percentile outlier calibration")
	convertCmd.Flags().Int64Var(&maxShardBytes, "max-shard-bytes", 0, "shard size cap in bytes (default 384MiB)")
	convertCmd.Flags().BoolVar(&mistralOverride, "mistral", false, "disambiguate a llama-shaped archive as mistral")
	convertCmd.Flags().BoolVar(&gemmaOverride, "gemma", false, "disambiguate a llama-shaped archive as gemma")

	return convertCmd
}
