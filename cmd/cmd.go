// Package cmd assembles localinfer's cobra CLI: convert, load, generate,
// and serve subcommands over internal/engine and internal/converter.
//
// Grounded on cmd/cmd.go's NewCLI (a SilenceUsage/SilenceErrors root
// command assembling one newXCmd() per subcommand), adapted from
// Ollama's far larger model-registry command set down to the four verbs
// this engine's lifecycle actually has.
package cmd

import (
	"log"

	"github.com/spf13/cobra"
)

// NewCLI assembles the root command and all of its subcommands.
func NewCLI() *cobra.Command {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "localinfer",
		Short:         "Run LLaMA-family models from quantized shard bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newConvertCmd(),
		newLoadCmd(),
		newGenerateCmd(),
		newServeCmd(),
	)

	return rootCmd
}
