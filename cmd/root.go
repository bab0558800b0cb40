// Package cmd wires the docbase CLI: serve, migrate, version.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docbase",
	Short: "docbase - document knowledge base with semantic search",
	Long: `docbase ingests documents (PDF, Word, HTML, plain text), splits them
into chunks, embeds each chunk, and serves semantic search over the result.

Run "docbase serve" to start the HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
