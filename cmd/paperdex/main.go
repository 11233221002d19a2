// Package main provides the paperdex CLI entry point.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/paperdex/internal/config"
	"github.com/kailas-cloud/paperdex/internal/version"
)

// envName selects config/{env}.yaml; defaults to $ENV or "local".
var envName string

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperdex",
	Short: "Semantic retrieval over research papers",
	Long: `paperdex embeds research-paper documents and answers free-text queries
with an exact cosine similarity search over all stored embeddings.

  paperdex import --input docs.jsonl   load normalized documents
  paperdex embed                       embed documents that lack an up-to-date embedding
  paperdex serve                       run the HTTP query service`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "Config environment (default: $ENV or local)")
	rootCmd.Version = version.Version + " (" + version.Commit + ", " + version.Date + ")"
}

func currentEnv() string {
	if envName != "" {
		return envName
	}
	return config.GetEnv()
}
