// Docforged is the docforge orchestration server.
//
// It accepts project ideas over HTTP, generates the selected documents
// through the configured LLM providers, and streams progress over SSE and
// NATS.
//
// Usage:
//
//	# Start with defaults (Ollama on localhost, SQLite in ./docforge.db)
//	docforged
//
//	# Use a config file and override the port
//	DOCFORGE_SERVER_PORT=9090 docforged --config docforge.yaml
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "docforged",
		Short:         "Document generation orchestration server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the YAML config file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "docforged by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	})
	return root
}

// defaultConfigPath honours DOCFORGE_CONFIG, else ./docforge.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("DOCFORGE_CONFIG"); p != "" {
		return p
	}
	return "docforge.yaml"
}
