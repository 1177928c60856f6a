// Command archdocctl is the offline companion to the archdoc server. It
// previews agent prompts, normalizes saved agent responses, inspects and
// exports stored projects, and hashes API keys for configuration.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "archdocctl",
		Short: "Offline tools for archdoc design reports",
		Long: `archdocctl works directly on archdoc data without a running server.

Available subcommands:
  prompt     - Render the agent prompt for an intake or a refinement
  normalize  - Turn a saved agent response into the canonical design
  projects   - List, show and export projects in a local store
  hash-key   - Hash an API key for ARCHDOC_API_KEY_HASH
  genkey     - Generate the Ed25519 JWT signing key pair`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newPromptCmd(),
		newNormalizeCmd(),
		newProjectsCmd(),
		newHashKeyCmd(),
		newGenKeyCmd(),
	)
	return root
}
