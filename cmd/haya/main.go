// Package main is the CLI entry point for the Haya assistant gateway.
//
// Haya exposes a framed WebSocket protocol for trusted clients, runs chat
// turns against an LLM provider with tool execution, and bridges messaging
// channels (Discord, Slack, webhooks) into the same agent runtime.
//
// # Basic Usage
//
// Start the gateway:
//
//	haya serve --config haya.yaml
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models and embeddings
//   - DISCORD_BOT_TOKEN: Discord bot token
//   - SLACK_BOT_TOKEN: Slack bot OAuth token
//   - SLACK_APP_TOKEN: Slack app-level token for Socket Mode
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hayahq/haya/internal/gateway"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	gateway.Version = version
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "haya",
		Short: "Haya - self-hosted assistant gateway",
		Long: `Haya is a self-hosted assistant gateway. It serves a framed WebSocket
protocol for trusted clients, runs agent turns with tool execution and
long-term memory, and docks messaging channels onto the same runtime.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}
