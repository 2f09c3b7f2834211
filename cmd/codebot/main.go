package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "codebot",
	Short: "codebot - autonomous coding task server",
	Long: `codebot accepts coding tasks over HTTP, hands them to a coding agent in an
isolated git workspace, and opens the resulting pull request. It also listens
for PR review comments and acts on them.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr string
	apiKey  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "http://127.0.0.1:5000", "API server address")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("CODEBOT_API_KEY"), "API key for authenticated endpoints")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the codebot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("codebot", version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
