package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/teemow/authflow/internal/logging"
)

// rootCmd represents the base command for the authflow application
var rootCmd = &cobra.Command{
	Use:   "authflow",
	Short: "OAuth 2.1 client for GitHub-style providers",
	Long: `authflow obtains, refreshes, validates and revokes OAuth access tokens.

It supports the authorization-code flow with PKCE and the device flow, and
can run as:
  - A CLI (login, device, refresh, validate, revoke, status, logout)
  - An MCP (Model Context Protocol) server that exposes the flows as tools

Client credentials and endpoints are read from OAUTH_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return setupLogging(cmd.ErrOrStderr())
	},
}

// version will be set by main
var version = "dev"

var (
	logFormat string
	logLevel  string
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "authflow version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogging installs the process logger. Logs go to stderr so that stdout
// stays free for the stdio transport and command output.
func setupLogging(w io.Writer) error {
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger, err := logging.New(w, logging.Options{Format: logFormat, Level: level})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", logging.FormatText, "Log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newDeviceCmd())
	rootCmd.AddCommand(newRefreshCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newRevokeCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
