package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (test failure, invalid arguments).
	ExitCodeError = 1
)

// rootCmd represents the base command for the kubecheck application.
var rootCmd = &cobra.Command{
	Use:   "kubecheck",
	Short: "Run declarative HTTP, command and wait tests against Kubernetes workloads",
	Long: `kubecheck executes declarative test definitions against local processes
and workloads running in Kubernetes clusters. Tests are written as YAML
documents and cover HTTP requests, shell commands, polled wait conditions
and body comparisons, with value extraction chaining results between tests.

All cluster access happens through the kubectl binary, so kubecheck works
against any cluster your kubeconfig can reach.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "kubecheck version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitCodeError)
	}
}
