package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"buildwarden/internal/api"
	"buildwarden/internal/config"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error.
	ExitCodeError = 1
	// ExitCodeTimeout indicates a bounded wait did not complete.
	ExitCodeTimeout = 4
	// ExitCodeBusy indicates the remote workload was busy; retry later (EX_TEMPFAIL).
	ExitCodeBusy = 75
)

var (
	configPath string
	debug      bool
)

// rootCmd represents the base command for the buildwarden application.
var rootCmd = &cobra.Command{
	Use:   "buildwarden",
	Short: "Keep a build server's plugins and agent fleet in their desired state",
	Long: `buildwarden converges a Jenkins-style build server with a declared state:
it removes plugins outside an allowlist (keeping their dependencies) and
registers or removes agent nodes so that they match the desired fleet.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "buildwarden version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps error classes to exit codes. Busy is checked first: a
// busy error wraps the timeout that detected it.
func getExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case api.IsRemoteBusy(err):
		return ExitCodeBusy
	case api.IsTimeout(err):
		return ExitCodeTimeout
	default:
		return ExitCodeError
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", config.GetDefaultConfigPathOrPanic(),
		"Directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(serveCmd)
}

// isExpectedPassError reports whether err is a routine outcome of a pass
// rather than a malfunction.
func isExpectedPassError(err error) bool {
	var busy *api.RemoteBusyError
	return errors.As(err, &busy)
}
