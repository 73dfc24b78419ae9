// Package cmd implements the foundry CLI commands.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/initializ/foundry/core/builderr"
)

var (
	cfgFile       string
	srcDir        string
	buildDir      string
	logFormat     string
	logFile       string
	verbose       bool
	themeOverride string
	traceFile     string
	metricsFile   string

	appVersion = "dev"
)

var rootCmd = &cobra.Command{
	Use:           "foundry",
	Short:         "Foundry drives phased project builds",
	Long:          "Foundry detects a project's build system and runs its build through ordered phases: prepare, downloads, dependencies, autogen, configure, build, install, commit, export and final.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: foundry.yaml found from the source directory upwards)")
	rootCmd.PersistentFlags().StringVarP(&srcDir, "directory", "C", "", "project source directory (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&buildDir, "builddir", "", "build directory (overrides the config file)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", `write logs to this file ("-" for stderr)`)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "show stage output and debug logs")
	rootCmd.PersistentFlags().StringVar(&themeOverride, "theme", "", "color theme: dark, light, or auto")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", `write OpenTelemetry spans to this file ("-" for stderr)`)
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics", "", `write stage and run metrics to this file on exit ("-" for stderr)`)

	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(rebuildCmd)
	rootCmd.AddCommand(stagesCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(watchCmd)
}

// SetVersionInfo sets the version and commit for display.
func SetVersionInfo(version, commit string) {
	appVersion = version
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("foundry %s (commit: %s)\n", version, commit))
}

// Execute runs the root command and returns the process exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	reportError(rootCmd.ErrOrStderr(), err)
	return exitCode(err)
}

func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err) //nolint:errcheck
}

// exitCode maps an error to a process exit status: 2 for bad arguments,
// otherwise the build error's code.
func exitCode(err error) int {
	if isUsageError(err) {
		return 2
	}
	return builderr.ExitCode(err)
}

// usageError marks errors caused by command-line arguments.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func isUsageError(err error) bool {
	var ue usageError
	return errors.As(err, &ue)
}

func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func stderr(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stderr
	}
	return cmd.ErrOrStderr()
}
