package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	apperrors "artsync/pkg/errors"
)

var (
	// Version information
	version   = "0.1.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile        string
	logLevel          string
	logFile           string
	noColor           bool
	quiet             bool
	batchMode         bool
	accountName       string
	outputRoot        string
	dbPath            string
	overwrite         bool
	retries           int
	delay             time.Duration
	checkUpdatedLimit int
	dateDiff          int
	metricsEnabled    bool
	resume            bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "artsync",
	Short: "Incrementally mirror artworks from an art-sharing site",
	Long: `artsync crawls accounts, tag searches, bookmarks and feeds of an
art-sharing site and keeps a local mirror up to date.

Every downloaded artifact is recorded in a local database so later runs only
fetch what is new. Interrupted traversals can be resumed with --resume.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitError carries the process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode wraps err with the exit code of its fault class
func exitCode(err error) error {
	if err == nil {
		return nil
	}
	code := apperrors.ExitRunErrors
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeConfig:
		code = apperrors.ExitConfig
	case apperrors.ErrorTypeAuth:
		code = apperrors.ExitAuth
	}
	return &exitError{code: code, err: err}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "config file (default is .artsync.yaml or ~/.config/artsync/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&logFile, "log-file", "", "also write logs to this file")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress per-artifact status lines")
	pf.BoolVar(&batchMode, "batch", false, "never prompt; stop the current subject on interrupts")
	pf.StringVarP(&accountName, "account", "a", "", "use a specific stored account")
	pf.StringVarP(&outputRoot, "output", "o", "", "root directory for downloads")
	pf.StringVar(&dbPath, "db", "", "path of the SQLite database")
	pf.BoolVar(&overwrite, "overwrite", false, "replace existing files")
	pf.IntVar(&retries, "retry", -1, "retries per request")
	pf.DurationVar(&delay, "delay", -1, "wait between downloads")
	pf.IntVar(&checkUpdatedLimit, "check-updated-limit", -1, "stop a subject after this many already-downloaded artifacts (0 disables)")
	pf.IntVar(&dateDiff, "date-diff", -1, "skip artifacts older than this many days")
	pf.BoolVar(&metricsEnabled, "metrics", false, "serve prometheus metrics while running")

	rootCmd.SetVersionTemplate(`artsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// flagOverrides collects the global flags the user set explicitly
func flagOverrides(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	changed := cmd.Flags().Changed
	if changed("output") {
		flags["output"] = outputRoot
	}
	if changed("log-level") {
		flags["log-level"] = logLevel
	}
	if changed("log-file") {
		flags["log-file"] = logFile
	}
	if noColor {
		flags["no-color"] = true
	}
	if changed("db") {
		flags["db"] = dbPath
	}
	if overwrite {
		flags["overwrite"] = true
	}
	if changed("retry") {
		flags["retry"] = retries
	}
	if changed("delay") {
		flags["delay"] = delay
	}
	if changed("check-updated-limit") {
		flags["check-updated-limit"] = checkUpdatedLimit
	}
	if changed("date-diff") {
		flags["date-diff"] = dateDiff
	}
	if metricsEnabled {
		flags["metrics"] = true
	}
	return flags
}
