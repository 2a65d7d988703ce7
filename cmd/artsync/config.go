package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"artsync/pkg/config"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage artsync configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (ARTSYNC_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Long: `Write a configuration file with every option at its default value.

The file is created as '.artsync.yaml' in the current directory unless a path
is given with --config.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. The session cookie
and the database DSN are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = ".artsync.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		ui.PrintError("Configuration file already exists", path)
		return &exitError{code: apperrors.ExitConfig}
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return exitCode(apperrors.NewConfig(err))
	}

	ui.PrintSuccess("Configuration file created: " + path)
	fmt.Fprintln(ui.Out, "\nNext steps:")
	fmt.Fprintln(ui.Out, "1. Run 'artsync auth login' to store your session cookie")
	fmt.Fprintln(ui.Out, "2. Adjust output.root_directory and the filename formats")
	fmt.Fprintln(ui.Out, "3. Start with 'artsync member <member_id>'")
	return nil
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		ui.PrintError("Failed to load configuration", err)
		return &exitError{code: apperrors.ExitConfig}
	}

	display := *cfg
	display.Site.Cookie = mask(display.Site.Cookie)
	display.Storage.DSN = mask(display.Storage.DSN)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return exitCode(apperrors.NewConfig(err))
	}
	ui.PrintHighlight("Current Configuration")
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, string(data))
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}
	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		ui.PrintError("Configuration validation failed", err)
		return &exitError{code: apperrors.ExitConfig}
	}

	var problems, warnings []string
	if cfg.Site.Cookie == "" {
		warnings = append(warnings, "no session cookie configured; a stored account will be used")
	}
	if err := os.MkdirAll(cfg.Output.RootDirectory, 0o755); err != nil {
		problems = append(problems, fmt.Sprintf("cannot create output directory: %v", err))
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0o755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if cfg.Traversal.IgnoreList != "" {
		if _, err := os.Stat(cfg.Traversal.IgnoreList); err != nil && !os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("cannot read ignore list: %v", err))
		}
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors:")
		for _, p := range problems {
			fmt.Fprintf(ui.Out, "  - %s\n", p)
		}
		return &exitError{code: apperrors.ExitConfig}
	}
	for _, w := range warnings {
		ui.PrintWarning("warning", w)
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Fprintln(ui.Out, "\nConfiguration summary:")
	fmt.Fprintf(ui.Out, "  Output directory: %s\n", cfg.Output.RootDirectory)
	fmt.Fprintf(ui.Out, "  Database: %s %s\n", cfg.Storage.Driver, cfg.Storage.Path)
	fmt.Fprintf(ui.Out, "  Retries: %d, wait %s\n", cfg.Network.Retry, cfg.Network.RetryWait)
	fmt.Fprintf(ui.Out, "  Download delay: %s\n", cfg.Network.DownloadDelay)
	fmt.Fprintf(ui.Out, "  Fast-skip limit: %d\n", cfg.Traversal.CheckUpdatedLimit)
	fmt.Fprintf(ui.Out, "  Log level: %s\n", cfg.Logging.Level)
	return nil
}
