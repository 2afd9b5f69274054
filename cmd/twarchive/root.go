package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"twarchive/pkg/config"
	"twarchive/pkg/logger"
	"twarchive/pkg/ui"
)

var (
	// Build information, set with -ldflags
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twarchive",
	Short: "Archive your home timeline into a daily log and HTML page",
	Long: `twarchive polls your home timeline, appends every new post to a
crash-safe daily log, downloads author avatars and post images, and renders
everything it collected into one HTML page when it stops.

Features:
  - Secure credential storage using system keychain
  - Resume a same-day run without re-archiving posts
  - Rate-limited, SSRF-guarded media downloads
  - Optional health, metrics and live preview endpoint`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", logger.Version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			ui.SetColorEnabled(false)
		}
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		if cmd.Name() == "run" {
			ui.PrintLogo()
		}
	},
}

// Execute runs the root command and exits 1 on error
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.twarchive.yaml or ~/.config/twarchive/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`twarchive {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration with the global flags merged in.
// Only flags the user actually set override lower-precedence sources.
func loadConfig(cmd *cobra.Command, flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if cmd.Flags().Changed("log-level") {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}
