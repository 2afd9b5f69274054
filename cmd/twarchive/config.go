package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"twarchive/pkg/auth"
	"twarchive/pkg/config"
	"twarchive/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage twarchive configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (TWARCHIVE_*, twit_client_* for credentials)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default.

The file is created as '.twarchive.yaml' in the current directory unless a
different path is given with --config. An existing file is never replaced.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after all sources are merged.

Credentials are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".twarchive.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists: %s", configPath)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		return err
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	ui.Println("\nNext steps:")
	ui.Println("1. Store your API credentials with 'twarchive auth login'")
	ui.Println("   or set them under 'twitter:' in the file")
	ui.Println("2. Run 'twarchive config validate' to check the configuration")
	ui.Println("3. Start archiving with 'twarchive run'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	display := *cfg
	masked := auth.SanitizeAccount(&auth.Account{
		ConsumerKey:       cfg.Twitter.ConsumerKey,
		ConsumerSecret:    cfg.Twitter.ConsumerSecret,
		AccessToken:       cfg.Twitter.AccessToken,
		AccessTokenSecret: cfg.Twitter.AccessTokenSecret,
	})
	maskIfSet(&display.Twitter.ConsumerKey, masked.ConsumerKey)
	maskIfSet(&display.Twitter.ConsumerSecret, masked.ConsumerSecret)
	maskIfSet(&display.Twitter.AccessToken, masked.AccessToken)
	maskIfSet(&display.Twitter.AccessTokenSecret, masked.AccessTokenSecret)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	ui.Println()
	ui.Println(string(data))

	ui.Println("Configuration sources (in order of priority):")
	ui.Println("1. Command line flags")
	ui.Println("2. Environment variables (TWARCHIVE_*)")
	if configFile != "" {
		ui.Println("3. Configuration file:", configFile)
	} else {
		ui.Println("3. Configuration file: (searched in default locations)")
	}
	ui.Println("4. Default values")
	return nil
}

func maskIfSet(dst *string, masked string) {
	if *dst != "" {
		*dst = masked
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}

	if !cfg.Twitter.HasCredentials() {
		ui.PrintWarning("Configuration warnings:")
		ui.Println("  - API credentials are incomplete; 'twarchive run' will look in the credential stores")
		ui.Println()
	}

	if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
		return errors.Join(errors.New("output directory is not usable"), err)
	}

	ui.PrintSuccess("Configuration is valid")
	ui.Println("\nConfiguration summary:")
	ui.Println("  Output directory:    ", cfg.Output.BaseDirectory)
	ui.Println("  Poll interval:       ", cfg.Poll.Interval.String())
	ui.Println("  Posts per poll:      ", cfg.Poll.Count)
	ui.Println("  Concurrent downloads:", cfg.Download.ConcurrentDownloads)
	ui.Println("  Log level:           ", cfg.Logging.Level)
	return nil
}
