package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"twarchive/pkg/archiver"
	"twarchive/pkg/auth"
	"twarchive/pkg/config"
	"twarchive/pkg/ingest"
	"twarchive/pkg/logger"
	"twarchive/pkg/ui"
	"twarchive/pkg/ui/tui"
)

var (
	runAccount     string
	runOutput      string
	runInterval    time.Duration
	runCount       int
	runMaxRetries  int
	runConcurrent  int
	runResume      bool
	runMediaGrace  time.Duration
	runMetricsAddr string
	runTUI         bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll the home timeline until interrupted",
	Long: `Poll the home timeline once per interval and archive every new post.

Credentials are taken from, in order:
  - Configuration file and environment (TWARCHIVE_* or twit_client_*)
  - Stored credentials (use 'twarchive auth login' to store)

Press Ctrl+C to stop. The collected posts are then written to
tweets-<date>.html in the output directory.`,
	Example: `  # Archive into the current directory
  twarchive run

  # Archive into ./archive, continuing today's log
  twarchive run --output ./archive --resume

  # Expose /healthz, /metrics and /archive
  twarchive run --metrics-addr :9090

  # Full-screen dashboard, logs go to twarchive.log in the output directory
  twarchive run --tui`,
	Args: cobra.NoArgs,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runAccount, "account", "a", "", "use specific stored account")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "output directory (default: current directory)")
	runCmd.Flags().DurationVar(&runInterval, "interval", time.Minute, "poll interval")
	runCmd.Flags().IntVar(&runCount, "count", 15, "posts requested per poll")
	runCmd.Flags().IntVar(&runMaxRetries, "max-retries", 0, "retries of a failed timeline request before it is fatal")
	runCmd.Flags().IntVar(&runConcurrent, "concurrent", 4, "number of concurrent media downloads")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "continue today's record log instead of starting empty")
	runCmd.Flags().DurationVar(&runMediaGrace, "media-grace", 0, "time pending media may take after a stop before the page is written")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "listen address for /healthz, /metrics and /archive")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "use interactive terminal UI with live cycle and download status")
}

// runFlags collects the run flags the user set
func runFlags(cmd *cobra.Command) map[string]interface{} {
	flags := make(map[string]interface{})
	set := func(name string, value interface{}) {
		if cmd.Flags().Changed(name) {
			flags[name] = value
		}
	}
	set("account", runAccount)
	set("output", runOutput)
	set("interval", runInterval)
	set("count", runCount)
	set("max-retries", runMaxRetries)
	set("concurrent", runConcurrent)
	set("resume", runResume)
	set("media-grace", runMediaGrace)
	set("metrics-addr", runMetricsAddr)
	return flags
}

func runArchive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, runFlags(cmd))
	if err != nil {
		return err
	}
	if runTUI {
		dashboardLogging(cfg)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}
	log := logger.GetLogger()

	resolveCredentials(cfg, log)

	var dash *tui.TUI
	tracker := ui.NewStatusTracker(cfg.Poll.Count)
	opts := archiver.Options{
		Logger: log,
		OnCycle: func(s ingest.Summary) {
			tracker.Record(s)
			tracker.PrintProgress()
		},
	}
	if runTUI {
		// dash is set before Run, the only caller of these
		opts.OnCycle = func(s ingest.Summary) { dash.RecordCycle(s) }
		opts.OnDownload = func(e ingest.DownloadEvent) { dash.RecordDownload(e) }
	}

	a, err := archiver.New(cfg, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runTUI {
		dash = tui.New(cfg.Poll.Count, a.PoolStats, tea.WithAltScreen(), tea.WithoutSignalHandler())
		return runDashboard(ctx, a, dash, log)
	}

	ui.PrintInfo("Records", a.RecordsPath())
	if err := a.Run(ctx); err != nil {
		return err
	}
	ui.PrintSuccess("Archive written: " + a.PagePath())
	return nil
}

// dashboardLogging keeps log lines off the terminal the dashboard owns and
// sends them to a file instead
func dashboardLogging(cfg *config.Config) {
	cfg.Logging.NoConsole = true
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.Output.BaseDirectory, "twarchive.log")
	}
}

// runDashboard runs the archiver behind the dashboard. Quitting the
// dashboard stops polling like an interrupt does.
func runDashboard(ctx context.Context, a *archiver.Archiver, dash *tui.TUI, log logger.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	uiErr := make(chan error, 1)
	go func() { uiErr <- dash.Run() }()
	go func() {
		<-dash.Done()
		cancel()
	}()

	dash.LogInfo("Archiving to %s", a.RecordsPath())
	runErr := a.Run(ctx)
	dash.Stop()
	if err := <-uiErr; err != nil {
		log.WithError(err).Warn("Dashboard exited with an error")
	}

	if runErr != nil {
		return runErr
	}
	ui.PrintSuccess("Archive written: " + a.PagePath())
	return nil
}

// resolveCredentials fills missing secrets from the credential stores.
// Configured values always win.
func resolveCredentials(cfg *config.Config, log logger.Logger) {
	if cfg.Twitter.HasCredentials() {
		return
	}

	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("Credential stores unavailable")
		return
	}

	var account *auth.Account
	if cfg.Twitter.Account != "" {
		account, err = manager.Retrieve(cfg.Twitter.Account)
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		log.WithError(err).Debug("No stored credentials")
		return
	}
	account.ApplyTo(&cfg.Twitter)
	log.WithField("account", account.Name).Info("Using stored credentials")
}
