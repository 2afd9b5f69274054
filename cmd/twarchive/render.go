package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"twarchive/pkg/archiver"
	"twarchive/pkg/logger"
	"twarchive/pkg/storage"
	"twarchive/pkg/ui"
)

var (
	renderDate   string
	renderOutput string
)

// renderCmd represents the render command
var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Rebuild a day's HTML page from its record log",
	Long: `Rebuild tweets-<date>.html from tweets-<date>.txt.

Use this to recover the page of a run that ended without writing one, or
to re-render after changing the stylesheet. An existing page is replaced.`,
	Example: `  # Today's page
  twarchive render

  # A specific day in another directory
  twarchive render --date 2026-10-17 --output ./archive`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVar(&renderDate, "date", "", "day to render as YYYY-MM-DD (default: today)")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "", "directory holding the record log")
}

func runRender(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if renderOutput != "" {
		flags["output"] = renderOutput
	}
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return err
	}

	day := time.Now()
	if renderDate != "" {
		day, err = time.ParseInLocation(storage.DateLayout, renderDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", renderDate)
		}
	}

	res, err := archiver.RenderDay(cfg, day, logger.GetLogger())
	if err != nil {
		return err
	}
	ui.PrintSuccess(fmt.Sprintf("Rendered %d posts to %s", res.Records, res.PagePath))
	return nil
}
