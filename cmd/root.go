package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/scanplan/app"
	"github.com/kilianp07/scanplan/config"
	"github.com/kilianp07/scanplan/core/model"
	"github.com/kilianp07/scanplan/pkg/export"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "scanplan",
	Short:        "Imaging scan scheduler",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

// openService loads the configuration and builds the service. The caller
// closes it.
func openService() (*app.Service, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(cfg)
}

// writeSchedule renders entries in one of the export formats.
func writeSchedule(w io.Writer, format string, entries []model.ScheduleEntry, loc *time.Location) error {
	switch strings.ToLower(format) {
	case "agenda", "":
		return export.WriteAgenda(w, entries, loc)
	case "csv":
		return export.WriteCSV(w, entries, loc)
	case "json":
		return export.WriteJSON(w, entries, loc)
	case "yaml", "yml":
		return export.WriteYAML(w, entries, loc)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func closeService(svc *app.Service, cmd *cobra.Command) {
	if err := svc.Close(); err != nil {
		cmd.PrintErrf("close: %v\n", err)
	}
}
