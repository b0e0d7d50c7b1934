package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fiberplan/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:     "fiberplan",
	Short:   "Convert FTTH design KML/KMZ into MASTER POP UP homepass records",
	Version: version,
	Long: `Reads an FTTH network design, matches every homepass to its nearest
FAT, pole, and FDT and to its distribution area, and writes the
MASTER POP UP table.

Configuration is read from ./config.yaml and FIBERPLAN_* environment
variables (for example FIBERPLAN_PROCESS_TARGET_EPSG=32749 or
FIBERPLAN_LOG_LEVEL=debug).

Examples:
  # Inspect how the folders of a design are classified
  fiberplan layers design.kmz

  # Write MASTER_POP_UP_RESULT_design.kmz.xlsx
  fiberplan process design.kmz

  # Accept uploads over HTTP
  fiberplan serve --port 8080`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log, logFields(cmd)...); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		zap.L().Debug("config loaded",
			zap.Int("target_epsg", cfg.Process.TargetEPSG),
			zap.Bool("strict", cfg.Process.Strict),
			zap.String("format", cfg.Process.Format),
			zap.String("rules_file", cfg.Process.RulesFile),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// logFields are attached to every log entry of a run.
func logFields(cmd *cobra.Command) []zap.Field {
	return []zap.Field{
		zap.String("app", "fiberplan"),
		zap.String("version", version),
		zap.String("command", cmd.Name()),
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
