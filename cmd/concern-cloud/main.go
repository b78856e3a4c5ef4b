package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/concern-cloud/internal/logging"
	"github.com/xaenox/concern-cloud/pkg/config"
)

var (
	// Global flags
	configPath string
	logLevel   string

	cfg          *config.Config
	logger       *zap.Logger
	logLevelAtom zap.AtomicLevel
)

var rootCmd = &cobra.Command{
	Use:   "concern-cloud",
	Short: "Theme reviewer concerns on study flowcharts into a word cloud",
	Long: `concern-cloud serves the flowchart, concern and theme-comment API, groups
concerns into themes with a language model, and lays the themes out as a
bubble cloud.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		logger, logLevelAtom, err = logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, flowsCmd, cloudCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
