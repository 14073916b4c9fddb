package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extraction-ops/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "extraction-ops",
	Short: "Operations dashboard for the report extraction pipeline",
	Long:  "Monitors the extraction pipeline queues, compares staging against production emissions data, and stores comparison reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig()
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// loadConfig reads config from ./config.yaml and EXTRACTION_* variables and
// installs the global logger.
func loadConfig() (*config.Config, error) {
	c, err := config.Load()
	if err != nil {
		return nil, eris.Wrap(err, "load config")
	}
	if err := config.InitLogger(c.Log); err != nil {
		return nil, eris.Wrap(err, "init logger")
	}
	zap.L().Debug("config loaded",
		zap.String("store_driver", c.Store.Driver),
		zap.Strings("queues", c.Poll.Queues),
	)
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
