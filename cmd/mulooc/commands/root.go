package commands

import (
	"github.com/spf13/cobra"

	"github.com/Pliploop/MuLOOC/config"
	"github.com/Pliploop/MuLOOC/pkg/log"
)

var (
	// Global flags
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "mulooc",
	Short: "Multi-head contrastive supervision for audio",
	Long: `mulooc - build contrastive targets, sample views and run multi-head
contrastive losses over audio manifests.

Every command reads an optional YAML run configuration:

  model:
    head_dims: [128, 128]
    head_targets: ["", gain]
    temperature: 0.1
  data:
    manifest: train.jsonl
    target_len_s: 2.7
    target_sr: 22050
    n_augmentations: 2
  augmentations:
    var:
      - {name: gain, p: 0.5}

Examples:
  mulooc matrices -f labels.yaml
  mulooc sample -c run.yaml song.wav
  mulooc step -c run.yaml --epochs 3
  mulooc extract -c run.yaml --store feats/
  mulooc probe -c run.yaml --store feats/ --task multiclass`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("log-level") && configPath != "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return log.SetupLogger(cfg.LogLevel)
		}
		return log.SetupLogger(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "run configuration (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(matricesCmd)
	rootCmd.AddCommand(sampleCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(probeCmd)
}

// loadConfig returns the configuration named by --config, or the defaults.
func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}
