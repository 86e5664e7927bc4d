package commands

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/Pliploop/MuLOOC/config"
	"github.com/Pliploop/MuLOOC/dataset"
	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/monitor"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
)

var (
	stepEpochs    int
	stepMaxSteps  int
	stepSeed      uint64
	stepSaveHeads string
	stepHistory   string
	stepTimeLimit time.Duration
)

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Run forward passes over a manifest and monitor the losses",
	Long: `Iterate the training manifest in batches, compute one contrastive loss
per head and feed the losses to the run monitor. When data.val_manifest is
set, every epoch ends with a validation pass that drives early stopping.

Similarity and target heatmaps are written to monitor.heatmap_dir at step 1
and every monitor.render_every steps after it.

Example:
  mulooc step -c run.yaml --epochs 5 --history losses.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Data.Manifest == "" {
			return fmt.Errorf("data.manifest is required")
		}
		logger := log.GetLogger()

		m, err := cfg.NewModel(logger)
		if err != nil {
			return err
		}
		train, err := cfg.NewDataset(cfg.Data.Manifest, true, false, logger)
		if err != nil {
			return err
		}
		var val *dataset.AudioDataset
		if cfg.Data.ValManifest != "" {
			if val, err = cfg.NewDataset(cfg.Data.ValManifest, false, false, logger); err != nil {
				return err
			}
		}

		var history map[string][]float64
		mon := newMonitor(cfg, logger, &history)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rng := rand.New(rand.NewPCG(stepSeed, stepSeed))

		for epoch := 0; epoch < stepEpochs; epoch++ {
			it, err := train.Iterate(cfg.Data.BatchSize, dataset.WithShuffle(rng), dataset.WithDropLast(true))
			if err != nil {
				return err
			}
			if err := runPhase(ctx, m, mon, it, log.PhaseTraining, stepMaxSteps); err != nil {
				return err
			}
			if val != nil {
				vit, err := val.Iterate(cfg.Data.BatchSize)
				if err != nil {
					return err
				}
				if err := runPhase(ctx, m, mon, vit, log.PhaseValidation, 0); err != nil {
					return err
				}
			}
			s := mon.EndEpoch()
			fmt.Fprintf(cmd.OutOrStdout(), "epoch %d: train %.4f val %.4f\n", s.Epoch, s.Train, s.Val)
			if s.Stop {
				break
			}
		}

		if best, epoch := mon.Best(); epoch >= 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "best val %.4f at epoch %d\n", best, epoch)
		}
		if stepHistory != "" {
			data, err := yaml.Marshal(history)
			if err != nil {
				return errors.WithStack(err)
			}
			if err := os.WriteFile(stepHistory, data, 0o644); err != nil {
				return errors.WithStack(err)
			}
		}
		if stepSaveHeads != "" {
			return m.SaveHeads(stepSaveHeads)
		}
		return nil
	},
}

func init() {
	stepCmd.Flags().IntVar(&stepEpochs, "epochs", 1, "number of passes over the training manifest")
	stepCmd.Flags().IntVar(&stepMaxSteps, "max-steps", 0, "training batches per epoch, 0 for all")
	stepCmd.Flags().Uint64Var(&stepSeed, "seed", 0, "shuffle seed")
	stepCmd.Flags().StringVar(&stepSaveHeads, "save-heads", "", "write the head weights to this checkpoint")
	stepCmd.Flags().StringVar(&stepHistory, "history", "", "write the loss history as YAML")
	stepCmd.Flags().DurationVar(&stepTimeLimit, "time-limit", 0, "stop after this wall-clock duration")
}

func newMonitor(cfg *config.Config, logger log.Logger, history *map[string][]float64) *monitor.Monitor {
	cbs := []monitor.Callback{
		monitor.LogLosses(logger, cfg.Monitor.LogEvery),
		monitor.LogDiagnostics(logger, cfg.Monitor.LogEvery),
		monitor.RecordLosses(history),
	}
	if cfg.Monitor.HeatmapDir != "" {
		cbs = append(cbs, monitor.RenderHeatmaps(cfg.Monitor.HeatmapDir, cfg.Monitor.RenderEvery))
	}
	if stepTimeLimit > 0 {
		cbs = append(cbs, monitor.TimeLimit(stepTimeLimit))
	}
	return monitor.New(
		monitor.WithCallbacks(cbs...),
		monitor.WithEarlyStopping(cfg.Monitor.Patience, cfg.Monitor.MinDelta),
		monitor.WithLogger(logger),
	)
}

// runPhase feeds every batch of it through m and records the losses under
// phase. A positive limit caps the number of batches.
func runPhase(ctx context.Context, m *models.MuLOOC, mon *monitor.Monitor, it *dataset.Iterator, phase string, limit int) error {
	for n := 0; limit <= 0 || n < limit; n++ {
		if mon.ShouldStop() {
			return nil
		}
		batch, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		out, err := m.ForwardWithLosses(batch)
		if err != nil {
			return err
		}
		if err := mon.Observe(phase, out); err != nil {
			return err
		}
	}
	return nil
}
