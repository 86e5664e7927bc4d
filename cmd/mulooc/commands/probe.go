package commands

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/Pliploop/MuLOOC/featstore"
	"github.com/Pliploop/MuLOOC/linear"
	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
)

var (
	probeStore        string
	probeHead         int
	probeTask         string
	probeLR           float64
	probeEpochs       int
	probeL2           float64
	probePatience     int
	probeMinDelta     float64
	probeValFraction  float64
	probeTestFraction float64
	probeSeed         uint64
	probeHistory      string
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Train a linear probe on stored features",
	Long: `Train a linear probe on the standardized mean features of a feature
store and the labels extracted with them (data.return_labels must have been
set during extract).

The recordings are shuffled into train, validation and test sets. Training
stops after --patience epochs without a validation loss improvement, the
weights of the best epoch are restored and the probe is evaluated on the
test set.

Tasks: multilabel (sigmoid, binary cross-entropy), multiclass (softmax over
one-hot labels) and regression (squared error).

Example:
  mulooc probe -c run.yaml --store feats/ --task multiclass --val-fraction 0.1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if probeStore == "" {
			return fmt.Errorf("store directory is required, use --store flag")
		}
		task, err := linear.ParseTask(probeTask)
		if err != nil {
			return err
		}
		head := models.HeadSelector(cfg.Model.FeatExtractHead)
		if cmd.Flags().Changed("head") {
			head = models.HeadSelector(probeHead)
		}
		patience := probePatience
		if !cmd.Flags().Changed("patience") && cfg.Monitor.Patience > 0 {
			patience = cfg.Monitor.Patience
		}
		logger := log.GetLogger()

		store, err := featstore.Open(featstore.Options{Dir: probeStore, Logger: logger})
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		X, paths, _, err := store.Standardized(ctx, head.String())
		if err != nil {
			return errors.Wrapf(err, "features for %s", head)
		}
		Y, lpaths, err := store.Labels(ctx, head.String())
		if err != nil {
			return errors.Wrapf(err, "labels for %s", head)
		}
		if !slices.Equal(paths, lpaths) {
			return errors.Newf("store %s: feature and label rows differ", head)
		}

		train, val, test, err := linear.Split(len(paths), probeValFraction, probeTestFraction, probeSeed)
		if err != nil {
			return err
		}
		p := linear.NewProbe(
			linear.WithTask(task),
			linear.WithLearningRate(probeLR),
			linear.WithEpochs(probeEpochs),
			linear.WithL2(probeL2),
			linear.WithEarlyStopping(patience, probeMinDelta),
			linear.WithLogger(logger),
		)
		if err := p.FitWithValidation(linear.Rows(X, train), linear.Rows(Y, train),
			linear.Rows(X, val), linear.Rows(Y, val)); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "probe %s (%s): %d train, %d val, %d test\n", head, task, len(train), len(val), len(test))
		best := p.History[p.BestEpoch]
		fmt.Fprintf(out, "best epoch %d of %d: train loss %.4f", p.BestEpoch, len(p.History), best.Train)
		if len(val) > 0 {
			fmt.Fprintf(out, ", val loss %.4f", best.Val)
		}
		fmt.Fprintln(out)
		if len(test) > 0 {
			Xt, Yt := linear.Rows(X, test), linear.Rows(Y, test)
			loss, err := p.Loss(Xt, Yt)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "test loss %.4f", loss)
			score, err := p.Score(Xt, Yt)
			switch {
			case err == nil:
				fmt.Fprintf(out, ", test score %.4f\n", score)
			case task == linear.Regression:
				// constant test targets leave R² undefined
				fmt.Fprintln(out)
			default:
				return err
			}
		}

		if probeHistory != "" {
			data, err := yaml.Marshal(p.History)
			if err != nil {
				return errors.WithStack(err)
			}
			if err := os.WriteFile(probeHistory, data, 0o644); err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeStore, "store", "", "feature store directory")
	probeCmd.Flags().IntVar(&probeHead, "head", int(models.Superspace), "head selector the features were extracted with")
	probeCmd.Flags().StringVar(&probeTask, "task", "multilabel", "multilabel, multiclass or regression")
	probeCmd.Flags().Float64Var(&probeLR, "lr", 0.1, "gradient descent step size")
	probeCmd.Flags().IntVar(&probeEpochs, "epochs", 200, "maximum number of epochs")
	probeCmd.Flags().Float64Var(&probeL2, "l2", 0, "weight decay")
	probeCmd.Flags().IntVar(&probePatience, "patience", 5, "epochs without validation improvement before stopping, 0 to disable (default monitor.patience)")
	probeCmd.Flags().Float64Var(&probeMinDelta, "min-delta", 0, "smallest validation loss decrease counted as an improvement")
	probeCmd.Flags().Float64Var(&probeValFraction, "val-fraction", 0.2, "share of recordings held out for early stopping")
	probeCmd.Flags().Float64Var(&probeTestFraction, "test-fraction", 0.2, "share of recordings held out for the final evaluation")
	probeCmd.Flags().Uint64Var(&probeSeed, "seed", 0, "split seed")
	probeCmd.Flags().StringVar(&probeHistory, "history", "", "write the per-epoch losses as YAML")
}
