package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/Pliploop/MuLOOC/audio"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
	"github.com/Pliploop/MuLOOC/sampling"
)

var (
	sampleStrategy string
	sampleOutDir   string
)

var sampleCmd = &cobra.Command{
	Use:   "sample <file.wav>",
	Short: "Sample views from one recording",
	Long: `Sample N views from a recording with the configured strategy
probabilities, or with a fixed strategy given by --strategy.

Example:
  mulooc sample -c run.yaml --strategy adjacent -o views/ song.wav`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := log.GetLogger()
		s, err := cfg.NewSampler(audio.NewWAVLoader(audio.WithLoaderLogger(logger)), logger)
		if err != nil {
			return err
		}

		path := args[0]
		var (
			views *mat.Dense
			kind  sampling.Kind
		)
		if sampleStrategy != "" {
			kind, err = sampling.ParseKind(sampleStrategy)
			if err != nil {
				return err
			}
			views, err = s.SampleKind(path, kind)
		} else {
			views, kind, err = s.Sample(path)
		}
		if err != nil {
			return err
		}

		r, c := views.Dims()
		fmt.Fprintf(cmd.OutOrStdout(), "strategy: %s\nviews: %d x %d samples @ %d Hz\n", kind, r, c, s.SampleRate())
		if sampleOutDir == "" {
			return nil
		}
		return writeViews(sampleOutDir, path, views, s.SampleRate())
	},
}

func init() {
	sampleCmd.Flags().StringVar(&sampleStrategy, "strategy", "", "fixed strategy: same, adjacent or random")
	sampleCmd.Flags().StringVarP(&sampleOutDir, "output", "o", "", "write each view as a WAV file into this directory")
}

// writeViews saves every row of views as <stem>_view<n>.wav under dir.
func writeViews(dir, src string, views *mat.Dense, sampleRate int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WithStack(err)
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	r, _ := views.Dims()
	for n := 0; n < r; n++ {
		w := &audio.Waveform{
			SampleRate: sampleRate,
			Channels:   [][]float64{mat.Row(nil, n, views)},
		}
		if err := audio.WriteWAV(filepath.Join(dir, fmt.Sprintf("%s_view%d.wav", stem, n)), w); err != nil {
			return err
		}
	}
	return nil
}
