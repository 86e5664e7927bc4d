package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/Pliploop/MuLOOC/contrastive"
	"github.com/Pliploop/MuLOOC/core/layout"
	"github.com/Pliploop/MuLOOC/monitor"
	"github.com/Pliploop/MuLOOC/pkg/errors"
)

// labelFile is the on-disk form of an augmentation label batch.
type labelFile struct {
	Items      int             `yaml:"items"`
	Views      int             `yaml:"views"`
	Dimensions []labelTensorIn `yaml:"dimensions"`
}

type labelTensorIn struct {
	Name  string    `yaml:"name"`
	Shape []int     `yaml:"shape"`
	Data  []float64 `yaml:"data"`
}

var (
	matricesFile       string
	matricesRule       string
	matricesNone       bool
	matricesHeatmapDir string
)

var matricesCmd = &cobra.Command{
	Use:   "matrices",
	Short: "Build contrastive target matrices from a label file",
	Long: `Build the invariant matrix and one matrix per augmentation dimension.

Rank 2 tensors (items, views) are binary dimensions; rank 3 tensors
(items, views, classes) are multi-hot dimensions.

Example label file (labels.yaml):
  items: 2
  views: 2
  dimensions:
    - name: gain
      shape: [2, 2]
      data: [1, 0, 0, 1]
    - name: bitcrush
      shape: [2, 2, 3]
      data: [1, 0, 0,  0, 1, 0,  0, 0, 0,  1, 0, 0]

Example:
  mulooc matrices -f labels.yaml --rule unapplied`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if matricesFile == "" {
			return fmt.Errorf("label file is required, use -f flag")
		}
		data, err := os.ReadFile(matricesFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", matricesFile)
		}
		var in labelFile
		if err := yaml.UnmarshalWithOptions(data, &in, yaml.Strict()); err != nil {
			return errors.Wrap(err, "failed to parse label file")
		}
		rule, err := contrastive.ParsePairRule(matricesRule)
		if err != nil {
			return err
		}

		set, l, err := in.labelSet(matricesNone)
		if err != nil {
			return err
		}
		ms, err := contrastive.NewBuilder(contrastive.WithPairRule(rule)).Build(l, set)
		if err != nil {
			return err
		}

		if matricesHeatmapDir != "" {
			if err := os.MkdirAll(matricesHeatmapDir, 0o755); err != nil {
				return errors.WithStack(err)
			}
		}
		out := cmd.OutOrStdout()
		for k := 0; k < ms.Len(); k++ {
			key, m := ms.At(k)
			fmt.Fprintf(out, "%s (%d positives)\n", key, ms.Positives(key))
			fmt.Fprintf(out, "%v\n\n", mat.Formatted(m, mat.Squeeze()))
			if matricesHeatmapDir == "" {
				continue
			}
			path := filepath.Join(matricesHeatmapDir, key+"_target.png")
			if err := monitor.SaveHeatmap(path, m, key, 0, 1); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	matricesCmd.Flags().StringVarP(&matricesFile, "file", "f", "", "label file (YAML)")
	matricesCmd.Flags().StringVar(&matricesRule, "rule", contrastive.MatchApplied.String(), "pair rule: applied or unapplied")
	matricesCmd.Flags().BoolVar(&matricesNone, "none-dimension", false, "add the \"none\" dimension")
	matricesCmd.Flags().StringVar(&matricesHeatmapDir, "heatmap-dir", "", "also render each matrix as a PNG heatmap into this directory")
}

func (f labelFile) labelSet(withNone bool) (*contrastive.LabelSet, layout.Layout, error) {
	l, err := layout.New(f.Items, f.Views)
	if err != nil {
		return nil, layout.Layout{}, err
	}
	set, err := contrastive.NewLabelSet()
	if err != nil {
		return nil, layout.Layout{}, err
	}
	for _, t := range f.Dimensions {
		d, err := contrastive.FromTensor(l, t.Name, t.Shape, t.Data)
		if err != nil {
			return nil, layout.Layout{}, err
		}
		if err := set.Add(d); err != nil {
			return nil, layout.Layout{}, err
		}
	}
	if withNone {
		if err := set.Add(contrastive.NoneDimension(l)); err != nil {
			return nil, layout.Layout{}, err
		}
	}
	return set, l, nil
}
