package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/Pliploop/MuLOOC/featstore"
	"github.com/Pliploop/MuLOOC/models"
	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/Pliploop/MuLOOC/pkg/log"
)

var (
	extractManifest  string
	extractStore     string
	extractHead      int
	extractOverwrite bool
	extractQuiet     bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract features for every recording of a manifest",
	Long: `Split every recording of the manifest into target-length chunks, embed
the chunks with the selected head and store them, with their mean, in a
feature store directory. Recordings already in the store are skipped unless
--overwrite is set.

Head selectors: -2 concatenates every head, -1 is the encoder output
(superspace) and k >= 0 is head k. The default is model.feat_extract_head.

Example:
  mulooc extract -c run.yaml --manifest eval.jsonl --store feats/ --head -2`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if extractStore == "" {
			return fmt.Errorf("store directory is required, use --store flag")
		}
		manifest := extractManifest
		if manifest == "" {
			manifest = cfg.Data.Manifest
		}
		if manifest == "" {
			return fmt.Errorf("manifest is required, use --manifest or data.manifest")
		}
		head := models.HeadSelector(cfg.Model.FeatExtractHead)
		if cmd.Flags().Changed("head") {
			head = models.HeadSelector(extractHead)
		}
		logger := log.GetLogger()

		m, err := cfg.NewModel(logger)
		if err != nil {
			return err
		}
		src, err := cfg.NewDataset(manifest, false, true, logger)
		if err != nil {
			return err
		}
		store, err := featstore.Open(featstore.Options{Dir: extractStore, Logger: logger})
		if err != nil {
			return err
		}
		defer store.Close()

		opts := featstore.ExtractOptions{Head: head, Overwrite: extractOverwrite}
		var p *mpb.Progress
		if !extractQuiet {
			p = mpb.New(mpb.WithWidth(64), mpb.WithOutput(cmd.ErrOrStderr()))
			bar := p.AddBar(int64(src.Len()),
				mpb.PrependDecorators(
					decor.Name("extract "+head.String()),
					decor.CountersNoUnit(" %d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.EwmaETA(decor.ET_STYLE_GO, 60),
				),
			)
			opts.Progress = bar.Increment
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		stats, err := featstore.Extract(ctx, src, m, store, opts)
		if p != nil {
			p.Wait()
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "extracted %d, cached %d, failed %d\n",
			stats.Extracted, stats.Cached, stats.Failed)

		feats, _, scaler, err := store.Standardized(ctx, head.String())
		if errors.Is(err, featstore.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		r, c := feats.Dims()
		fmt.Fprintf(cmd.OutOrStdout(), "store %s: %d recordings x %d features (%s)\n",
			head, r, c, scaler)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractManifest, "manifest", "", "manifest to extract (default data.manifest)")
	extractCmd.Flags().StringVar(&extractStore, "store", "", "feature store directory")
	extractCmd.Flags().IntVar(&extractHead, "head", int(models.Superspace), "head selector: -2, -1 or a head index")
	extractCmd.Flags().BoolVar(&extractOverwrite, "overwrite", false, "recompute records already in the store")
	extractCmd.Flags().BoolVarP(&extractQuiet, "quiet", "q", false, "hide the progress bar")
}
