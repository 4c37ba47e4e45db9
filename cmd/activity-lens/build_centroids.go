package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/activity-lens/activity-lens/internal/buckets"
	"github.com/activity-lens/activity-lens/internal/centroid"
)

var buildCentroidsCommand = &cobra.Command{
	Use:   "build-centroids",
	Short: "Embed the bucket examples and persist the classification index",
	Long: `Reads the bucket definitions, embeds every example phrase with the
configured embedding model, and writes one mean vector per bucket. The
classify stage refuses to run until this has been done, and must be re-run
after editing the bucket file or switching embedding models.`,
	RunE: buildCentroids,
}

func init() {
	rootCmd.AddCommand(buildCentroidsCommand)
}

func buildCentroids(_ *cobra.Command, _ []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	bucketsConfig, err := buckets.Load(application.cfg.Paths.BucketsFile)
	if err != nil {
		return fmt.Errorf("load bucket definitions: %w", err)
	}

	builder := centroid.NewBuilder(application.embedder(), application.log)

	set, index, err := builder.Build(ctx, bucketsConfig)
	if err != nil {
		return fmt.Errorf("build centroids: %w", err)
	}

	setPath := application.cfg.CentroidSetPath()
	indexPath := application.cfg.CentroidIndexPath()

	if err := centroid.SavePair(set, index, setPath, indexPath); err != nil {
		return fmt.Errorf("save centroids: %w", err)
	}

	fmt.Printf(
		"Built %d centroids (%d dimensions) with model %s\n",
		index.Len(),
		index.Dimensions(),
		set.Model,
	)
	fmt.Printf("  set:   %s\n", setPath)
	fmt.Printf("  index: %s\n", indexPath)

	return nil
}
