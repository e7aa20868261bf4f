package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/search"
)

// Pipeline runs the two-stage clustering flow: one StreamingKMeans per
// input partition, each over its own private searcher, followed by a
// single BallKMeans pass over the union of all partitions' centroids.
//
// Partitions are clustered concurrently; the final reduction is
// single-threaded over a small input.
type Pipeline struct {
	// NewSearcher builds the private searcher for one partition's
	// streaming stage. Required.
	NewSearcher func() (search.Searcher, error)

	// FinalSearcher backs the reduction stage. Defaults to a Brute
	// searcher, since the merged centroid set is small.
	FinalSearcher search.Searcher

	// EstimatedNumClusters and DistanceCutoff parameterize each
	// partition's streaming stage.
	EstimatedNumClusters int
	DistanceCutoff       float64

	// NumClusters and MaxIterations parameterize the final reduction.
	NumClusters   int
	MaxIterations int

	// Source provides the randomness for final-stage seeding. Defaults
	// to a fixed-seed PCG so that results are reproducible.
	Source rand.Source

	// Logger receives stage progress at debug level. Defaults to a
	// discarding logger.
	Logger *slog.Logger
}

// Run clusters all partitions and reduces their centroids to exactly
// NumClusters. It honors ctx between points, so a cancellation aborts
// promptly with the context's error.
func (p *Pipeline) Run(ctx context.Context, partitions [][]mat.Vector) ([]*Centroid, error) {
	if p.NewSearcher == nil {
		return nil, fmt.Errorf("pipeline: %w", ErrNilSearcher)
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	results := make([][]*Centroid, len(partitions))

	g, ctx := errgroup.WithContext(ctx)
	for i, part := range partitions {
		g.Go(func() error {
			searcher, err := p.NewSearcher()
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}

			sk, err := NewStreamingKMeans(searcher, p.EstimatedNumClusters, p.DistanceCutoff, func(o *StreamingKMeansOptions) {
				o.Logger = logger
			})
			if err != nil {
				return fmt.Errorf("partition %d: %w", i, err)
			}

			for _, v := range part {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := sk.Ingest(v); err != nil {
					return fmt.Errorf("partition %d: %w", i, err)
				}
			}

			var centroids []*Centroid
			for c := range sk.Centroids() {
				centroids = append(centroids, c)
			}
			results[i] = centroids

			logger.Debug("partition clustered",
				slog.Int("partition", i),
				slog.Int("points", len(part)),
				slog.Int("centroids", len(centroids)),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []*Centroid
	for _, centroids := range results {
		merged = append(merged, centroids...)
	}

	final := p.FinalSearcher
	if final == nil {
		final = search.NewBrute()
	}

	ball, err := NewBallKMeans(final, p.NumClusters, p.MaxIterations, func(o *BallKMeansOptions) {
		o.Source = p.Source
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("reducing centroids",
		slog.Int("partitions", len(partitions)),
		slog.Int("merged", len(merged)),
		slog.Int("target", p.NumClusters),
	)

	return ball.Cluster(merged)
}
