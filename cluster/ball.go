package cluster

import (
	"log/slog"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/cluskit/cluskit/distance"
	"github.com/cluskit/cluskit/search"
)

// BallKMeansOptions configures a BallKMeans clusterer.
type BallKMeansOptions struct {
	// ConvergenceTolerance stops refinement early when no centroid moves
	// farther than this between iterations.
	ConvergenceTolerance float64

	// Source provides the randomness for seed sampling. Defaults to a
	// fixed-seed PCG so that results are reproducible.
	Source rand.Source

	// Logger receives per-iteration progress at debug level. Defaults to
	// a discarding logger.
	Logger *slog.Logger
}

// DefaultBallKMeansOptions holds the defaults applied by NewBallKMeans.
var DefaultBallKMeansOptions = BallKMeansOptions{
	ConvergenceTolerance: 1e-9,
}

// BallKMeans refines a small weighted point set into exactly k clusters
// using weighted k-means++ seeding followed by weighted Lloyd
// iterations. The typical input is the union of streaming centroids
// from several partitions, small enough that an exact Brute searcher is
// the right backing index.
type BallKMeans struct {
	searcher      search.Searcher
	k             int
	maxIterations int
	opts          BallKMeansOptions
}

// NewBallKMeans creates a batch clusterer over the given searcher, which
// must be empty and is owned by the clusterer from here on.
func NewBallKMeans(searcher search.Searcher, numClusters, maxIterations int, optFns ...func(o *BallKMeansOptions)) (*BallKMeans, error) {
	opts := DefaultBallKMeansOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if searcher == nil {
		return nil, ErrNilSearcher
	}
	if numClusters <= 0 {
		return nil, ErrInvalidK
	}
	if maxIterations <= 0 {
		return nil, ErrInvalidIterations
	}
	if opts.Source == nil {
		opts.Source = rand.NewPCG(42, 1024)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &BallKMeans{
		searcher:      searcher,
		k:             numClusters,
		maxIterations: maxIterations,
		opts:          opts,
	}, nil
}

// Cluster partitions the weighted points into exactly k centroids,
// indexed 0 through k-1. Input points are read, never mutated. The sum
// of output weights equals the sum of input weights; centroids that end
// up with no assigned points keep their seeded position at weight zero.
//
// If k exceeds the number of distinct input points, duplicate seeds
// yield fewer effective clusters rather than an error.
func (b *BallKMeans) Cluster(points []*Centroid) ([]*Centroid, error) {
	if len(points) == 0 {
		return nil, ErrEmptyInput
	}

	seeds, err := b.seed(points)
	if err != nil {
		return nil, err
	}
	if err := b.refine(points, seeds); err != nil {
		return nil, err
	}
	return seeds, nil
}

// seed chooses k starting positions by weighted k-means++: the first
// seed is sampled with probability proportional to point mass, each
// further seed proportional to mass times the distance to the nearest
// already-chosen seed, found through the searcher rather than a
// pairwise scan.
func (b *BallKMeans) seed(points []*Centroid) ([]*Centroid, error) {
	n := len(points)
	rng := rand.New(b.opts.Source)

	masses := make([]float64, n)
	for i, p := range points {
		masses[i] = p.weight
	}

	first, ok := sampleuv.NewWeighted(masses, b.opts.Source).Take()
	if !ok {
		// All masses are zero; any point serves.
		first = rng.IntN(n)
	}

	b.searcher.Clear()
	seeds := make([]*Centroid, 0, b.k)
	chosen := make([]bool, n)

	addSeed := func(i int) error {
		c := NewCentroid(len(seeds), points[i].VecDense, 0)
		seeds = append(seeds, c)
		chosen[i] = true
		return b.searcher.Add(c)
	}

	if err := addSeed(first); err != nil {
		return nil, err
	}

	for len(seeds) < b.k {
		spread := make([]float64, n)
		remaining := 0
		for i, p := range points {
			if chosen[i] {
				continue
			}
			remaining++
			match, ok, err := b.searcher.SearchFirst(p, false)
			if err != nil {
				return nil, err
			}
			if ok {
				spread[i] = masses[i] * match.Distance
			}
		}

		if remaining == 0 {
			// More seeds requested than points; reuse positions.
			if err := addSeed(len(seeds) % n); err != nil {
				return nil, err
			}
			continue
		}

		idx, ok := sampleuv.NewWeighted(spread, b.opts.Source).Take()
		if !ok {
			// Every unchosen point coincides with a seed or carries no
			// mass; fall back to mass, then to uniform.
			fallback := make([]float64, n)
			for i := range points {
				if !chosen[i] {
					fallback[i] = masses[i]
				}
			}
			idx, ok = sampleuv.NewWeighted(fallback, b.opts.Source).Take()
			if !ok {
				skip := rng.IntN(remaining)
				for i := range points {
					if chosen[i] {
						continue
					}
					if skip == 0 {
						idx = i
						break
					}
					skip--
				}
			}
		}

		if err := addSeed(idx); err != nil {
			return nil, err
		}
	}

	return seeds, nil
}

// refine runs weighted Lloyd iterations in place over the seeds: rebuild
// the searcher over the current centroids, assign every point to its
// nearest, recompute each centroid as the weighted mean of its
// assignment. Stops when assignments are stable, movement falls under
// the tolerance, or the iteration budget runs out.
func (b *BallKMeans) refine(points []*Centroid, seeds []*Centroid) error {
	dim := points[0].Len()

	assignments := make([]int, len(points))
	for i := range assignments {
		assignments[i] = -1
	}

	sums := make([]*mat.VecDense, b.k)
	for j := range sums {
		sums[j] = mat.NewVecDense(dim, nil)
	}
	weights := make([]float64, b.k)

	for iteration := range b.maxIterations {
		b.searcher.Clear()
		for _, c := range seeds {
			if err := b.searcher.Add(c); err != nil {
				return err
			}
		}

		for j := range sums {
			sums[j].Zero()
			weights[j] = 0
		}

		changed := false
		for i, p := range points {
			match, ok, err := b.searcher.SearchFirst(p, false)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			j := match.Vector.(*Centroid).index
			if assignments[i] != j {
				assignments[i] = j
				changed = true
			}
			sums[j].AddScaledVec(sums[j], p.weight, p.VecDense)
			weights[j] += p.weight
		}

		maxMove := 0.0
		for j, c := range seeds {
			c.weight = weights[j]
			if weights[j] == 0 {
				// No assignments; the centroid keeps its position.
				continue
			}
			sums[j].ScaleVec(1/weights[j], sums[j])
			if move := distance.Euclidean(c.VecDense, sums[j]); move > maxMove {
				maxMove = move
			}
			c.CopyVec(sums[j])
		}

		b.opts.Logger.Debug("refinement iteration",
			slog.Int("iteration", iteration),
			slog.Bool("changed", changed),
			slog.Float64("max_move", maxMove),
		)

		if !changed || maxMove <= b.opts.ConvergenceTolerance {
			break
		}
	}

	return nil
}
