package cluster

import (
	"iter"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/search"
)

// StreamingKMeansOptions configures a StreamingKMeans clusterer.
type StreamingKMeansOptions struct {
	// CutoffMultiplier scales the distance cutoff up at every collapse.
	CutoffMultiplier float64

	// ClusterOvershoot scales the live-centroid bound. A larger value
	// collapses less often at the cost of more memory.
	ClusterOvershoot float64

	// Logger receives collapse events at debug level. Defaults to a
	// discarding logger.
	Logger *slog.Logger
}

// DefaultStreamingKMeansOptions holds the defaults applied by
// NewStreamingKMeans.
var DefaultStreamingKMeansOptions = StreamingKMeansOptions{
	CutoffMultiplier: 1.3,
	ClusterOvershoot: 2,
}

// StreamingKMeans clusters an unbounded stream of points in a single
// pass. Each point either merges into the nearest centroid, when that
// centroid is within the current distance cutoff, or opens a new one.
// Whenever the live centroid count outgrows a bound proportional to
// estimatedNumClusters times the log of the points seen, the centroid
// set is collapsed by re-clustering it against a raised cutoff, which
// keeps memory bounded at O(k log n).
//
// Centroid state evolves deterministically given the arrival order; the
// clusterer itself draws no randomness.
type StreamingKMeans struct {
	searcher search.Searcher
	k0       int
	cutoff   float64
	opts     StreamingKMeansOptions

	centroids  []*Centroid // live set in creation order
	nextIndex  int
	pointsSeen int
}

// NewStreamingKMeans creates a streaming clusterer over the given
// searcher, which must be empty and is owned by the clusterer from here
// on. estimatedNumClusters sizes the live-centroid bound and
// distanceCutoff is the initial merge distance.
func NewStreamingKMeans(searcher search.Searcher, estimatedNumClusters int, distanceCutoff float64, optFns ...func(o *StreamingKMeansOptions)) (*StreamingKMeans, error) {
	opts := DefaultStreamingKMeansOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if searcher == nil {
		return nil, ErrNilSearcher
	}
	if estimatedNumClusters <= 0 {
		return nil, ErrInvalidK
	}
	if distanceCutoff <= 0 {
		return nil, ErrInvalidCutoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &StreamingKMeans{
		searcher: searcher,
		k0:       estimatedNumClusters,
		cutoff:   distanceCutoff,
		opts:     opts,
	}, nil
}

// Ingest processes one point of unit weight.
func (s *StreamingKMeans) Ingest(v mat.Vector) error {
	return s.IngestWeighted(v, 1)
}

// IngestWeighted processes one point carrying mass w.
func (s *StreamingKMeans) IngestWeighted(v mat.Vector, w float64) error {
	s.pointsSeen++
	if err := s.assign(v, w); err != nil {
		return err
	}
	return s.maybeCollapse()
}

// Cluster ingests every point produced by vs with unit weight. It stops
// at the first error.
func (s *StreamingKMeans) Cluster(vs iter.Seq[mat.Vector]) error {
	for v := range vs {
		if err := s.Ingest(v); err != nil {
			return err
		}
	}
	return nil
}

// ClusterWeighted ingests every weighted point produced by vs. It stops
// at the first error.
func (s *StreamingKMeans) ClusterWeighted(vs iter.Seq2[mat.Vector, float64]) error {
	for v, w := range vs {
		if err := s.IngestWeighted(v, w); err != nil {
			return err
		}
	}
	return nil
}

// assign merges v into the nearest centroid within the cutoff, or opens
// a new centroid. Merging refreshes the searcher's entry for the
// centroid, since its coordinates change.
func (s *StreamingKMeans) assign(v mat.Vector, w float64) error {
	match, ok, err := s.searcher.SearchFirst(v, false)
	if err != nil {
		return err
	}

	if !ok || match.Distance > s.cutoff {
		c := NewCentroid(s.nextIndex, v, w)
		s.nextIndex++
		if err := s.searcher.Add(c); err != nil {
			return err
		}
		s.centroids = append(s.centroids, c)
		return nil
	}

	// Two centroids never coexist at distance zero (the second would
	// have merged), so removing at tolerance zero hits exactly this one.
	c := match.Vector.(*Centroid)
	if _, err := s.searcher.Remove(c, 0); err != nil {
		return err
	}
	c.Update(v, w)
	return s.searcher.Add(c)
}

// centroidBound is the collapse threshold: overshoot * k0 * max(1, ln n)
// for n points seen.
func (s *StreamingKMeans) centroidBound() int {
	n := math.Max(1, math.Log(float64(s.pointsSeen)))
	return int(math.Ceil(s.opts.ClusterOvershoot * float64(s.k0) * n))
}

// maybeCollapse re-clusters the live centroid set against a raised
// cutoff until it fits the bound again. Each pass merges more, so the
// loop terminates; in the limit everything fits one centroid.
func (s *StreamingKMeans) maybeCollapse() error {
	for len(s.centroids) > s.centroidBound() {
		s.cutoff *= s.opts.CutoffMultiplier

		old := s.centroids
		s.centroids = nil
		s.searcher.Clear()

		s.opts.Logger.Debug("collapsing centroids",
			slog.Int("centroids", len(old)),
			slog.Int("points_seen", s.pointsSeen),
			slog.Float64("cutoff", s.cutoff),
		)

		for _, c := range old {
			if err := s.assign(c.VecDense, c.weight); err != nil {
				return err
			}
		}
	}
	return nil
}

// Centroids returns a restartable sequence over the live centroids in
// creation order, reflecting the state at call time. Further ingestion
// after the snapshot is taken does not affect it, but callers should
// treat clustering as finished once results are consumed.
func (s *StreamingKMeans) Centroids() iter.Seq[*Centroid] {
	out := make([]*Centroid, len(s.centroids))
	copy(out, s.centroids)
	return func(yield func(*Centroid) bool) {
		for _, c := range out {
			if !yield(c) {
				return
			}
		}
	}
}

// NumCentroids reports the live centroid count.
func (s *StreamingKMeans) NumCentroids() int { return len(s.centroids) }

// PointsSeen reports how many points have been ingested.
func (s *StreamingKMeans) PointsSeen() int { return s.pointsSeen }

// DistanceCutoff reports the current merge cutoff, including any raises
// applied by collapses.
func (s *StreamingKMeans) DistanceCutoff() float64 { return s.cutoff }
