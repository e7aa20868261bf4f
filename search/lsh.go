package search

import (
	"iter"
	"math"
	"math/bits"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cluskit/cluskit/distance"
)

const (
	// lshBits is the signature width: one sign bit per projection row.
	lshBits = 64

	// lshRelaxCeiling caps how far the adaptive Hamming cutoff may be
	// relaxed. Beyond half the signature width the hash carries no
	// similarity signal.
	lshRelaxCeiling = 32

	// lshMinBucketObservations is the number of true distances a Hamming
	// bucket must have seen before its distribution is trusted for
	// relaxing the cutoff.
	lshMinBucketObservations = 10
)

// LSHOptions configures an LSH searcher.
type LSHOptions struct {
	// Distance ranks results. Defaults to distance.SquaredEuclidean.
	Distance distance.Func

	// SearchSize is how many top candidates are retained during the
	// scan. The hash distance is not fully monotonic with respect to
	// true distance, so retaining more than the caller's limit buys
	// recall back.
	SearchSize int

	// HashLimitStrategy controls relaxing the adaptive Hamming cutoff:
	// 0 trusts a bucket's minimum observed distance, 1 its first
	// quartile, intermediate values interpolate. Negative means never
	// relax.
	HashLimitStrategy float64

	// Source provides the randomness for the projection matrix.
	// Defaults to a fixed-seed PCG so that results are reproducible.
	Source rand.Source
}

// DefaultLSHOptions holds the defaults applied by NewLSH.
var DefaultLSHOptions = LSHOptions{
	Distance:          distance.SquaredEuclidean,
	SearchSize:        10,
	HashLimitStrategy: 0.9,
}

// hashedEntry is a stored vector with its precomputed signature. ord is
// the insertion sequence, used for tie-breaking.
type hashedEntry struct {
	hash uint64
	vec  mat.Vector
	ord  int
}

// LSH is an approximate nearest-neighbor searcher using locality
// sensitive hashing as a first-pass distance estimate. Each stored
// vector's signature is the 64-bit sign pattern of its products with a
// fixed random Gaussian matrix drawn at first insertion; a query's
// Hamming distance to stored signatures filters candidates before any
// floating-point distance is computed.
//
// The Hamming cutoff is adaptive, which keeps the scan to a single pass
// with no pre-built index: it tightens whenever enough candidates have
// already been evaluated at smaller hash distances, and relaxes when the
// observed true-distance distribution of the next bucket suggests it
// still holds competitive candidates.
type LSH struct {
	opts LSHOptions

	dim        int
	projection *mat.Dense    // lshBits x dim, rows are Gaussian
	scratch    *mat.VecDense // product buffer reused across hashes

	entries []hashedEntry
	seq     int

	distanceEvaluations int
}

var _ Searcher = (*LSH)(nil)

// NewLSH creates a locality-sensitive-hash searcher.
func NewLSH(optFns ...func(o *LSHOptions)) (*LSH, error) {
	opts := DefaultLSHOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.SearchSize <= 0 {
		return nil, ErrInvalidSearchSize
	}
	if opts.Source == nil {
		opts.Source = rand.NewPCG(42, 1024)
	}

	return &LSH{opts: opts}, nil
}

func (l *LSH) initialize(dim int) {
	if l.projection != nil {
		return
	}
	l.dim = dim

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: l.opts.Source}
	data := make([]float64, lshBits*dim)
	for i := range data {
		data[i] = normal.Rand()
	}
	l.projection = mat.NewDense(lshBits, dim, data)
	l.scratch = mat.NewVecDense(lshBits, nil)
}

// hash computes the sign-pattern signature of v.
func (l *LSH) hash(v mat.Vector) uint64 {
	l.scratch.MulVec(l.projection, v)

	var h uint64
	for i := range lshBits {
		if l.scratch.AtVec(i) > 0 {
			h |= 1 << uint(i)
		}
	}
	return h
}

// Add implements Searcher.
func (l *LSH) Add(v mat.Vector) error {
	if err := checkDim(l.dim, v); err != nil {
		return err
	}
	l.initialize(v.Len())

	l.entries = append(l.entries, hashedEntry{hash: l.hash(v), vec: v, ord: l.seq})
	l.seq++
	return nil
}

// AddAll implements Searcher.
func (l *LSH) AddAll(vs iter.Seq[mat.Vector]) error {
	return addAll(l, vs)
}

// bucketStats tracks the true distances observed within one Hamming
// bucket, sorted ascending so the minimum and first quartile are cheap.
type bucketStats struct {
	sorted []float64
}

func (s *bucketStats) add(d float64) {
	i := sort.SearchFloat64s(s.sorted, d)
	s.sorted = append(s.sorted, 0)
	copy(s.sorted[i+1:], s.sorted[i:])
	s.sorted[i] = d
}

func (s *bucketStats) count() int { return len(s.sorted) }

func (s *bucketStats) minimum() float64 { return s.sorted[0] }

func (s *bucketStats) firstQuartile() float64 {
	return stat.Quantile(0.25, stat.Empirical, s.sorted, nil)
}

// relaxBound is the estimated best-case distance in a bucket, an
// interpolation between its observed minimum and first quartile.
func (l *LSH) relaxBound(s *bucketStats) float64 {
	return l.opts.HashLimitStrategy*s.firstQuartile() +
		(1-l.opts.HashLimitStrategy)*s.minimum()
}

// Search implements Searcher.
//
// The scan maintains the invariants that limitCount is the sum of
// hashCounts below hashLimit, and that removing the topmost bucket from
// the cutoff would drop the retained candidate count below the budget.
func (l *LSH) Search(query mat.Vector, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := checkDim(l.dim, query); err != nil {
		return nil, err
	}
	if len(l.entries) == 0 {
		return []Match{}, nil
	}

	budget := max(limit, l.opts.SearchSize)
	top := newTopK(min(budget, len(l.entries)))
	queryHash := l.hash(query)

	var hashCounts [lshBits + 1]int
	var buckets [lshBits + 1]bucketStats

	hashLimit := lshBits
	limitCount := 0
	distanceLimit := math.Inf(1)

	for _, entry := range l.entries {
		bitDot := bits.OnesCount64(entry.hash ^ queryHash)
		if bitDot > hashLimit {
			continue
		}

		l.distanceEvaluations++
		dist := l.opts.Distance(query, entry.vec)
		buckets[bitDot].add(dist)

		if dist >= distanceLimit {
			continue
		}
		top.offer(candidate{vec: entry.vec, dist: dist, ord: entry.ord})
		if top.full() {
			worst, _ := top.worst()
			distanceLimit = worst.dist
		}

		hashCounts[bitDot]++
		limitCount++
		for hashLimit > 0 && limitCount-hashCounts[hashLimit-1] > budget {
			hashLimit--
			limitCount -= hashCounts[hashLimit]
		}

		if l.opts.HashLimitStrategy >= 0 {
			for hashLimit < lshRelaxCeiling &&
				buckets[hashLimit].count() > lshMinBucketObservations &&
				l.relaxBound(&buckets[hashLimit]) < distanceLimit {
				limitCount += hashCounts[hashLimit]
				hashLimit++
			}
		}
	}

	results := toMatches(top.sorted())
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchFirst implements Searcher. It runs the same adaptive scan as
// Search but tracks only the single best candidate.
func (l *LSH) SearchFirst(query mat.Vector, excludeExactMatch bool) (Match, bool, error) {
	if err := checkDim(l.dim, query); err != nil {
		return Match{}, false, err
	}
	if len(l.entries) == 0 {
		return Match{}, false, nil
	}

	queryHash := l.hash(query)

	var hashCounts [lshBits + 1]int
	var buckets [lshBits + 1]bucketStats

	hashLimit := lshBits
	limitCount := 0

	best := candidate{dist: math.Inf(1)}
	found := false

	for _, entry := range l.entries {
		bitDot := bits.OnesCount64(entry.hash ^ queryHash)
		if bitDot > hashLimit {
			continue
		}

		l.distanceEvaluations++
		dist := l.opts.Distance(query, entry.vec)
		buckets[bitDot].add(dist)

		if dist >= best.dist {
			continue
		}
		if excludeExactMatch && mat.Equal(query, entry.vec) {
			continue
		}
		best = candidate{vec: entry.vec, dist: dist, ord: entry.ord}
		found = true

		hashCounts[bitDot]++
		limitCount++
		for hashLimit > 0 && limitCount-hashCounts[hashLimit-1] > l.opts.SearchSize {
			hashLimit--
			limitCount -= hashCounts[hashLimit]
		}

		if l.opts.HashLimitStrategy >= 0 {
			for hashLimit < lshRelaxCeiling &&
				buckets[hashLimit].count() > lshMinBucketObservations &&
				l.relaxBound(&buckets[hashLimit]) < best.dist {
				limitCount += hashCounts[hashLimit]
				hashLimit++
			}
		}
	}

	if !found {
		return Match{}, false, nil
	}
	return Match{Vector: best.vec, Distance: best.dist}, true, nil
}

// Remove implements Searcher. At epsilon zero the signature is an exact
// prefilter; with a positive tolerance every entry is a candidate, since
// nearby vectors can still hash differently.
func (l *LSH) Remove(v mat.Vector, epsilon float64) (bool, error) {
	if epsilon < 0 {
		return false, ErrInvalidEpsilon
	}
	if err := checkDim(l.dim, v); err != nil {
		return false, err
	}
	if len(l.entries) == 0 {
		return false, nil
	}

	h := l.hash(v)
	for i, entry := range l.entries {
		if epsilon == 0 && entry.hash != h {
			continue
		}
		if l.opts.Distance(v, entry.vec) <= epsilon {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Len implements Searcher.
func (l *LSH) Len() int { return len(l.entries) }

// Vectors implements Searcher.
func (l *LSH) Vectors() iter.Seq[mat.Vector] {
	out := make([]mat.Vector, len(l.entries))
	for i, entry := range l.entries {
		out[i] = entry.vec
	}
	return snapshot(out)
}

// Clear implements Searcher. The projection matrix, once drawn, is kept,
// and insertion sequence numbers are never reused.
func (l *LSH) Clear() {
	l.entries = l.entries[:0]
}

// DistanceFunc implements Searcher.
func (l *LSH) DistanceFunc() distance.Func { return l.opts.Distance }

// DistanceEvaluations reports how many true distance computations the
// searcher has performed across all queries since the last reset.
func (l *LSH) DistanceEvaluations() int { return l.distanceEvaluations }

// ResetDistanceEvaluations zeroes the evaluation counter and returns the
// previous value.
func (l *LSH) ResetDistanceEvaluations() int {
	n := l.distanceEvaluations
	l.distanceEvaluations = 0
	return n
}
