package search

import (
	"iter"

	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/distance"
)

// BruteOptions configures a Brute searcher.
type BruteOptions struct {
	// Distance ranks results. Defaults to distance.SquaredEuclidean.
	Distance distance.Func
}

// DefaultBruteOptions holds the defaults applied by NewBrute.
var DefaultBruteOptions = BruteOptions{
	Distance: distance.SquaredEuclidean,
}

// Brute is an exact nearest-neighbor searcher backed by a linear scan.
// It serves as the correctness oracle for the approximate searchers and
// is the right choice for small sets, where the scan beats any index.
type Brute struct {
	opts    BruteOptions
	dim     int
	vectors []mat.Vector
}

// Compile-time check.
var _ Searcher = (*Brute)(nil)

// NewBrute creates an exact linear-scan searcher.
func NewBrute(optFns ...func(o *BruteOptions)) *Brute {
	opts := DefaultBruteOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Brute{opts: opts}
}

// Add implements Searcher.
func (b *Brute) Add(v mat.Vector) error {
	if err := checkDim(b.dim, v); err != nil {
		return err
	}
	b.dim = v.Len()
	b.vectors = append(b.vectors, v)
	return nil
}

// AddAll implements Searcher.
func (b *Brute) AddAll(vs iter.Seq[mat.Vector]) error {
	return addAll(b, vs)
}

// Search implements Searcher.
func (b *Brute) Search(query mat.Vector, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := checkDim(b.dim, query); err != nil {
		return nil, err
	}

	k := min(limit, len(b.vectors))
	if k == 0 {
		return []Match{}, nil
	}

	heap := newTopK(k)
	for i, v := range b.vectors {
		heap.offer(candidate{vec: v, dist: b.opts.Distance(query, v), ord: i})
	}

	return toMatches(heap.sorted()), nil
}

// SearchFirst implements Searcher.
func (b *Brute) SearchFirst(query mat.Vector, excludeExactMatch bool) (Match, bool, error) {
	if err := checkDim(b.dim, query); err != nil {
		return Match{}, false, err
	}

	best := candidate{}
	found := false
	for i, v := range b.vectors {
		if excludeExactMatch && mat.Equal(query, v) {
			continue
		}
		c := candidate{vec: v, dist: b.opts.Distance(query, v), ord: i}
		if !found || best.worseThan(c) {
			best = c
			found = true
		}
	}

	if !found {
		return Match{}, false, nil
	}
	return Match{Vector: best.vec, Distance: best.dist}, true, nil
}

// Remove implements Searcher. The oldest stored vector within epsilon of
// v is removed.
func (b *Brute) Remove(v mat.Vector, epsilon float64) (bool, error) {
	if epsilon < 0 {
		return false, ErrInvalidEpsilon
	}
	if err := checkDim(b.dim, v); err != nil {
		return false, err
	}

	for i, stored := range b.vectors {
		if b.opts.Distance(v, stored) <= epsilon {
			b.vectors = append(b.vectors[:i], b.vectors[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// Len implements Searcher.
func (b *Brute) Len() int { return len(b.vectors) }

// Vectors implements Searcher.
func (b *Brute) Vectors() iter.Seq[mat.Vector] {
	return snapshot(b.vectors)
}

// Clear implements Searcher.
func (b *Brute) Clear() {
	b.vectors = b.vectors[:0]
}

// DistanceFunc implements Searcher.
func (b *Brute) DistanceFunc() distance.Func { return b.opts.Distance }
