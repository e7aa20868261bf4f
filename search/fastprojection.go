package search

import (
	"iter"
	"math/rand/v2"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/distance"
)

// fastRebuildFloor is the minimum pending-work size before a rebuild of
// the per-axis orderings is worthwhile.
const fastRebuildFloor = 32

// FastProjection is a Projection variant with amortized index
// maintenance. Inserts go to an unordered pending buffer that queries
// scan in full, and removals tombstone the slot in O(1); the sorted
// per-axis orderings are rebuilt only when the pending buffer and the
// accumulated tombstones outgrow a fraction of the live set.
//
// It answers the same queries as Projection at the same recall once
// rebuilt; between rebuilds, tombstoned entries consume part of the
// per-axis candidate window.
type FastProjection struct {
	opts    ProjectionOptions
	dim     int
	axes    []*mat.VecDense
	indexed [][]projEntry // sorted orderings as of the last rebuild
	pending []int         // ids inserted since the last rebuild
	vectors []mat.Vector  // id-indexed; nil marks a removed slot
	live    int
	dead    int // tombstones still referenced by indexed or pending
}

var _ Searcher = (*FastProjection)(nil)

// NewFastProjection creates a projection searcher with amortized index
// maintenance.
func NewFastProjection(optFns ...func(o *ProjectionOptions)) (*FastProjection, error) {
	opts := DefaultProjectionOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.NumProjections <= 0 {
		return nil, ErrInvalidNumProjections
	}
	if opts.SearchSize <= 0 {
		return nil, ErrInvalidSearchSize
	}
	if opts.Source == nil {
		opts.Source = rand.NewPCG(42, 1024)
	}

	return &FastProjection{
		opts:    opts,
		indexed: make([][]projEntry, opts.NumProjections),
	}, nil
}

func (f *FastProjection) initialize(dim int) {
	if f.axes != nil {
		return
	}
	f.dim = dim
	f.axes = drawAxes(f.opts.NumProjections, dim, f.opts.Source)
}

// Add implements Searcher.
func (f *FastProjection) Add(v mat.Vector) error {
	if err := checkDim(f.dim, v); err != nil {
		return err
	}
	f.initialize(v.Len())

	id := len(f.vectors)
	f.vectors = append(f.vectors, v)
	f.pending = append(f.pending, id)
	f.live++
	f.maybeRebuild()
	return nil
}

// AddAll implements Searcher.
func (f *FastProjection) AddAll(vs iter.Seq[mat.Vector]) error {
	return addAll(f, vs)
}

// maybeRebuild folds the pending buffer into the sorted orderings and
// drops tombstoned entries when the deferred work outgrows the live set.
func (f *FastProjection) maybeRebuild() {
	if len(f.pending)+f.dead <= max(fastRebuildFloor, f.live/4) {
		return
	}

	for i, axis := range f.axes {
		entries := make([]projEntry, 0, f.live)
		for id, v := range f.vectors {
			if v == nil {
				continue
			}
			entries = append(entries, projEntry{score: mat.Dot(axis, v), id: id})
		}
		sort.Slice(entries, func(a, b int) bool {
			if entries[a].score != entries[b].score {
				return entries[a].score < entries[b].score
			}
			return entries[a].id < entries[b].id
		})
		f.indexed[i] = entries
	}
	f.pending = f.pending[:0]
	f.dead = 0
}

func (f *FastProjection) gather(query mat.Vector) *roaring.Bitmap {
	candidates := roaring.New()
	for i, axis := range f.axes {
		gatherAxis(f.indexed[i], mat.Dot(axis, query), f.opts.SearchSize, candidates)
	}
	for _, id := range f.pending {
		candidates.Add(uint32(id))
	}
	return candidates
}

// Search implements Searcher.
func (f *FastProjection) Search(query mat.Vector, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := checkDim(f.dim, query); err != nil {
		return nil, err
	}
	if f.live == 0 {
		return []Match{}, nil
	}

	heap := newTopK(min(limit, f.live))
	it := f.gather(query).Iterator()
	for it.HasNext() {
		id := int(it.Next())
		v := f.vectors[id]
		if v == nil {
			continue
		}
		heap.offer(candidate{vec: v, dist: f.opts.Distance(query, v), ord: id})
	}

	return toMatches(heap.sorted()), nil
}

// SearchFirst implements Searcher.
func (f *FastProjection) SearchFirst(query mat.Vector, excludeExactMatch bool) (Match, bool, error) {
	if err := checkDim(f.dim, query); err != nil {
		return Match{}, false, err
	}
	if f.live == 0 {
		return Match{}, false, nil
	}

	best := candidate{}
	found := false
	it := f.gather(query).Iterator()
	for it.HasNext() {
		id := int(it.Next())
		v := f.vectors[id]
		if v == nil {
			continue
		}
		if excludeExactMatch && mat.Equal(query, v) {
			continue
		}
		c := candidate{vec: v, dist: f.opts.Distance(query, v), ord: id}
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

// Remove implements Searcher. The slot is tombstoned in O(1); the entry
// stays in the sorted orderings until the next rebuild.
func (f *FastProjection) Remove(v mat.Vector, epsilon float64) (bool, error) {
	if epsilon < 0 {
		return false, ErrInvalidEpsilon
	}
	if err := checkDim(f.dim, v); err != nil {
		return false, err
	}

	for id, stored := range f.vectors {
		if stored == nil {
			continue
		}
		if f.opts.Distance(v, stored) <= epsilon {
			f.vectors[id] = nil
			f.live--
			f.dead++
			f.maybeRebuild()
			return true, nil
		}
	}
	return false, nil
}

// Len implements Searcher.
func (f *FastProjection) Len() int { return f.live }

// Vectors implements Searcher.
func (f *FastProjection) Vectors() iter.Seq[mat.Vector] {
	out := make([]mat.Vector, 0, f.live)
	for _, v := range f.vectors {
		if v != nil {
			out = append(out, v)
		}
	}
	return snapshot(out)
}

// Clear implements Searcher. The projection axes, once drawn, are kept.
func (f *FastProjection) Clear() {
	for i := range f.indexed {
		f.indexed[i] = f.indexed[i][:0]
	}
	f.pending = f.pending[:0]
	f.vectors = f.vectors[:0]
	f.live = 0
	f.dead = 0
}

// DistanceFunc implements Searcher.
func (f *FastProjection) DistanceFunc() distance.Func { return f.opts.Distance }
