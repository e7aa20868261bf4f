package search

import (
	"iter"
	"math/rand/v2"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/cluskit/cluskit/distance"
)

// ProjectionOptions configures a Projection or FastProjection searcher.
type ProjectionOptions struct {
	// Distance ranks results. Defaults to distance.SquaredEuclidean.
	Distance distance.Func

	// NumProjections is the number of random 1-D axes. More axes reduce
	// false negatives at a linear cost per insert and query.
	NumProjections int

	// SearchSize is the per-axis candidate window. A wider window raises
	// recall and cost.
	SearchSize int

	// Source provides the randomness for drawing the projection axes.
	// Defaults to a fixed-seed PCG so that results are reproducible.
	Source rand.Source
}

// DefaultProjectionOptions holds the defaults applied by NewProjection
// and NewFastProjection.
var DefaultProjectionOptions = ProjectionOptions{
	Distance:       distance.SquaredEuclidean,
	NumProjections: 4,
	SearchSize:     10,
}

// projEntry places one stored vector on one projection axis. Entries on
// an axis are kept sorted by (score, id).
type projEntry struct {
	score float64
	id    int
}

// insertEntry splices e into its sorted position.
func insertEntry(entries []projEntry, e projEntry) []projEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].score != e.score {
			return entries[i].score > e.score
		}
		return entries[i].id > e.id
	})
	entries = append(entries, projEntry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	return entries
}

// removeEntry deletes the entry equal to e, if present. Scores are
// recomputed from the same axis and vector that produced them, so the
// float comparison is exact.
func removeEntry(entries []projEntry, e projEntry) []projEntry {
	i := sort.Search(len(entries), func(i int) bool {
		if entries[i].score != e.score {
			return entries[i].score > e.score
		}
		return entries[i].id >= e.id
	})
	if i < len(entries) && entries[i] == e {
		entries = append(entries[:i], entries[i+1:]...)
	}
	return entries
}

// gatherAxis adds to out the ids of up to budget entries whose scores are
// nearest to score, expanding outward from the insertion point.
func gatherAxis(entries []projEntry, score float64, budget int, out *roaring.Bitmap) {
	hi := sort.Search(len(entries), func(i int) bool {
		return entries[i].score >= score
	})
	lo := hi - 1

	for range budget {
		switch {
		case lo < 0 && hi >= len(entries):
			return
		case lo < 0:
			out.Add(uint32(entries[hi].id))
			hi++
		case hi >= len(entries):
			out.Add(uint32(entries[lo].id))
			lo--
		case score-entries[lo].score <= entries[hi].score-score:
			out.Add(uint32(entries[lo].id))
			lo--
		default:
			out.Add(uint32(entries[hi].id))
			hi++
		}
	}
}

// drawAxes returns n unit-norm axes of the given dimension with Gaussian
// direction.
func drawAxes(n, dim int, src rand.Source) []*mat.VecDense {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	axes := make([]*mat.VecDense, n)
	for i := range axes {
		data := make([]float64, dim)
		for j := range data {
			data[j] = normal.Rand()
		}
		axis := mat.NewVecDense(dim, data)
		if norm := mat.Norm(axis, 2); norm > 0 {
			axis.ScaleVec(1/norm, axis)
		}
		axes[i] = axis
	}
	return axes
}

// Projection is an approximate nearest-neighbor searcher over several
// random 1-D projections. Each stored vector is kept ordered by its
// scalar projection on every axis; a query gathers the entries nearest
// its own projection on each axis, unions and deduplicates them, and
// re-ranks the candidates by true distance.
//
// The per-axis orderings are maintained eagerly on every insert and
// removal. FastProjection trades that for amortized maintenance.
type Projection struct {
	opts    ProjectionOptions
	dim     int
	axes    []*mat.VecDense
	entries [][]projEntry
	vectors []mat.Vector // id-indexed; nil marks a removed slot
	live    int
}

var _ Searcher = (*Projection)(nil)

// NewProjection creates a projection searcher.
func NewProjection(optFns ...func(o *ProjectionOptions)) (*Projection, error) {
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

	return &Projection{
		opts:    opts,
		entries: make([][]projEntry, opts.NumProjections),
	}, nil
}

func (p *Projection) initialize(dim int) {
	if p.axes != nil {
		return
	}
	p.dim = dim
	p.axes = drawAxes(p.opts.NumProjections, dim, p.opts.Source)
}

// Add implements Searcher.
func (p *Projection) Add(v mat.Vector) error {
	if err := checkDim(p.dim, v); err != nil {
		return err
	}
	p.initialize(v.Len())

	id := len(p.vectors)
	p.vectors = append(p.vectors, v)
	for i, axis := range p.axes {
		p.entries[i] = insertEntry(p.entries[i], projEntry{score: mat.Dot(axis, v), id: id})
	}
	p.live++
	return nil
}

// AddAll implements Searcher.
func (p *Projection) AddAll(vs iter.Seq[mat.Vector]) error {
	return addAll(p, vs)
}

func (p *Projection) gather(query mat.Vector) *roaring.Bitmap {
	candidates := roaring.New()
	for i, axis := range p.axes {
		gatherAxis(p.entries[i], mat.Dot(axis, query), p.opts.SearchSize, candidates)
	}
	return candidates
}

// Search implements Searcher.
func (p *Projection) Search(query mat.Vector, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	if err := checkDim(p.dim, query); err != nil {
		return nil, err
	}
	if p.live == 0 {
		return []Match{}, nil
	}

	heap := newTopK(min(limit, p.live))
	it := p.gather(query).Iterator()
	for it.HasNext() {
		id := int(it.Next())
		v := p.vectors[id]
		heap.offer(candidate{vec: v, dist: p.opts.Distance(query, v), ord: id})
	}

	return toMatches(heap.sorted()), nil
}

// SearchFirst implements Searcher.
func (p *Projection) SearchFirst(query mat.Vector, excludeExactMatch bool) (Match, bool, error) {
	if err := checkDim(p.dim, query); err != nil {
		return Match{}, false, err
	}
	if p.live == 0 {
		return Match{}, false, nil
	}

	best := candidate{}
	found := false
	it := p.gather(query).Iterator()
	for it.HasNext() {
		id := int(it.Next())
		v := p.vectors[id]
		if excludeExactMatch && mat.Equal(query, v) {
			continue
		}
		c := candidate{vec: v, dist: p.opts.Distance(query, v), ord: id}
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

// lookup returns the id of the oldest live vector within epsilon of v.
func (p *Projection) lookup(v mat.Vector, epsilon float64) (int, bool) {
	for id, stored := range p.vectors {
		if stored == nil {
			continue
		}
		if p.opts.Distance(v, stored) <= epsilon {
			return id, true
		}
	}
	return 0, false
}

// Remove implements Searcher.
func (p *Projection) Remove(v mat.Vector, epsilon float64) (bool, error) {
	if epsilon < 0 {
		return false, ErrInvalidEpsilon
	}
	if err := checkDim(p.dim, v); err != nil {
		return false, err
	}

	id, ok := p.lookup(v, epsilon)
	if !ok {
		return false, nil
	}

	stored := p.vectors[id]
	for i, axis := range p.axes {
		p.entries[i] = removeEntry(p.entries[i], projEntry{score: mat.Dot(axis, stored), id: id})
	}
	p.vectors[id] = nil
	p.live--
	return true, nil
}

// Len implements Searcher.
func (p *Projection) Len() int { return p.live }

// Vectors implements Searcher.
func (p *Projection) Vectors() iter.Seq[mat.Vector] {
	out := make([]mat.Vector, 0, p.live)
	for _, v := range p.vectors {
		if v != nil {
			out = append(out, v)
		}
	}
	return snapshot(out)
}

// Clear implements Searcher. The projection axes, once drawn, are kept.
func (p *Projection) Clear() {
	for i := range p.entries {
		p.entries[i] = p.entries[i][:0]
	}
	p.vectors = p.vectors[:0]
	p.live = 0
}

// DistanceFunc implements Searcher.
func (p *Projection) DistanceFunc() distance.Func { return p.opts.Distance }
