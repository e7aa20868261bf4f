package search

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// candidate pairs a stored vector with its distance to the current query.
// ord is the vector's insertion sequence; it breaks distance ties so that
// results are deterministic.
type candidate struct {
	vec  mat.Vector
	dist float64
	ord  int
}

// worseThan reports whether c ranks after o: farther from the query, or
// tied in distance but inserted later.
func (c candidate) worseThan(o candidate) bool {
	if c.dist != o.dist {
		return c.dist > o.dist
	}
	return c.ord > o.ord
}

// topK is a bounded max-heap retaining the k best candidates offered so
// far; the root is the worst retained candidate. Storage is value-based.
type topK struct {
	k     int
	items []candidate
}

func newTopK(k int) *topK {
	return &topK{k: k, items: make([]candidate, 0, k)}
}

func (t *topK) full() bool { return len(t.items) >= t.k }

// worst returns the candidate that would be evicted next.
func (t *topK) worst() (candidate, bool) {
	if len(t.items) == 0 {
		return candidate{}, false
	}
	return t.items[0], true
}

// offer inserts c, evicting the worst retained candidate when the heap is
// at capacity. It reports whether c was retained.
func (t *topK) offer(c candidate) bool {
	if len(t.items) < t.k {
		t.items = append(t.items, c)
		t.siftUp(len(t.items) - 1)
		return true
	}
	if !t.items[0].worseThan(c) {
		return false
	}
	t.items[0] = c
	t.siftDown(0)
	return true
}

// sorted returns the retained candidates in ascending (distance,
// insertion order). The heap is left intact.
func (t *topK) sorted() []candidate {
	out := make([]candidate, len(t.items))
	copy(out, t.items)
	sort.Slice(out, func(i, j int) bool {
		return out[j].worseThan(out[i])
	})
	return out
}

func (t *topK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !t.items[i].worseThan(t.items[p]) {
			return
		}
		t.items[i], t.items[p] = t.items[p], t.items[i]
		i = p
	}
}

func (t *topK) siftDown(i int) {
	n := len(t.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && t.items[r].worseThan(t.items[l]) {
			worst = r
		}
		if !t.items[worst].worseThan(t.items[i]) {
			return
		}
		t.items[i], t.items[worst] = t.items[worst], t.items[i]
		i = worst
	}
}

func toMatches(cands []candidate) []Match {
	out := make([]Match, len(cands))
	for i, c := range cands {
		out[i] = Match{Vector: c.vec, Distance: c.dist}
	}
	return out
}
