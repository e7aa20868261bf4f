// Package search implements nearest-neighbor search over gonum vectors.
//
// Four interchangeable Searcher implementations are provided:
//
//   - Brute: exact linear scan; the correctness oracle.
//   - Projection: random 1-D projections with per-axis ordered candidate
//     windows, re-ranked by true distance.
//   - FastProjection: the same geometry with amortized index maintenance
//     (pending buffer, periodic rebuild, tombstoned removals).
//   - LSH: 64-bit sign hashes from a random Gaussian projection matrix,
//     with an adaptive Hamming-distance cutoff bounding the number of
//     exact distance evaluations.
//
// All implementations break distance ties by insertion order, so results
// are deterministic given a seeded random source.
package search

import (
	"iter"

	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/distance"
)

// Match is a single search result: a stored vector and its distance to
// the query.
type Match struct {
	Vector   mat.Vector
	Distance float64
}

// Searcher answers nearest-neighbor queries over a set of stored vectors.
//
// A Searcher does not own the vectors it indexes; it holds references
// sufficient to return them from Search, and it is the sole owner of any
// derived structures (projections, hashes, orderings).
//
// Implementations are not safe for concurrent use. Confine each instance
// to a single goroutine or serialize access externally.
type Searcher interface {
	// Add inserts one vector. The first Add fixes the expected dimension;
	// vectors with a different dimension are rejected with
	// *ErrDimensionMismatch and leave the searcher unchanged.
	Add(v mat.Vector) error

	// AddAll inserts every vector produced by vs, equivalent to repeated
	// Add. It stops at the first error.
	AddAll(vs iter.Seq[mat.Vector]) error

	// Search returns up to limit stored vectors nearest to query, in
	// strictly ascending distance order (ties broken by insertion order).
	Search(query mat.Vector, limit int) ([]Match, error)

	// SearchFirst returns the single nearest stored vector. When
	// excludeExactMatch is true, a stored vector structurally equal to
	// the query is skipped even at distance zero. The boolean return is
	// false when no match exists.
	SearchFirst(query mat.Vector, excludeExactMatch bool) (Match, bool, error)

	// Remove deletes one stored vector within epsilon of v, reporting
	// whether anything was removed.
	Remove(v mat.Vector, epsilon float64) (bool, error)

	// Len reports the number of stored vectors.
	Len() int

	// Vectors returns a finite, restartable sequence over the stored
	// vectors, reflecting the contents at call time rather than a live
	// view.
	Vectors() iter.Seq[mat.Vector]

	// Clear removes all stored vectors. Configuration and any already
	// drawn random state (projection axes, hash matrices) are retained.
	Clear()

	// DistanceFunc returns the distance function the searcher ranks by.
	DistanceFunc() distance.Func
}

// checkDim validates v against a dimension fixed by an earlier insert.
// A zero expected dimension means nothing has been inserted yet.
func checkDim(expected int, v mat.Vector) error {
	if expected > 0 && v.Len() != expected {
		return &ErrDimensionMismatch{Expected: expected, Actual: v.Len()}
	}
	return nil
}

// addAll implements the AddAll contract on top of a Searcher's Add.
func addAll(s Searcher, vs iter.Seq[mat.Vector]) error {
	for v := range vs {
		if err := s.Add(v); err != nil {
			return err
		}
	}
	return nil
}

// snapshot returns a restartable sequence over a copy of vs.
func snapshot(vs []mat.Vector) iter.Seq[mat.Vector] {
	out := make([]mat.Vector, len(vs))
	copy(out, vs)
	return func(yield func(mat.Vector) bool) {
		for _, v := range out {
			if !yield(v) {
				return
			}
		}
	}
}
