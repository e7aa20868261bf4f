// Package distance provides distance metrics over gonum vectors.
//
// All functions operate on mat.Vector values and delegate the underlying
// arithmetic to gonum. Dimension agreement between operands is the
// caller's responsibility; the searcher layer validates dimensions before
// computing distances.
package distance

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Func computes the distance between two vectors of equal length.
type Func func(a, b mat.Vector) float64

// SquaredEuclidean returns the squared L2 distance between a and b.
//
// It uses the dot-product expansion |a|^2 + |b|^2 - 2*a.b, which costs a
// single pass per operand regardless of representation. Floating-point
// cancellation can push the result of the expansion slightly below zero
// for nearly identical vectors; such results are clamped to zero.
func SquaredEuclidean(a, b mat.Vector) float64 {
	d := mat.Dot(a, a) + mat.Dot(b, b) - 2*mat.Dot(a, b)
	if d < 0 {
		return 0
	}
	return d
}

// Euclidean returns the L2 distance between a and b.
func Euclidean(a, b mat.Vector) float64 {
	return math.Sqrt(SquaredEuclidean(a, b))
}

// Cosine returns one minus the cosine similarity of a and b, so that
// identical directions are at distance 0 and opposite directions at 2.
// If either operand has zero norm the distance is 1.
func Cosine(a, b mat.Vector) float64 {
	na := mat.Norm(a, 2)
	nb := mat.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 1
	}
	sim := mat.Dot(a, b) / (na * nb)
	// Rounding can push the similarity marginally outside [-1, 1].
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return 1 - sim
}

// Metric identifies a distance function.
type Metric int

const (
	MetricEuclidean Metric = iota
	MetricSquaredEuclidean
	MetricCosine
)

func (m Metric) String() string {
	switch m {
	case MetricEuclidean:
		return "Euclidean"
	case MetricSquaredEuclidean:
		return "SquaredEuclidean"
	case MetricCosine:
		return "Cosine"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Provider returns the distance function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricEuclidean:
		return Euclidean, nil
	case MetricSquaredEuclidean:
		return SquaredEuclidean, nil
	case MetricCosine:
		return Cosine, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}
