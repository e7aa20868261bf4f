// Package cluster implements online and batch k-means clustering on top
// of the search package's nearest-neighbor searchers.
//
// StreamingKMeans consumes an unbounded stream of points in a single
// pass, maintaining a bounded set of weighted centroids. BallKMeans
// refines a small weighted point set, typically the union of streaming
// centroids from several partitions, into exactly k clusters. Pipeline
// wires the two together across partitions.
package cluster

import (
	"gonum.org/v1/gonum/mat"
)

// Centroid is a weighted cluster representative. It embeds its
// coordinate vector, so a Centroid can be stored in a Searcher directly
// and recovered from a search result by type assertion.
//
// A Centroid owns its coordinates: construction clones the source
// vector, and merges rewrite the coordinates in place without sharing
// storage with input points.
type Centroid struct {
	*mat.VecDense

	index  int
	weight float64
}

// NewCentroid creates a centroid at the position of v with the given
// index and weight. The coordinates are copied.
func NewCentroid(index int, v mat.Vector, weight float64) *Centroid {
	return &Centroid{
		VecDense: mat.VecDenseCopyOf(v),
		index:    index,
		weight:   weight,
	}
}

// Index returns the centroid's stable index, assigned at creation and
// never reused within a clustering run.
func (c *Centroid) Index() int { return c.index }

// Weight returns the accumulated point mass.
func (c *Centroid) Weight() float64 { return c.weight }

// Update merges v with mass w into the centroid: the coordinates become
// the weighted mean of the two positions and the masses add. A zero
// combined mass leaves the centroid unchanged.
func (c *Centroid) Update(v mat.Vector, w float64) {
	total := c.weight + w
	if total == 0 {
		return
	}
	c.ScaleVec(c.weight/total, c.VecDense)
	c.AddScaledVec(c.VecDense, w/total, v)
	c.weight = total
}

// Clone returns an independent copy.
func (c *Centroid) Clone() *Centroid {
	return &Centroid{
		VecDense: mat.VecDenseCopyOf(c.VecDense),
		index:    c.index,
		weight:   c.weight,
	}
}
