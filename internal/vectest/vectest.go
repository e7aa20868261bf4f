// Package vectest generates deterministic vector fixtures for tests.
package vectest

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Vec builds a dense vector from its arguments.
func Vec(data ...float64) *mat.VecDense {
	return mat.NewVecDense(len(data), data)
}

// HypercubeCorners returns the 2^dim corners of the unit hypercube in
// binary counting order.
func HypercubeCorners(dim int) []*mat.VecDense {
	corners := make([]*mat.VecDense, 1<<dim)
	for i := range corners {
		data := make([]float64, dim)
		for j := range data {
			data[j] = float64((i >> j) & 1)
		}
		corners[i] = mat.NewVecDense(dim, data)
	}
	return corners
}

// SampleHypercube returns n points distributed round-robin over the
// corners of the unit hypercube, each jittered by Gaussian noise with
// the given standard deviation. Point i belongs to corner i mod 2^dim.
func SampleHypercube(dim, n int, noise float64, src rand.Source) []*mat.VecDense {
	corners := HypercubeCorners(dim)
	normal := distuv.Normal{Mu: 0, Sigma: noise, Src: src}

	points := make([]*mat.VecDense, n)
	for i := range points {
		corner := corners[i%len(corners)]
		data := make([]float64, dim)
		for j := range data {
			data[j] = corner.AtVec(j)
			if noise > 0 {
				data[j] += normal.Rand()
			}
		}
		points[i] = mat.NewVecDense(dim, data)
	}
	return points
}

// UniformPoints returns n points drawn uniformly from [0,1)^dim.
func UniformPoints(dim, n int, src rand.Source) []*mat.VecDense {
	rng := rand.New(src)

	points := make([]*mat.VecDense, n)
	for i := range points {
		data := make([]float64, dim)
		for j := range data {
			data[j] = rng.Float64()
		}
		points[i] = mat.NewVecDense(dim, data)
	}
	return points
}
