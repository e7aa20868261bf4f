package cluster

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/internal/vectest"
	"github.com/cluskit/cluskit/search"
)

func TestBallKMeans_Validation(t *testing.T) {
	_, err := NewBallKMeans(nil, 4, 10)
	assert.ErrorIs(t, err, ErrNilSearcher)

	_, err = NewBallKMeans(search.NewBrute(), 0, 10)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = NewBallKMeans(search.NewBrute(), 4, 0)
	assert.ErrorIs(t, err, ErrInvalidIterations)

	ball, err := NewBallKMeans(search.NewBrute(), 4, 10)
	require.NoError(t, err)

	_, err = ball.Cluster(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

// The canonical reduction input: one exact centroid per hypercube
// corner. Seeding must pick all sixteen distinct corners (coincident
// points carry zero seeding mass) and refinement must leave them in
// place with their weights intact.
func TestBallKMeans_SixteenCorners(t *testing.T) {
	const dim = 4

	corners := vectest.HypercubeCorners(dim)

	var points []*Centroid
	for i, corner := range corners {
		points = append(points, NewCentroid(i, corner, 625))
	}

	ball, err := NewBallKMeans(search.NewBrute(), 16, 20)
	require.NoError(t, err)

	got, err := ball.Cluster(points)
	require.NoError(t, err)
	require.Len(t, got, 16)

	matched := make([]bool, len(corners))
	total := 0.0
	for i, c := range got {
		assert.Equal(t, i, c.Index())
		assert.Equal(t, 625.0, c.Weight())
		total += c.Weight()

		nearest := -1
		for j, corner := range corners {
			diff := mat.NewVecDense(dim, nil)
			diff.SubVec(c.VecDense, corner)
			if mat.Norm(diff, 2) < 1e-9 {
				nearest = j
			}
		}
		require.NotEqual(t, -1, nearest, "centroid not on a corner")
		assert.False(t, matched[nearest], "corner claimed twice")
		matched[nearest] = true
	}

	assert.Equal(t, 10000.0, total)
}

func TestBallKMeans_WeightConservation(t *testing.T) {
	rng := rand.New(rand.NewPCG(111, 112))
	vecs := vectest.UniformPoints(6, 80, rand.NewPCG(113, 114))

	var points []*Centroid
	want := 0.0
	for i, v := range vecs {
		w := 1 + rng.Float64()*10
		want += w
		points = append(points, NewCentroid(i, v, w))
	}

	ball, err := NewBallKMeans(search.NewBrute(), 5, 30)
	require.NoError(t, err)

	got, err := ball.Cluster(points)
	require.NoError(t, err)
	require.Len(t, got, 5)

	total := 0.0
	for _, c := range got {
		total += c.Weight()
	}
	assert.InDelta(t, want, total, 1e-9)
}

// More clusters than points: duplicate seeds soak up no weight and the
// effective clustering has one centroid per distinct point.
func TestBallKMeans_KExceedsPoints(t *testing.T) {
	points := []*Centroid{
		NewCentroid(0, vectest.Vec(0, 0), 2),
		NewCentroid(1, vectest.Vec(10, 0), 3),
		NewCentroid(2, vectest.Vec(0, 10), 4),
	}

	ball, err := NewBallKMeans(search.NewBrute(), 5, 10)
	require.NoError(t, err)

	got, err := ball.Cluster(points)
	require.NoError(t, err)
	require.Len(t, got, 5)

	total := 0.0
	zeroWeight := 0
	for _, c := range got {
		total += c.Weight()
		if c.Weight() == 0 {
			zeroWeight++
		}
	}
	assert.Equal(t, 9.0, total)
	assert.Equal(t, 2, zeroWeight)
}

// All-zero input mass exercises the uniform seeding fallbacks; the run
// must still produce k centroids without error.
func TestBallKMeans_ZeroMassInput(t *testing.T) {
	vecs := vectest.UniformPoints(3, 6, rand.NewPCG(115, 116))

	var points []*Centroid
	for i, v := range vecs {
		points = append(points, NewCentroid(i, v, 0))
	}

	ball, err := NewBallKMeans(search.NewBrute(), 2, 10)
	require.NoError(t, err)

	got, err := ball.Cluster(points)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for _, c := range got {
		assert.Equal(t, 0.0, c.Weight())
	}
}

func TestBallKMeans_InputNotMutated(t *testing.T) {
	original := vectest.Vec(1, 2, 3)
	points := []*Centroid{
		NewCentroid(0, original, 5),
		NewCentroid(1, vectest.Vec(4, 5, 6), 5),
	}

	ball, err := NewBallKMeans(search.NewBrute(), 2, 10)
	require.NoError(t, err)

	_, err = ball.Cluster(points)
	require.NoError(t, err)

	assert.True(t, mat.Equal(vectest.Vec(1, 2, 3), points[0].VecDense))
	assert.Equal(t, 5.0, points[0].Weight())
}

func TestBallKMeans_DeterministicWithSeededSource(t *testing.T) {
	vecs := vectest.UniformPoints(5, 60, rand.NewPCG(117, 118))

	runs := make([][]*Centroid, 2)
	for r := range runs {
		var points []*Centroid
		for i, v := range vecs {
			points = append(points, NewCentroid(i, v, 1))
		}

		ball, err := NewBallKMeans(search.NewBrute(), 6, 20, func(o *BallKMeansOptions) {
			o.Source = rand.NewPCG(7, 9)
		})
		require.NoError(t, err)

		got, err := ball.Cluster(points)
		require.NoError(t, err)
		runs[r] = got
	}

	require.Equal(t, len(runs[0]), len(runs[1]))
	for i := range runs[0] {
		assert.True(t, mat.Equal(runs[0][i].VecDense, runs[1][i].VecDense))
		assert.Equal(t, runs[0][i].Weight(), runs[1][i].Weight())
	}
}
