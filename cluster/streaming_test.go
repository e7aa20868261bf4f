package cluster

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/internal/vectest"
	"github.com/cluskit/cluskit/search"
)

func TestStreamingKMeans_Validation(t *testing.T) {
	_, err := NewStreamingKMeans(nil, 10, 0.5)
	assert.ErrorIs(t, err, ErrNilSearcher)

	_, err = NewStreamingKMeans(search.NewBrute(), 0, 0.5)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = NewStreamingKMeans(search.NewBrute(), 10, 0)
	assert.ErrorIs(t, err, ErrInvalidCutoff)
}

// Tight corner clusters and a cutoff between the within-corner and
// cross-corner distances recover exactly one centroid per corner, with
// exact integer weights.
func TestStreamingKMeans_RecoversCorners(t *testing.T) {
	const (
		dim       = 4
		perCorner = 625
	)

	points := vectest.SampleHypercube(dim, perCorner*16, 1e-6, rand.NewPCG(91, 92))

	sk, err := NewStreamingKMeans(search.NewBrute(), 16, 0.5)
	require.NoError(t, err)

	for _, p := range points {
		require.NoError(t, sk.Ingest(p))
	}

	require.Equal(t, 16, sk.NumCentroids())

	corners := vectest.HypercubeCorners(dim)
	matched := make([]bool, len(corners))
	total := 0.0

	i := 0
	for c := range sk.Centroids() {
		assert.Equal(t, i, c.Index(), "creation order")
		assert.Equal(t, float64(perCorner), c.Weight())
		total += c.Weight()

		nearest := -1
		for j, corner := range corners {
			if mat.Norm(sub(c.VecDense, corner), 2) < 0.01 {
				nearest = j
			}
		}
		require.NotEqual(t, -1, nearest)
		assert.False(t, matched[nearest], "corner claimed twice")
		matched[nearest] = true
		i++
	}

	assert.Equal(t, float64(perCorner*16), total)
}

func sub(a, b mat.Vector) mat.Vector {
	out := mat.NewVecDense(a.Len(), nil)
	out.SubVec(a, b)
	return out
}

// A small cutoff forces many opens and therefore collapses; mass must be
// conserved throughout and the live set must respect the log bound.
func TestStreamingKMeans_BoundedWithConservedWeight(t *testing.T) {
	const n = 2000

	points := vectest.UniformPoints(4, n, rand.NewPCG(93, 94))

	sk, err := NewStreamingKMeans(search.NewBrute(), 5, 0.001)
	require.NoError(t, err)

	initialCutoff := sk.DistanceCutoff()

	for i, p := range points {
		require.NoError(t, sk.Ingest(p))

		bound := int(math.Ceil(2 * 5 * math.Max(1, math.Log(float64(i+1)))))
		assert.LessOrEqual(t, sk.NumCentroids(), bound, "after %d points", i+1)
	}

	total := 0.0
	for c := range sk.Centroids() {
		total += c.Weight()
	}
	assert.InDelta(t, float64(n), total, 1e-9)

	assert.Equal(t, n, sk.PointsSeen())
	assert.Greater(t, sk.DistanceCutoff(), initialCutoff, "collapses raise the cutoff")
	assert.Less(t, sk.NumCentroids(), n/10)
}

func TestStreamingKMeans_WeightedIngestConserved(t *testing.T) {
	points := vectest.UniformPoints(3, 200, rand.NewPCG(95, 96))
	rng := rand.New(rand.NewPCG(97, 98))

	sk, err := NewStreamingKMeans(search.NewBrute(), 4, 0.01)
	require.NoError(t, err)

	want := 0.0
	err = sk.ClusterWeighted(func(yield func(mat.Vector, float64) bool) {
		for _, p := range points {
			w := 1 + rng.Float64()
			want += w
			if !yield(p, w) {
				return
			}
		}
	})
	require.NoError(t, err)

	got := 0.0
	for c := range sk.Centroids() {
		got += c.Weight()
	}
	assert.InDelta(t, want, got, 1e-9)
}

// Streaming draws no randomness of its own; identical input must yield
// identical centroids.
func TestStreamingKMeans_Deterministic(t *testing.T) {
	points := vectest.UniformPoints(4, 500, rand.NewPCG(99, 100))

	runs := make([][]*Centroid, 2)
	for r := range runs {
		sk, err := NewStreamingKMeans(search.NewBrute(), 5, 0.05)
		require.NoError(t, err)

		for _, p := range points {
			require.NoError(t, sk.Ingest(p))
		}
		for c := range sk.Centroids() {
			runs[r] = append(runs[r], c)
		}
	}

	require.Equal(t, len(runs[0]), len(runs[1]))
	for i := range runs[0] {
		assert.True(t, mat.Equal(runs[0][i].VecDense, runs[1][i].VecDense))
		assert.Equal(t, runs[0][i].Weight(), runs[1][i].Weight())
		assert.Equal(t, runs[0][i].Index(), runs[1][i].Index())
	}
}

// Centroid indices are assigned once and never reused, even across
// collapses that discard earlier centroids.
func TestStreamingKMeans_IndicesNeverReused(t *testing.T) {
	points := vectest.UniformPoints(4, 1000, rand.NewPCG(101, 102))

	sk, err := NewStreamingKMeans(search.NewBrute(), 3, 0.001)
	require.NoError(t, err)

	seen := map[int]bool{}
	for _, p := range points {
		require.NoError(t, sk.Ingest(p))
	}
	prev := -1
	for c := range sk.Centroids() {
		assert.Greater(t, c.Index(), prev, "creation order is ascending")
		assert.False(t, seen[c.Index()])
		seen[c.Index()] = true
		prev = c.Index()
	}
}

func TestStreamingKMeans_SnapshotUnaffectedByLaterIngest(t *testing.T) {
	sk, err := NewStreamingKMeans(search.NewBrute(), 4, 0.1)
	require.NoError(t, err)

	require.NoError(t, sk.Ingest(vectest.Vec(0, 0)))
	require.NoError(t, sk.Ingest(vectest.Vec(5, 5)))

	snap := sk.Centroids()

	require.NoError(t, sk.Ingest(vectest.Vec(9, 9)))

	count := 0
	for range snap {
		count++
	}
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, sk.NumCentroids())
}
