package search

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cluskit/cluskit/distance"
	"github.com/cluskit/cluskit/internal/vectest"
)

func TestBrute_TieBreaking(t *testing.T) {
	s := NewBrute()
	require.NoError(t, s.Add(vectest.Vec(0, 0)))
	require.NoError(t, s.Add(vectest.Vec(1, 0)))
	require.NoError(t, s.Add(vectest.Vec(0, 1)))

	got, err := s.Search(vectest.Vec(0, 0), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 0.0, got[0].Distance)
	assert.True(t, mat.Equal(vectest.Vec(0, 0), got[0].Vector))

	// (1,0) and (0,1) tie at distance 1; insertion order decides.
	assert.Equal(t, 1.0, got[1].Distance)
	assert.True(t, mat.Equal(vectest.Vec(1, 0), got[1].Vector))
}

// Brute must agree with a naive sort over all pairwise distances for
// every limit.
func TestBrute_MatchesNaiveScan(t *testing.T) {
	const n = 40

	points := vectest.UniformPoints(6, n, rand.NewPCG(11, 12))
	queries := vectest.UniformPoints(6, 5, rand.NewPCG(13, 14))

	s := NewBrute()
	for _, p := range points {
		require.NoError(t, s.Add(p))
	}

	for _, q := range queries {
		naive := make([]Match, n)
		for i, p := range points {
			naive[i] = Match{Vector: p, Distance: distance.SquaredEuclidean(q, p)}
		}
		sort.SliceStable(naive, func(i, j int) bool {
			return naive[i].Distance < naive[j].Distance
		})

		for _, limit := range []int{1, 3, n, n + 5} {
			got, err := s.Search(q, limit)
			require.NoError(t, err)
			assert.Equal(t, naive[:min(limit, n)], got)
		}
	}
}

func TestBrute_RemoveOldestWithinEpsilon(t *testing.T) {
	s := NewBrute()
	require.NoError(t, s.Add(vectest.Vec(0, 0)))
	require.NoError(t, s.Add(vectest.Vec(0.1, 0)))
	require.NoError(t, s.Add(vectest.Vec(5, 5)))

	removed, err := s.Remove(vectest.Vec(0.05, 0), 0.1)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, 2, s.Len())

	// The oldest of the two near points went first.
	got, err := s.Search(vectest.Vec(0, 0), 1)
	require.NoError(t, err)
	assert.True(t, mat.Equal(vectest.Vec(0.1, 0), got[0].Vector))
}

func TestBrute_CustomDistance(t *testing.T) {
	s := NewBrute(func(o *BruteOptions) {
		o.Distance = distance.Cosine
	})

	require.NoError(t, s.Add(vectest.Vec(0, 1)))
	require.NoError(t, s.Add(vectest.Vec(10, 10)))

	// Cosine ignores magnitude: (10,10) points the same way as (1,1).
	got, err := s.Search(vectest.Vec(1, 1), 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, got[0].Distance, 1e-12)
	assert.True(t, mat.Equal(vectest.Vec(10, 10), got[0].Vector))
}
