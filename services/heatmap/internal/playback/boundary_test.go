package playback

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeBoundaries_SortsNumericallyAndDeduplicates(t *testing.T) {
	got := MergeBoundaries([][]float64{{100, 9}, {10, 9, 2}}, 50)
	assert.Equal(t, []float64{2, 9, 10, 100}, got)
}

func TestMergeBoundaries_Empty(t *testing.T) {
	assert.Empty(t, MergeBoundaries(nil, 50))
	assert.Empty(t, MergeBoundaries([][]float64{{}, nil}, 50))
}

func TestMergeBoundaries_WithinBudgetUnchanged(t *testing.T) {
	pts := []float64{0, 1, 2, 3, 4, 5}
	assert.Equal(t, pts, MergeBoundaries([][]float64{pts}, 5))
}

func TestMergeBoundaries_Downsamples(t *testing.T) {
	pts := make([]float64, 101)
	for i := range pts {
		pts[i] = float64(i)
	}
	got := MergeBoundaries([][]float64{pts}, 10)
	assert.Equal(t, []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, got)
}

func TestMergeBoundaries_KeepsFirstAndLast(t *testing.T) {
	got := MergeBoundaries([][]float64{{0, 0.5, 1, 1.5, 2, 97, 98, 99, 100}}, 2)
	require.Len(t, got, 3)
	assert.Equal(t, 0.0, got[0])
	assert.Equal(t, 100.0, got[len(got)-1])
}

func TestMergeBoundaries_BudgetOne(t *testing.T) {
	got := MergeBoundaries([][]float64{{3, 1, 2, 7}}, 1)
	assert.Equal(t, []float64{1, 7}, got)
}

func TestMergeBoundaries_DefaultBudget(t *testing.T) {
	pts := make([]float64, 500)
	for i := range pts {
		pts[i] = float64(i)
	}
	got := MergeBoundaries([][]float64{pts}, 0)
	assert.LessOrEqual(t, len(got), DefaultBudget+1)
}

func TestMergeBoundaries_NegativeStillBounded(t *testing.T) {
	pts := make([]float64, 400)
	for i := range pts {
		pts[i] = float64(i) - 300
	}
	got := MergeBoundaries([][]float64{pts}, 20)
	assert.LessOrEqual(t, len(got), 21)
	assert.Equal(t, -300.0, got[0])
	assert.Equal(t, 99.0, got[len(got)-1])
}

func TestMergeBoundaries_PropertyBounded(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 300; i++ {
		budget := 1 + r.IntN(80)
		var sets [][]float64
		for s := 0; s < 1+r.IntN(20); s++ {
			set := make([]float64, r.IntN(40))
			for k := range set {
				set[k] = r.Float64() * 7200
			}
			sets = append(sets, set)
		}
		got := MergeBoundaries(sets, budget)
		require.LessOrEqual(t, len(got), budget+1)
		require.True(t, sort.Float64sAreSorted(got))
		for k := 1; k < len(got); k++ {
			require.Less(t, got[k-1], got[k])
		}
	}
}
