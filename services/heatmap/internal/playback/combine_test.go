package playback

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombine_NoOperands(t *testing.T) {
	h := Combine(nil, 50)
	assert.True(t, h.Empty())
	assert.Empty(t, h.Boundaries)
	assert.Empty(t, h.Counts)
}

func TestCombine_EmptySequences(t *testing.T) {
	h := Combine([]Operand{Sequence(nil), Histogram{}}, 50)
	assert.True(t, h.Empty())
}

func TestCombine_EndToEnd(t *testing.T) {
	first := Coalesce([]Action{PlayAction(0, 30), PlayAction(25, 60)})
	second := Coalesce([]Action{PlayAction(10, 20)})

	h := Combine([]Operand{first, second}, 50)
	require.NoError(t, h.Validate())
	assert.Equal(t, []float64{0, 10, 20, 60}, h.Boundaries)
	assert.Equal(t, []int64{1, 2, 1}, h.Counts)
	assert.Equal(t, int64(2), h.MaxPlays())
	assert.InDelta(t, 70.0, h.Mass(), 1e-9)
}

func TestCombine_ZeroLengthCoversNothing(t *testing.T) {
	h := Combine([]Operand{Sequence{{5, 5}}}, 50)
	assert.True(t, h.Empty())

	h = Combine([]Operand{Sequence{{5, 5}}, Sequence{{0, 10}}}, 50)
	assert.Equal(t, []float64{0, 5, 10}, h.Boundaries)
	assert.Equal(t, []int64{1, 1}, h.Counts)
}

func TestCombine_Rereduce(t *testing.T) {
	a := Sequence{{0, 10}, {20, 30}}
	b := Sequence{{5, 25}}
	c := Sequence{{0, 40}}

	direct := Combine([]Operand{a, b, c}, 50)
	nested := Combine([]Operand{Combine([]Operand{a, b}, 50), c}, 50)

	assert.Equal(t, direct, nested)
	assert.Equal(t, []float64{0, 5, 10, 20, 25, 30, 40}, direct.Boundaries)
	assert.Equal(t, []int64{2, 3, 2, 3, 2, 1}, direct.Counts)
}

func TestCombine_DoesNotModifyInputs(t *testing.T) {
	h := Histogram{Boundaries: []float64{0, 10, 20}, Counts: []int64{1, 2}}
	s := Sequence{{5, 15}}
	_ = Combine([]Operand{h, s}, 50)
	assert.Equal(t, []float64{0, 10, 20}, h.Boundaries)
	assert.Equal(t, []int64{1, 2}, h.Counts)
	assert.Equal(t, Sequence{{5, 15}}, s)
}

func randomSequences(r *rand.Rand, n int, duration float64) []Operand {
	out := make([]Operand, 0, n)
	for i := 0; i < n; i++ {
		seq := Coalesce(randomActions(r, 1+r.IntN(6), duration))
		if len(seq) > 0 {
			out = append(out, seq)
		}
	}
	return out
}

func operandMass(op Operand) float64 {
	switch v := op.(type) {
	case Sequence:
		return v.Len()
	case Histogram:
		return v.Mass()
	}
	return 0
}

// spanWeight is the summed weight of the spans Combine projects for op.
func spanWeight(op Operand) float64 {
	switch v := op.(type) {
	case Sequence:
		return float64(len(v))
	case Histogram:
		var w float64
		for _, c := range v.Counts {
			w += float64(c)
		}
		return w
	}
	return 0
}

func maxWidth(h Histogram) float64 {
	var m float64
	for i := 1; i < len(h.Boundaries); i++ {
		m = math.Max(m, h.Boundaries[i]-h.Boundaries[i-1])
	}
	return m
}

// combineError is the largest mass difference one Combine call may introduce:
// each span moves by less than one output bucket.
func combineError(ops []Operand, out Histogram) float64 {
	var w float64
	for _, op := range ops {
		w += spanWeight(op)
	}
	return w * maxWidth(out)
}

func totalMass(ops []Operand) float64 {
	var m float64
	for _, op := range ops {
		m += operandMass(op)
	}
	return m
}

func TestCombine_PropertyBucketBound(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	for i := 0; i < 100; i++ {
		budget := 1 + r.IntN(60)
		ops := randomSequences(r, 1+r.IntN(100), 3600)
		h := Combine(ops, budget)
		require.NoError(t, h.Validate())
		require.LessOrEqual(t, h.Buckets(), budget)
		require.LessOrEqual(t, len(h.Boundaries), budget+1)

		again := Combine([]Operand{h, h, ops[0]}, budget)
		require.NoError(t, again.Validate())
		require.LessOrEqual(t, again.Buckets(), budget)
	}
}

func TestCombine_PropertyMassConservedWithinBudget(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 14))
	for i := 0; i < 100; i++ {
		// endpoints on a 60s grid over 30 minutes stay under the budget
		var ops []Operand
		for k := 0; k < 1+r.IntN(20); k++ {
			var actions []Action
			for a := 0; a < 1+r.IntN(4); a++ {
				start := float64(r.IntN(30)) * 60
				actions = append(actions, PlayAction(start, start+float64(1+r.IntN(9))*60))
			}
			if seq := Coalesce(actions); len(seq) > 0 {
				ops = append(ops, seq)
			}
		}
		h := Combine(ops, 50)
		require.InDelta(t, totalMass(ops), h.Mass(), 1e-6)

		split := len(ops) / 2
		left := Combine(ops[:split], 50)
		right := Combine(ops[split:], 50)
		require.Equal(t, h, Combine([]Operand{left, right}, 50))
	}
}

func TestCombine_PropertyMassWithinResolution(t *testing.T) {
	r := rand.New(rand.NewPCG(15, 16))
	for i := 0; i < 100; i++ {
		budget := 5 + r.IntN(50)
		ops := randomSequences(r, 2+r.IntN(60), 3600)
		h := Combine(ops, budget)
		require.InDelta(t, totalMass(ops), h.Mass(), combineError(ops, h)+1e-6)
	}
}

func TestCombine_GroupingAgreesWithinResolution(t *testing.T) {
	r := rand.New(rand.NewPCG(17, 18))
	for i := 0; i < 50; i++ {
		const budget = 20
		a := Combine(randomSequences(r, 20, 3600), budget)
		b := Combine(randomSequences(r, 20, 3600), budget)
		c := Combine(randomSequences(r, 20, 3600), budget)

		ab := Combine([]Operand{a, b}, budget)
		leftOps := []Operand{ab, c}
		left := Combine(leftOps, budget)

		bc := Combine([]Operand{b, c}, budget)
		rightOps := []Operand{a, bc}
		right := Combine(rightOps, budget)

		truth := a.Mass() + b.Mass() + c.Mass()
		leftErr := combineError([]Operand{a, b}, ab) + combineError(leftOps, left)
		rightErr := combineError([]Operand{b, c}, bc) + combineError(rightOps, right)

		require.InDelta(t, truth, left.Mass(), leftErr+1e-6)
		require.InDelta(t, truth, right.Mass(), rightErr+1e-6)
		require.InDelta(t, left.Mass(), right.Mass(), leftErr+rightErr+1e-6)
		require.LessOrEqual(t, left.Buckets(), budget)
		require.LessOrEqual(t, right.Buckets(), budget)
	}
}
