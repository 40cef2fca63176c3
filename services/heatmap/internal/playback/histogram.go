package playback

import "fmt"

// Operand is an input to Combine: a leaf Sequence, whose intervals each weigh
// one, or a Histogram produced by an earlier Combine.
type Operand interface {
	isOperand()
}

// Histogram counts, for every bucket [Boundaries[i], Boundaries[i+1]), how many
// coalesced intervals covered it.
type Histogram struct {
	Boundaries []float64 `json:"borders"`
	Counts     []int64   `json:"heatmap"`
}

func (Histogram) isOperand() {}

// Section is one bucket of a histogram.
type Section struct {
	From  float64 `json:"from"`
	Until float64 `json:"until"`
	Plays int64   `json:"plays"`
}

// Buckets returns the number of buckets.
func (h Histogram) Buckets() int { return len(h.Counts) }

// Empty reports whether h has no buckets.
func (h Histogram) Empty() bool { return len(h.Counts) == 0 }

// Sections returns the buckets as (from, until, plays) triples.
func (h Histogram) Sections() []Section {
	out := make([]Section, len(h.Counts))
	for i, c := range h.Counts {
		out[i] = Section{From: h.Boundaries[i], Until: h.Boundaries[i+1], Plays: c}
	}
	return out
}

// MaxPlays returns the highest bucket count, or 0 for an empty histogram.
func (h Histogram) MaxPlays() int64 {
	var m int64
	for _, c := range h.Counts {
		if c > m {
			m = c
		}
	}
	return m
}

// Played reports whether any bucket has a non-zero count.
func (h Histogram) Played() bool {
	for _, c := range h.Counts {
		if c != 0 {
			return true
		}
	}
	return false
}

// Mass returns the total coverage: the sum of count × width over all buckets.
func (h Histogram) Mass() float64 {
	var m float64
	for i, c := range h.Counts {
		m += float64(c) * (h.Boundaries[i+1] - h.Boundaries[i])
	}
	return m
}

// PadTo returns a copy of h extended with a zero bucket up to duration when
// the episode is longer than the last boundary.
func (h Histogram) PadTo(duration float64) Histogram {
	out := h.clone()
	if len(out.Boundaries) == 0 || duration <= out.Boundaries[len(out.Boundaries)-1] {
		return out
	}
	out.Boundaries = append(out.Boundaries, duration)
	out.Counts = append(out.Counts, 0)
	return out
}

// Validate checks the Histogram invariants.
func (h Histogram) Validate() error {
	if len(h.Boundaries) == 0 && len(h.Counts) == 0 {
		return nil
	}
	if len(h.Counts) != len(h.Boundaries)-1 {
		return fmt.Errorf("%d counts for %d boundaries", len(h.Counts), len(h.Boundaries))
	}
	for i, b := range h.Boundaries {
		if !finite(b) {
			return fmt.Errorf("boundary %d is not finite", i)
		}
		if i > 0 && h.Boundaries[i-1] >= b {
			return fmt.Errorf("boundary %d: %v not above %v", i, b, h.Boundaries[i-1])
		}
	}
	for i, c := range h.Counts {
		if c < 0 {
			return fmt.Errorf("bucket %d: negative count %d", i, c)
		}
	}
	return nil
}

func (h Histogram) clone() Histogram {
	if len(h.Boundaries) == 0 {
		return Histogram{}
	}
	return Histogram{
		Boundaries: append([]float64(nil), h.Boundaries...),
		Counts:     append([]int64(nil), h.Counts...),
	}
}
