package playback

// Combine merges leaf sequences and earlier histograms into a new Histogram of
// at most budget buckets. Inputs are not modified. Combine of no operands (or
// of operands without any interval) is the empty Histogram.
//
// Operands must satisfy their invariants (see Sequence.Validate and
// Histogram.Validate); violating them yields meaningless counts, not an error.
func Combine(ops []Operand, budget int) Histogram {
	sets := make([][]float64, 0, len(ops))
	for _, op := range ops {
		switch v := op.(type) {
		case Sequence:
			pts := make([]float64, 0, 2*len(v))
			for _, iv := range v {
				pts = append(pts, iv.Start, iv.End)
			}
			sets = append(sets, pts)
		case Histogram:
			sets = append(sets, v.Boundaries)
		}
	}

	borders := MergeBoundaries(sets, budget)
	if len(borders) < 2 {
		// A single distinct point (zero-length intervals only) spans no bucket.
		return Histogram{}
	}

	counts := make([]int64, len(borders)-1)
	for _, op := range ops {
		p := projector{borders: borders, counts: counts}
		switch v := op.(type) {
		case Sequence:
			for _, iv := range v {
				p.add(iv.Start, iv.End, 1)
			}
		case Histogram:
			for i, c := range v.Counts {
				if c != 0 {
					p.add(v.Boundaries[i], v.Boundaries[i+1], c)
				}
			}
		}
	}
	return Histogram{Boundaries: borders, Counts: counts}
}

// projector re-buckets the ascending spans of one operand onto borders.
type projector struct {
	borders []float64
	counts  []int64
	j       int
}

// add credits weight to every bucket starting before until, beginning with the
// first bucket whose lower border is not below from.
func (p *projector) add(from, until float64, weight int64) {
	for p.j < len(p.counts) && p.borders[p.j] < from {
		p.j++
	}
	for p.j < len(p.counts) && p.borders[p.j] < until {
		p.counts[p.j] += weight
		p.j++
	}
}
