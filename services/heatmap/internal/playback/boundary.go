package playback

import "slices"

// DefaultBudget is the bucket budget used when a caller passes a budget <= 0.
const DefaultBudget = 50

// MergeBoundaries unions the given boundary sets into one ascending, duplicate
// free sequence describing at most budget buckets (budget+1 boundaries).
//
// When the union is too large it is downsampled: the first and last points are
// always kept, and an interior point survives only if it lies at least
// last/budget past the previously kept point. The result depends on which
// points are present, so it is not stable across reduction tree shapes.
func MergeBoundaries(sets [][]float64, budget int) []float64 {
	if budget <= 0 {
		budget = DefaultBudget
	}
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	if n == 0 {
		return nil
	}
	all := make([]float64, 0, n)
	for _, s := range sets {
		all = append(all, s...)
	}
	slices.Sort(all)
	all = slices.Compact(all)

	if len(all)-1 <= budget {
		return all
	}
	return downsample(all, budget)
}

func downsample(points []float64, budget int) []float64 {
	first, last := points[0], points[len(points)-1]
	minDist := last / float64(budget)
	if first < 0 {
		// last/budget only bounds the bucket count for non-negative timelines.
		minDist = (last - first) / float64(budget)
	}

	kept := make([]float64, 1, budget+1)
	kept[0] = first
	prev := first
	for _, p := range points[1 : len(points)-1] {
		if p-prev >= minDist {
			kept = append(kept, p)
			prev = p
		}
	}
	// Rounding in the distance test can admit one interior point too many.
	for len(kept) > budget {
		kept = kept[:len(kept)-1]
	}
	return append(kept, last)
}
