package playback

import (
	"fmt"
	"sort"
)

// Interval is the half-open range [Start, End) on an episode timeline.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Len returns the length of the interval.
func (iv Interval) Len() float64 { return iv.End - iv.Start }

// Sequence is the coalesced playback of one record: ascending intervals with a
// strict gap between neighbours.
type Sequence []Interval

func (Sequence) isOperand() {}

// Validate checks the Sequence invariants.
func (s Sequence) Validate() error {
	for i, iv := range s {
		if !finite(iv.Start) || !finite(iv.End) || iv.End < iv.Start {
			return fmt.Errorf("interval %d: malformed [%v, %v)", i, iv.Start, iv.End)
		}
		if i > 0 && s[i-1].End >= iv.Start {
			return fmt.Errorf("interval %d: [%v, %v) does not start after %v", i, iv.Start, iv.End, s[i-1].End)
		}
	}
	return nil
}

// Len returns the total covered length of the sequence.
func (s Sequence) Len() float64 {
	var total float64
	for _, iv := range s {
		total += iv.Len()
	}
	return total
}

// Actions converts s back into play actions, so a sequence can be coalesced again.
func (s Sequence) Actions() []Action {
	out := make([]Action, 0, len(s))
	for _, iv := range s {
		out = append(out, PlayAction(iv.Start, iv.End))
	}
	return out
}

// Coalesce reduces the timed actions of a record to a Sequence. Actions
// without a start or end position, with end < start, with a negative start or
// with a NaN or infinite position are skipped; the input slice is not
// modified. An empty result means the record contributes nothing.
func Coalesce(actions []Action) Sequence {
	timed := make([]Interval, 0, len(actions))
	for _, a := range actions {
		if a.timed() {
			timed = append(timed, Interval{Start: *a.Started, End: *a.Position})
		}
	}
	if len(timed) == 0 {
		return nil
	}
	sort.SliceStable(timed, func(i, j int) bool { return timed[i].Start < timed[j].Start })

	out := make(Sequence, 0, len(timed))
	cur := timed[0]
	for _, next := range timed[1:] {
		switch {
		case next.Start <= cur.End && next.End >= cur.End:
			cur.End = next.End
		case next.Start >= cur.Start && next.End <= cur.End:
			// contained
		default:
			out = append(out, cur)
			cur = next
		}
	}
	return append(out, cur)
}
