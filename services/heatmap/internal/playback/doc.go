// Package playback turns per-user playback actions into episode heatmaps.
//
// The pipeline has two stages. Coalesce reduces the actions of one record to a
// minimal ascending Sequence of intervals. Combine merges any mix of sequences
// (leaves) and previously combined histograms into a new Histogram whose bucket
// count never exceeds the boundary budget, so it can be applied to its own
// output at every level of a reduction tree.
//
// Once the budget is exceeded boundaries are downsampled and counts become
// approximate: two reduction trees over the same records may produce different
// buckets. Only the bucket bound and the total coverage mass (within one bucket
// width per span) are stable across tree shapes.
package playback
