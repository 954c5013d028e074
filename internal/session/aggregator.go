// Package session owns the live video annotation pipeline: the start/stop
// state machine, the per-session emotion counts and the pull-based stream.
package session

// Snapshot is a point-in-time copy of aggregated counts.
type Snapshot struct {
	Counts map[string]int `json:"summary"`
	Total  int            `json:"total"`
}

// Aggregator tallies labels. Total always equals the sum of Counts.
// It is not safe for concurrent use; Controller serializes access.
type Aggregator struct {
	counts map[string]int
	total  int
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{counts: make(map[string]int)}
}

// Reset empties the tally.
func (a *Aggregator) Reset() {
	a.counts = make(map[string]int)
	a.total = 0
}

// Increment adds one occurrence of label.
func (a *Aggregator) Increment(label string) {
	a.counts[label]++
	a.total++
}

// Snapshot returns a copy of the current tally.
func (a *Aggregator) Snapshot() Snapshot {
	counts := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		counts[k] = v
	}
	return Snapshot{Counts: counts, Total: a.total}
}
