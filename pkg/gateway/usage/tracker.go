// Package usage accumulates token-usage records for one turn. The runtime
// re-emits identical usage figures across content fragments of the same
// logical message, so accumulation is keyed by message identity and each
// identity is counted at most once.
package usage

import "github.com/agentgate-dev/agentgate/pkg/gateway/runtime"

// Stats holds the four token counters for a turn.
type Stats struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens"`
}

// Tracker de-duplicates and accumulates usage records. The zero value is not
// usable; construct with NewTracker. Tracker is not safe for concurrent use;
// one turn owns one tracker.
type Tracker struct {
	seen   map[string]struct{}
	totals Stats
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// Track adds u's counters into the running totals unless u is nil or
// messageID was already tracked. Missing counters count as 0.
func (t *Tracker) Track(messageID string, u *runtime.Usage) {
	if u == nil {
		return
	}
	if _, ok := t.seen[messageID]; ok {
		return
	}
	t.seen[messageID] = struct{}{}
	t.totals.InputTokens += u.InputTokens
	t.totals.OutputTokens += u.OutputTokens
	t.totals.CacheReadTokens += u.CacheReadTokens
	t.totals.CacheCreationTokens += u.CacheCreationTokens
}

// SetTotals replaces all four counters with u's, independent of the
// de-duplication set. The runtime's terminal message carries authoritative
// cumulative totals that supersede the incremental estimate.
func (t *Tracker) SetTotals(u *runtime.Usage) {
	if u == nil {
		u = &runtime.Usage{}
	}
	t.totals = Stats{
		InputTokens:         u.InputTokens,
		OutputTokens:        u.OutputTokens,
		CacheReadTokens:     u.CacheReadTokens,
		CacheCreationTokens: u.CacheCreationTokens,
	}
}

// Stats returns a snapshot copy of the current totals.
func (t *Tracker) Stats() Stats {
	return t.totals
}

// Reset clears the de-duplication set and zeroes all counters, allowing
// previously-seen message identities to be tracked again.
func (t *Tracker) Reset() {
	t.seen = make(map[string]struct{})
	t.totals = Stats{}
}
