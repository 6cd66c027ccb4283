// Package index maintains the per-correlation-key set of live, growing
// Kleene chains (PartialMatches), with window-based eviction. There is no
// cross-key interaction: every operation is scoped to a single
// correlation key's FIFO.
package index

import (
	"github.com/rs/zerolog"

	"github.com/corvidlabs/bikecep/internal/event"
)

// PartialMatch is a non-empty ordered a[1..k] prefix held in the index.
// Events is never mutated in place: extension always produces a new
// PartialMatch whose Events is a freshly allocated copy of the prefix plus
// the new event.
type PartialMatch struct {
	Key         string
	Events      []event.Event
	AnchorTime  int64 // Events[0].StartTime, invariant once created
	TailEndLoc  string
	TailEndTime int64
}

// Length returns k, the number of a-events in the chain.
func (pm PartialMatch) Length() int {
	return len(pm.Events)
}

// extend returns a new PartialMatch formed by appending e to pm. It does
// not mutate pm or pm.Events; the original chain remains installed and
// extendable by a different branch.
func (pm PartialMatch) extend(e event.Event) PartialMatch {
	events := make([]event.Event, len(pm.Events)+1)
	copy(events, pm.Events)
	events[len(pm.Events)] = e
	return PartialMatch{
		Key:         pm.Key,
		Events:      events,
		AnchorTime:  pm.AnchorTime,
		TailEndLoc:  e.EndLoc,
		TailEndTime: e.EndTime,
	}
}

// seed returns a new length-1 PartialMatch containing only e.
func seed(e event.Event) PartialMatch {
	return PartialMatch{
		Key:         e.CorrelationKey,
		Events:      []event.Event{e},
		AnchorTime:  e.StartTime,
		TailEndLoc:  e.EndLoc,
		TailEndTime: e.EndTime,
	}
}

// Counters reports index-level observability, per spec.md §4.2.
type Counters struct {
	Evictions int64
}

// Index is the PartialMatchIndex of spec.md §3/§4.2: a map from
// correlation key to an insertion-ordered list of live chains.
// It is exclusively owned by the matcher; there are no locks, matching
// the single-threaded cooperative scheduling model of spec.md §5.
type Index struct {
	window   int64
	byKey    map[string][]PartialMatch
	counters Counters
	log      zerolog.Logger
}

// New constructs an empty Index with the given time window, in the same
// units as Event.StartTime/EndTime (seconds). log receives debug-level
// records for eviction batches, per SPEC_FULL.md §3's ambient logging
// requirement.
func New(windowSeconds int64, log zerolog.Logger) *Index {
	return &Index{
		window: windowSeconds,
		byKey:  make(map[string][]PartialMatch),
		log:    log,
	}
}

// EvictExpired removes, for every key, PartialMatches whose
// AnchorTime + W < nowEventTime. Every chain of every key is checked: an
// extension keeps its parent's anchor but is appended after chains seeded
// later, so a key's slice is not ordered by anchor time. Surviving chains
// keep their relative order.
func (idx *Index) EvictExpired(nowEventTime int64) {
	for key, chains := range idx.byKey {
		remaining := chains[:0]
		for _, pm := range chains {
			if pm.AnchorTime+idx.window >= nowEventTime {
				remaining = append(remaining, pm)
			}
		}
		cut := len(chains) - len(remaining)
		if cut == 0 {
			continue
		}
		idx.counters.Evictions += int64(cut)
		idx.log.Debug().
			Str("key", key).
			Int("evicted", cut).
			Int("remaining", len(chains)-cut).
			Int64("now", nowEventTime).
			Msg("index: evicted expired partial matches")
		if len(remaining) == 0 {
			delete(idx.byKey, key)
			continue
		}
		// Retire the evicted Events' slice promptly rather than holding a
		// window onto a larger backing array.
		trimmed := make([]PartialMatch, len(remaining))
		copy(trimmed, remaining)
		idx.byKey[key] = trimmed
	}
}

// CandidatesFor returns the live chains for key in stable, oldest-first
// order. The returned slice must not be mutated by the caller; it is the
// index's live backing storage.
func (idx *Index) CandidatesFor(key string) []PartialMatch {
	return idx.byKey[key]
}

// Install appends a freshly constructed PartialMatch to its key's FIFO.
// Callers are responsible for respecting the current Kleene cap before
// calling Install; the index itself does not enforce it, since the cap is
// dynamic and owned by the shedding controller (spec.md §4.4).
func (idx *Index) Install(pm PartialMatch) {
	idx.byKey[pm.Key] = append(idx.byKey[pm.Key], pm)
}

// Extend is a convenience wrapper combining extend+Install for a
// (pm, event) pair, returning the newly installed chain.
func (idx *Index) Extend(pm PartialMatch, e event.Event) PartialMatch {
	next := pm.extend(e)
	idx.Install(next)
	return next
}

// Seed installs a new length-1 chain for e and returns it.
func (idx *Index) Seed(e event.Event) PartialMatch {
	pm := seed(e)
	idx.Install(pm)
	return pm
}

// Counters returns the current eviction counters for observability.
func (idx *Index) Counters() Counters {
	return idx.counters
}
