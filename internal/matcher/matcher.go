// Package matcher drives the Kleene-plus pattern state machine one event at
// a time: it evicts expired chains, extends existing ones, closes chains
// that terminate on this event, and always seeds a fresh length-1 chain.
// See spec.md §4.3 for the per-event contract this package implements
// verbatim.
package matcher

import (
	"github.com/rs/zerolog"

	"github.com/corvidlabs/bikecep/internal/cep"
	"github.com/corvidlabs/bikecep/internal/event"
	"github.com/corvidlabs/bikecep/internal/index"
)

// CapSource supplies the current dynamic Kleene cap. In hybrid shedding
// mode this value can change between events; the matcher reads it once per
// event, at the start of the per-event step (spec.md §5's "well-defined
// points" rule).
type CapSource interface {
	CurrentCap() int
}

// staticCap is a CapSource that never changes, used when the cap is fixed
// by pattern configuration alone (shedding mode "off").
type staticCap int

func (s staticCap) CurrentCap() int { return int(s) }

// StaticCap wraps a fixed Kleene cap as a CapSource.
func StaticCap(n int) CapSource { return staticCap(n) }

// Matcher owns a PartialMatchIndex and the fixed terminator/window
// predicates, and advances the pattern one event at a time.
type Matcher struct {
	idx           *index.Index
	targetEndLocs map[string]struct{}
	window        int64
	prevStartTime int64
	haveSeen      bool
}

// New constructs a Matcher over a fresh index with the given window
// (seconds) and terminator set. log is threaded into the index for
// eviction-batch debug logging.
func New(windowSeconds int64, targetEndLocs map[string]struct{}, log zerolog.Logger) *Matcher {
	return &Matcher{
		idx:           index.New(windowSeconds, log),
		targetEndLocs: targetEndLocs,
		window:        windowSeconds,
	}
}

// Index exposes the underlying PartialMatchIndex, e.g. for counters.
func (m *Matcher) Index() *index.Index {
	return m.idx
}

// checkMonotonic reports a *cep.WindowUnderflowError when e regresses
// relative to the previous event's start_time. The caller (driver) is
// responsible for turning this into a dropped event and counter increment
// per spec.md §7; the matcher itself just reports it so it never advances
// state on an out-of-order event.
func (m *Matcher) checkMonotonic(e event.Event) error {
	if m.haveSeen && e.StartTime < m.prevStartTime {
		return &cep.WindowUnderflowError{
			EventID:       e.ID,
			StartTime:     e.StartTime,
			PrevStartTime: m.prevStartTime,
		}
	}
	m.prevStartTime = e.StartTime
	m.haveSeen = true
	return nil
}

// chainOK is the chaining predicate: e may extend pm.
func chainOK(pm index.PartialMatch, e event.Event, window int64, cap int) bool {
	return pm.TailEndLoc == e.StartLoc &&
		e.StartTime >= pm.TailEndTime &&
		e.EndTime-pm.AnchorTime <= window &&
		pm.Length()+1 <= cap
}

// terminatorOK is the closure predicate: e, chained onto pm, closes the
// pattern. e.EndLoc must be a target terminator value, the chaining
// equality must hold (e.StartLoc == pm.TailEndLoc, non-decreasing time),
// and the whole span must fit the window. Per spec.md §9 Open Question (i),
// this adopts the non-degenerate reading: b is an ordinary chain-continuing
// event that additionally terminates because its end_loc is in T. The
// literal "a[last].end == b.end" condition (pm.TailEndLoc == e.EndLoc) is
// not checked: together with the chain link e.StartLoc == pm.TailEndLoc it
// would only admit trips with e.StartLoc == e.EndLoc.
func terminatorOK(pm index.PartialMatch, e event.Event, window int64, targets map[string]struct{}) bool {
	if _, isTarget := targets[e.EndLoc]; !isTarget {
		return false
	}
	if pm.TailEndLoc != e.StartLoc {
		return false
	}
	if e.StartTime < pm.TailEndTime {
		return false
	}
	if e.EndTime-pm.AnchorTime > window {
		return false
	}
	return true
}

// Step advances the matcher by exactly one event, per spec.md §4.3. err is
// a *cep.WindowUnderflowError when e was not processed further (it
// regressed relative to the previous event's start_time); matches are the
// Matches emitted by this step's terminator closures, in deterministic
// emission order.
func (m *Matcher) Step(e event.Event, caps CapSource) (matches []event.Match, err error) {
	if err := m.checkMonotonic(e); err != nil {
		return nil, err
	}

	// 1. Window eviction, before this event's chains are considered.
	m.idx.EvictExpired(e.StartTime)

	cap := caps.CurrentCap()

	// Snapshot of chains live for this key before this event touches the
	// index; step 3's closure pass needs both these and any chains step 2
	// installs, in index-insertion order.
	original := m.idx.CandidatesFor(e.CorrelationKey)
	originalSnapshot := make([]index.PartialMatch, len(original))
	copy(originalSnapshot, original)

	// 2. Chain extension (Kleene continuation). Non-destructive: the
	// original pm survives so a later event can extend it along a
	// different branch.
	var extended []index.PartialMatch
	for _, pm := range originalSnapshot {
		if chainOK(pm, e, m.window, cap) {
			extended = append(extended, m.idx.Extend(pm, e))
		}
	}

	// 3. Terminator closure, over originals first then the chains just
	// installed in step 2, preserving index-insertion order.
	for _, pm := range originalSnapshot {
		if terminatorOK(pm, e, m.window, m.targetEndLocs) {
			matches = append(matches, buildMatch(pm, e))
		}
	}
	for _, pm := range extended {
		if terminatorOK(pm, e, m.window, m.targetEndLocs) {
			matches = append(matches, buildMatch(pm, e))
		}
	}

	// 4. Seeding. Unconditional (a terminator event is also seeded as a
	// fresh a[1]), and last, so the newly seeded length-1 chain cannot
	// close on the same event.
	if cap >= 1 {
		m.idx.Seed(e)
	}

	return matches, nil
}

func buildMatch(pm index.PartialMatch, terminator event.Event) event.Match {
	chain := make([]event.Event, len(pm.Events))
	copy(chain, pm.Events)
	return event.Match{
		Chain:      chain,
		Terminator: terminator,
	}
}
