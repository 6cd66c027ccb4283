// Package event defines the value types that flow through the pattern
// matching core: ingress trips, the partial and complete matches built
// from them, and the projections exported for recall scoring.
package event

import "fmt"

// Event is an immutable bike-trip record. Once constructed it is never
// mutated. It is carried by value: PartialMatches and Matches each hold
// their own copies of their Events, not references to shared ones.
type Event struct {
	ID            string
	CorrelationKey string
	StartLoc      string
	EndLoc        string
	StartTime     int64 // logical seconds, source-provided
	EndTime       int64
	IngestSeq     int64 // monotonic arrival index assigned by the driver
}

// Duration returns EndTime - StartTime. Callers that construct an Event
// directly (bypassing the ingest adapter's validation) are responsible for
// ensuring it is non-negative.
func (e Event) Duration() int64 {
	return e.EndTime - e.StartTime
}

func (e Event) String() string {
	return fmt.Sprintf("Event{id=%s key=%s %s->%s [%d,%d]}",
		e.ID, e.CorrelationKey, e.StartLoc, e.EndLoc, e.StartTime, e.EndTime)
}

// Match is a completed (a[1..k], b) tuple satisfying every pattern
// predicate. DetectedAtMillis is the driver's Clock reading (not logical
// time) taken right after the matcher step that detected the Match; it is
// used solely for latency accounting.
type Match struct {
	Chain            []Event // a[1..k]
	Terminator       Event   // b
	DetectedAtMillis int64
}

// Projection is the externally observable triple emitted per Match, and the
// unit of comparison for recall scoring.
type Projection struct {
	Start string // a[1].StartLoc
	Mid   string // a[last].EndLoc
	End   string // b.EndLoc
}

// Project reduces a Match to its Projection.
func (m Match) Project() Projection {
	last := m.Chain[len(m.Chain)-1]
	return Projection{
		Start: m.Chain[0].StartLoc,
		Mid:   last.EndLoc,
		End:   m.Terminator.EndLoc,
	}
}

func (p Projection) String() string {
	return fmt.Sprintf("(%s,%s,%s)", p.Start, p.Mid, p.End)
}
