package index

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/corvidlabs/bikecep/internal/event"
)

func TestSeedAndCandidates(t *testing.T) {
	idx := New(3600, zerolog.Nop())

	e := event.Event{ID: "e1", CorrelationKey: "bike-1", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 100}
	pm := idx.Seed(e)

	assert.Equal(t, "bike-1", pm.Key)
	assert.Equal(t, 1, pm.Length())
	assert.Equal(t, "B", pm.TailEndLoc)

	candidates := idx.CandidatesFor("bike-1")
	assert.Len(t, candidates, 1)
	assert.Empty(t, idx.CandidatesFor("bike-2"))
}

func TestExtendIsNonDestructive(t *testing.T) {
	idx := New(3600, zerolog.Nop())

	e1 := event.Event{ID: "e1", CorrelationKey: "bike-1", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 100}
	pm := idx.Seed(e1)

	e2 := event.Event{ID: "e2", CorrelationKey: "bike-1", StartLoc: "B", EndLoc: "C", StartTime: 100, EndTime: 200}
	pm2 := idx.Extend(pm, e2)

	// Both pm and pm2 remain live; extension did not destroy the original.
	candidates := idx.CandidatesFor("bike-1")
	assert.Len(t, candidates, 2)
	assert.Equal(t, 1, pm.Length())
	assert.Equal(t, 2, pm2.Length())
	assert.Equal(t, "C", pm2.TailEndLoc)

	// pm's own Events slice must be untouched by the extension.
	assert.Len(t, pm.Events, 1)
}

func TestEvictExpiredRemovesOnlyStaleChains(t *testing.T) {
	idx := New(100, zerolog.Nop())

	old := event.Event{ID: "e1", CorrelationKey: "bike-1", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 10}
	idx.Seed(old)

	fresh := event.Event{ID: "e2", CorrelationKey: "bike-1", StartLoc: "X", EndLoc: "Y", StartTime: 50, EndTime: 60}
	idx.Seed(fresh)

	// old.AnchorTime(0) + window(100) < 150, fresh.AnchorTime(50) + 100 >= 150.
	idx.EvictExpired(150)

	candidates := idx.CandidatesFor("bike-1")
	assert.Len(t, candidates, 1)
	assert.Equal(t, int64(50), candidates[0].AnchorTime)
	assert.EqualValues(t, 1, idx.Counters().Evictions)
}

func TestEvictExpiredDropsKeyEntirelyWhenAllStale(t *testing.T) {
	idx := New(50, zerolog.Nop())
	idx.Seed(event.Event{ID: "e1", CorrelationKey: "bike-1", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 10})

	idx.EvictExpired(1000)

	assert.Empty(t, idx.CandidatesFor("bike-1"))
	assert.EqualValues(t, 1, idx.Counters().Evictions)
}

func TestEvictExpiredLogsEvictionBatch(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	idx := New(100, log)

	idx.Seed(event.Event{ID: "e1", CorrelationKey: "bike-1", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 10})
	idx.EvictExpired(150)

	assert.Contains(t, buf.String(), "evicted expired partial matches")
	assert.Contains(t, buf.String(), "bike-1")
}

func TestNoCrossKeyInteraction(t *testing.T) {
	idx := New(3600, zerolog.Nop())
	idx.Seed(event.Event{ID: "e1", CorrelationKey: "bike-1", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 100})
	idx.Seed(event.Event{ID: "e2", CorrelationKey: "bike-2", StartLoc: "A", EndLoc: "B", StartTime: 0, EndTime: 100})

	assert.Len(t, idx.CandidatesFor("bike-1"), 1)
	assert.Len(t, idx.CandidatesFor("bike-2"), 1)
}
