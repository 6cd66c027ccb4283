package gen

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/bikecep/internal/matcher"
)

func TestGenerateProducesRequestedCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumBikes = 5
	cfg.NumTrips = 50

	events := Generate(cfg)
	require.Len(t, events, 50)
}

func TestGenerateIsDeterministicForSameSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumBikes = 5
	cfg.NumTrips = 50
	cfg.Seed = 7

	a := Generate(cfg)
	b := Generate(cfg)

	require.Len(t, a, len(b))
	for i := range a {
		assert.Equal(t, a[i].ID, b[i].ID)
		assert.Equal(t, a[i].CorrelationKey, b[i].CorrelationKey)
		assert.Equal(t, a[i].StartLoc, b[i].StartLoc)
		assert.Equal(t, a[i].EndLoc, b[i].EndLoc)
		assert.Equal(t, a[i].StartTime, b[i].StartTime)
		assert.Equal(t, a[i].EndTime, b[i].EndTime)
	}
}

func TestGenerateOverallStreamIsMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumBikes = 10
	cfg.NumTrips = 500

	events := Generate(cfg)
	for i := 1; i < len(events); i++ {
		assert.GreaterOrEqual(t, events[i].StartTime, events[i-1].StartTime)
	}
}

// TestGenerateProducesMatchableChains guards the generator's documented
// purpose directly: a chainable stream must actually trip the Kleene-plus
// pattern when fed through the real matcher, not merely look chainable by
// construction.
func TestGenerateProducesMatchableChains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumBikes = 20
	cfg.NumTrips = 2000

	events := Generate(cfg)

	targets := make(map[string]struct{}, len(cfg.TerminalLocs))
	for _, loc := range cfg.TerminalLocs {
		targets[loc] = struct{}{}
	}
	m := matcher.New(cfg.WindowSeconds, targets, zerolog.Nop())
	cap := matcher.StaticCap(8)

	var totalMatches int
	for _, e := range events {
		matches, err := m.Step(e, cap)
		require.NoError(t, err)
		totalMatches += len(matches)
	}

	assert.Greater(t, totalMatches, 0, "a chainable synthetic stream must yield at least one Kleene-plus match")
}

func TestGenerateAssignsUniqueIDs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumBikes = 5
	cfg.NumTrips = 100

	events := Generate(cfg)
	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		_, dup := seen[e.ID]
		assert.False(t, dup, "event IDs must be unique")
		seen[e.ID] = struct{}{}
	}
}
