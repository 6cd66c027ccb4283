package shed

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvidlabs/bikecep/internal/config"
	"github.com/corvidlabs/bikecep/internal/event"
)

func TestModeOffAlwaysAdmitsAndNeverChangesCap(t *testing.T) {
	c := New(config.ShedConfig{Mode: config.ShedOff, TargetLatencyMs: 1, BaseDropProb: 1, Seed: 1}, 8, zerolog.Nop())

	for i := 0; i < 100; i++ {
		c.Observe(1000) // wildly over target
		assert.True(t, c.ShouldAdmit(event.Event{}))
		assert.Equal(t, 8, c.CurrentCap())
	}
}

func TestEventModeDropsUnderSustainedOverload(t *testing.T) {
	c := New(config.ShedConfig{
		Mode:            config.ShedEvent,
		TargetLatencyMs: 10,
		BaseDropProb:    0.9,
		Seed:            42,
	}, 8, zerolog.Nop())

	for i := 0; i < 20; i++ {
		c.Observe(1000)
	}
	require.True(t, c.Overloaded())
	assert.Equal(t, 8, c.CurrentCap(), "event mode never adjusts the cap")

	var drops int
	for i := 0; i < 500; i++ {
		c.Observe(1000)
		if !c.ShouldAdmit(event.Event{}) {
			drops++
		}
	}
	assert.Greater(t, drops, 0, "sustained overload must shed at least some events")
}

func TestHysteresisPreventsOscillation(t *testing.T) {
	c := New(config.ShedConfig{
		Mode:            config.ShedEvent,
		TargetLatencyMs: 100,
		BaseDropProb:    0.5,
		Seed:            1,
	}, 8, zerolog.Nop())

	for i := 0; i < 10; i++ {
		c.Observe(200)
	}
	require.True(t, c.Overloaded())

	// Samples between 0.8x and 1.0x target bring the EWMA into that band
	// (about 91 after 20 samples of 90); hysteresis keeps overloaded set.
	for i := 0; i < 20; i++ {
		c.Observe(90)
	}
	assert.Less(t, c.EWMALatencyMs(), 100.0)
	assert.Greater(t, c.EWMALatencyMs(), 80.0)
	assert.True(t, c.Overloaded())

	for i := 0; i < 10; i++ {
		c.Observe(50) // well under 0.8x target
	}
	assert.False(t, c.Overloaded())
}

func TestHybridModeDecrementsCapAfterSustainedOverload(t *testing.T) {
	c := New(config.ShedConfig{
		Mode:            config.ShedHybrid,
		TargetLatencyMs: 10,
		BaseDropProb:    0.3,
		Seed:            7,
	}, 8, zerolog.Nop())

	for i := 0; i < capDecrementStreak; i++ {
		c.Observe(1000)
	}
	assert.Equal(t, 7, c.CurrentCap())
}

func TestHybridModeNeverDecrementsBelowOne(t *testing.T) {
	c := New(config.ShedConfig{
		Mode:            config.ShedHybrid,
		TargetLatencyMs: 10,
		BaseDropProb:    0.3,
		Seed:            7,
	}, 1, zerolog.Nop())

	for i := 0; i < 50; i++ {
		c.Observe(1000)
	}
	assert.Equal(t, 1, c.CurrentCap())
}

func TestHybridModeIncrementsCapAfterSustainedHealth(t *testing.T) {
	c := New(config.ShedConfig{
		Mode:            config.ShedHybrid,
		TargetLatencyMs: 100,
		BaseDropProb:    0.3,
		Seed:            3,
	}, 8, zerolog.Nop())

	// Force the cap down first.
	for i := 0; i < capDecrementStreak; i++ {
		c.Observe(1000)
	}
	require.Less(t, c.CurrentCap(), 8)

	// EWMA recovery from a sustained spike takes many samples; run well
	// past the number needed for the cap to climb back to the ceiling.
	for i := 0; i < 200; i++ {
		c.Observe(1)
	}
	assert.Equal(t, 8, c.CurrentCap())
}

func TestHybridModeNeverExceedsMaxKleene(t *testing.T) {
	c := New(config.ShedConfig{
		Mode:            config.ShedHybrid,
		TargetLatencyMs: 100,
		BaseDropProb:    0.3,
		Seed:            3,
	}, 4, zerolog.Nop())

	for i := 0; i < 500; i++ {
		c.Observe(1) // always healthy
	}
	assert.Equal(t, 4, c.CurrentCap())
}

func TestSeededDropDecisionsAreDeterministic(t *testing.T) {
	newController := func() *Controller {
		return New(config.ShedConfig{
			Mode:            config.ShedEvent,
			TargetLatencyMs: 10,
			BaseDropProb:    0.5,
			Seed:            99,
		}, 8, zerolog.Nop())
	}

	run := func(c *Controller) []bool {
		var out []bool
		for i := 0; i < 50; i++ {
			c.Observe(200)
			out = append(out, c.ShouldAdmit(event.Event{}))
		}
		return out
	}

	a := run(newController())
	b := run(newController())
	assert.Equal(t, a, b, "identical seed must produce identical admit decisions")
}
