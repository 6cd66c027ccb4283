// Package shed implements the dual-mode (event, hybrid) load-shedding
// controller of spec.md §4.4: an EWMA-driven overload detector that adapts
// ingress drop probability and, in hybrid mode, the dynamic Kleene cap.
package shed

import (
	"math/rand/v2"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/bikecep/internal/config"
	"github.com/corvidlabs/bikecep/internal/event"
)

const (
	ewmaAlpha           = 0.2
	hysteresisLowFactor = 0.8
	maxDropProb         = 0.9
	capDecrementStreak  = 3
	capIncrementStreak  = 10
)

// Controller is the shedding controller. Mode Off always admits and never
// changes the cap; it exists so callers have one type regardless of mode.
type Controller struct {
	mode            config.ShedMode
	targetLatencyMs float64
	baseDropProb    float64
	maxKleene       int

	rng *rand.Rand

	ewmaLatency float64
	overloaded  bool

	kleeneCap int

	overloadStreak int
	healthyStreak  int

	log zerolog.Logger
}

// New constructs a Controller from shedding configuration and the
// pattern's static max_kleene (the ceiling hybrid mode's cap may never
// exceed). log receives state-transition records: overload onset/recovery
// and, in hybrid mode, Kleene-cap adjustments (spec.md §4.4).
func New(cfg config.ShedConfig, maxKleene int, log zerolog.Logger) *Controller {
	return &Controller{
		mode:            cfg.Mode,
		targetLatencyMs: cfg.TargetLatencyMs,
		baseDropProb:    cfg.BaseDropProb,
		maxKleene:       maxKleene,
		rng:             rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9E3779B97F4A7C15)),
		kleeneCap:       maxKleene,
		log:             log,
	}
}

// Observe updates the EWMA and overload state from the latency sample of
// the last processed event, and in hybrid mode adjusts the Kleene cap. It
// should be called exactly once per processed event, after the matcher
// step completes. If no sample exists yet (the very first event), the
// EWMA is treated as zero per spec.md §7.
func (c *Controller) Observe(latencyMs float64) {
	wasOverloaded := c.overloaded
	c.ewmaLatency = ewmaAlpha*latencyMs + (1-ewmaAlpha)*c.ewmaLatency

	switch {
	case c.ewmaLatency > c.targetLatencyMs:
		c.overloaded = true
	case c.ewmaLatency < hysteresisLowFactor*c.targetLatencyMs:
		c.overloaded = false
	}

	if c.overloaded != wasOverloaded {
		c.log.Debug().
			Bool("overloaded", c.overloaded).
			Float64("ewma_latency_ms", c.ewmaLatency).
			Float64("target_latency_ms", c.targetLatencyMs).
			Msg("shed: controller state transition")
	}

	if c.mode != config.ShedHybrid {
		return
	}

	if c.overloaded {
		c.overloadStreak++
		c.healthyStreak = 0
		if c.overloadStreak >= capDecrementStreak && c.kleeneCap > 1 {
			c.kleeneCap--
			c.overloadStreak = 0
			c.log.Debug().
				Int("kleene_cap", c.kleeneCap).
				Msg("shed: decremented kleene cap under sustained overload")
		}
	} else {
		c.healthyStreak++
		c.overloadStreak = 0
		if c.healthyStreak >= capIncrementStreak && c.kleeneCap < c.maxKleene {
			c.kleeneCap++
			c.healthyStreak = 0
			c.log.Debug().
				Int("kleene_cap", c.kleeneCap).
				Msg("shed: incremented kleene cap under sustained health")
		}
	}
}

// ShouldAdmit decides whether to admit the event to the matcher. Mode
// "off" always admits. Modes "event" and "hybrid" admit unconditionally
// while not overloaded, and otherwise admit with probability 1-p where
// p = min(0.9, base_drop_prob * overload_ratio).
func (c *Controller) ShouldAdmit(_ event.Event) bool {
	if c.mode == config.ShedOff || !c.overloaded {
		return true
	}
	overloadRatio := c.ewmaLatency / c.targetLatencyMs
	p := c.baseDropProb * overloadRatio
	if p > maxDropProb {
		p = maxDropProb
	}
	return c.rng.Float64() >= p
}

// CurrentCap returns the Kleene cap in effect for the next matcher step.
// In modes "off" and "event" this is always the static max_kleene.
func (c *Controller) CurrentCap() int {
	if c.mode != config.ShedHybrid {
		return c.maxKleene
	}
	return c.kleeneCap
}

// Overloaded reports the controller's current hysteresis state, for
// observability/logging.
func (c *Controller) Overloaded() bool {
	return c.overloaded
}

// EWMALatencyMs reports the current EWMA, for observability/logging.
func (c *Controller) EWMALatencyMs() float64 {
	return c.ewmaLatency
}
