// Package driver orchestrates the single-threaded cooperative pipeline:
// ingress -> shedder -> matcher -> output, accumulating counters and
// per-event latency samples for the shedding controller and end-of-run
// reporting. See spec.md §4.5.
package driver

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/bikecep/internal/cep"
	"github.com/corvidlabs/bikecep/internal/config"
	"github.com/corvidlabs/bikecep/internal/event"
	"github.com/corvidlabs/bikecep/internal/matcher"
	"github.com/corvidlabs/bikecep/internal/shed"
)

// Counters are the driver-owned run counters exposed per spec.md §6.
type Counters struct {
	Ingested  int64
	Forwarded int64
	Dropped   int64
	Matches   int64
	Evictions int64
}

// Admitter is the subset of shed.Controller the driver depends on, kept
// as an interface so tests can inject a stub.
type Admitter interface {
	ShouldAdmit(e event.Event) bool
	Observe(latencyMs float64)
	CurrentCap() int
}

// BurstConfig is the test-only load injection facility of spec.md §4.5. It
// must not alter pattern semantics: it only delays processing.
type BurstConfig struct {
	Every     int
	SleepMs   int
}

// Sleeper abstracts time.Sleep so burst mode is testable without a real
// clock dependency; production code uses RealSleeper.
type Sleeper interface {
	Sleep(d time.Duration)
}

type RealSleeper struct{}

func (RealSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Driver iterates events in arrival order, invoking the shedder and
// matcher for admitted events, recording counters and latency samples.
type Driver struct {
	matcher *matcher.Matcher
	shed    Admitter
	clock   event.Clock
	burst   BurstConfig
	sleeper Sleeper
	log     zerolog.Logger

	counters Counters
	samples  []float64
	cancel   func() bool
}

// New constructs a Driver. cancel, if non-nil, is polled between events
// (spec.md §5's cooperative cancellation); a nil cancel means the run
// always continues.
func New(m *matcher.Matcher, s Admitter, clk event.Clock, burst BurstConfig, sleeper Sleeper, log zerolog.Logger, cancel func() bool) *Driver {
	if sleeper == nil {
		sleeper = RealSleeper{}
	}
	return &Driver{
		matcher: m,
		shed:    s,
		clock:   clk,
		burst:   burst,
		sleeper: sleeper,
		log:     log,
		cancel:  cancel,
	}
}

// Sink receives emitted Matches and their Projections, forwarded from the
// matcher as they are produced. See spec.md §6 Output stream.
type Sink interface {
	Emit(m event.Match, detectLatencyMs float64)
}

// Run processes events in order until the source is exhausted or
// cancellation is observed. events must be monotonically non-decreasing in
// start_time and carry unique IDs; malformed rows are expected to have
// already been filtered out by the ingest adapter (spec.md §4.7) before
// reaching Run, so every input here counts toward "ingested".
func (d *Driver) Run(events <-chan event.Event, sink Sink) Counters {
	var n int64
	for e := range events {
		if d.cancel != nil && d.cancel() {
			d.log.Info().Int64("ingested", d.counters.Ingested).Msg("driver: cancellation observed, stopping")
			break
		}

		e.IngestSeq = n
		d.counters.Ingested++
		n++

		if d.burst.Every > 0 && n%int64(d.burst.Every) == 0 {
			d.sleeper.Sleep(time.Duration(d.burst.SleepMs) * time.Millisecond)
		}

		start := d.clock.NowMillis()

		if !d.shed.ShouldAdmit(e) {
			d.counters.Dropped++
			d.log.Debug().Str("event_id", e.ID).Msg("driver: event shed")
			continue
		}
		matches, err := d.matcher.Step(e, d.shed)
		if err != nil {
			d.counters.Dropped++
			var underflow *cep.WindowUnderflowError
			if errors.As(err, &underflow) {
				d.log.Warn().
					Str("event_id", underflow.EventID).
					Int64("start_time", underflow.StartTime).
					Int64("prev_start_time", underflow.PrevStartTime).
					Msg("driver: window underflow, dropped")
			} else {
				d.log.Warn().Str("event_id", e.ID).Err(err).Msg("driver: matcher step failed, dropped")
			}
			continue
		}
		d.counters.Forwarded++

		end := d.clock.NowMillis()
		latency := float64(end - start)
		d.samples = append(d.samples, latency)
		d.shed.Observe(latency)

		for _, m := range matches {
			m.DetectedAtMillis = end
			d.counters.Matches++
			if sink != nil {
				sink.Emit(m, latency)
			}
		}
	}

	d.counters.Evictions = d.matcher.Index().Counters().Evictions
	return d.counters
}

// LatencySamples returns the recorded per-event latency samples, oldest
// first, for percentile reporting (an external collaborator concern).
func (d *Driver) LatencySamples() []float64 {
	return d.samples
}

// ValidateAndBuildCapSource is a small helper used by cmd/cepengine to turn
// a config.Config into a ready shed.Controller, surfacing ConfigError
// before anything else runs. log is threaded into the controller for
// state-transition logging.
func ValidateAndBuildCapSource(cfg config.Config, log zerolog.Logger) (*shed.Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return shed.New(cfg.Shed, cfg.Pattern.MaxKleene, log), nil
}
