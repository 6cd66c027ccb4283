// Package gen produces deterministic synthetic bike-trip streams for
// sanity tests and the cepgen CLI tool. Grounded on
// datalog/storage/testdata_builder.go's TestDataConfig/Build* pattern: a
// config struct with named knobs and a pure generation function.
package gen

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/corvidlabs/bikecep/internal/event"
)

// Config specifies the shape of a generated synthetic trip stream.
type Config struct {
	NumBikes         int     // distinct correlation keys
	NumTrips         int     // total trips to generate
	ChainProbability float64 // P(next trip continues the previous chain)
	WindowSeconds    int64   // pattern window for matching the stream; Generate does not read it
	TripSeconds      int64   // nominal duration of one trip
	TerminalLocs     []string
	Seed             uint64
}

// DefaultConfig returns a small, realistic stream for quick sanity checks.
// Size: 20 bikes x 200 trips ~= 4,000 events.
func DefaultConfig() Config {
	return Config{
		NumBikes:         20,
		NumTrips:         4000,
		ChainProbability: 0.7,
		WindowSeconds:    3600,
		TripSeconds:      300,
		TerminalLocs:     []string{"9"},
		Seed:             1,
	}
}

// MediumConfig returns a larger stream for shedding-controller exercise.
func MediumConfig() Config {
	c := DefaultConfig()
	c.NumBikes = 200
	c.NumTrips = 200000
	return c
}

// locPool is the synthetic station namespace trips are drawn from.
var locPool = []string{"A", "B", "C", "D", "E", "F", "G", "H"}

// Generate produces cfg.NumTrips Events spread across cfg.NumBikes
// correlation keys, with start_time monotonically non-decreasing overall
// (the contract the matcher requires). Each bike's own trip history
// chains with probability cfg.ChainProbability; otherwise the next trip
// starts at an unrelated location, producing an intentional chain break.
// A fraction of trips end at a TerminalLocs value so Kleene-plus matches
// actually occur.
func Generate(cfg Config) []event.Event {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xD1B54A32D192ED03))

	type bikeState struct {
		lastEndLoc  string
		lastEndTime int64
	}
	bikes := make([]bikeState, cfg.NumBikes)
	for i := range bikes {
		bikes[i] = bikeState{lastEndLoc: randomLoc(rng), lastEndTime: 0}
	}

	events := make([]event.Event, 0, cfg.NumTrips)
	clock := int64(0)
	for i := 0; i < cfg.NumTrips; i++ {
		bikeIdx := rng.IntN(cfg.NumBikes)
		bike := &bikes[bikeIdx]

		startTime := clock
		var startLoc string
		if rng.Float64() < cfg.ChainProbability {
			startLoc = bike.lastEndLoc
			if bike.lastEndTime > startTime {
				// Chaining onto this bike's last trip requires
				// start_time >= the tail's end_time; fast-forward the
				// clock to meet it instead of emitting a trip the
				// matcher's chaining check would reject.
				startTime = bike.lastEndTime
			}
		} else {
			startLoc = randomLoc(rng)
		}
		endTime := startTime + cfg.TripSeconds
		clock = startTime + 1 // keep the overall stream monotonic across bikes

		var endLoc string
		if rng.Float64() < 0.15 && len(cfg.TerminalLocs) > 0 {
			endLoc = cfg.TerminalLocs[rng.IntN(len(cfg.TerminalLocs))]
		} else {
			endLoc = randomLoc(rng)
		}

		e := event.Event{
			ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%d/%d", cfg.Seed, i))).String(),
			CorrelationKey: fmt.Sprintf("bike-%d", bikeIdx),
			StartLoc:       startLoc,
			EndLoc:         endLoc,
			StartTime:      startTime,
			EndTime:        endTime,
		}
		events = append(events, e)

		bike.lastEndLoc = endLoc
		bike.lastEndTime = endTime
	}

	return events
}

func randomLoc(rng *rand.Rand) string {
	return locPool[rng.IntN(len(locPool))]
}
