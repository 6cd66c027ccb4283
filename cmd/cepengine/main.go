// Command cepengine runs the bike-trip Kleene-plus CEP engine over a CSV
// trip stream, applies the configured shedding controller, and reports
// counters, recall against a saved baseline (optional), and latency
// percentiles. Flag layout and error-reporting style follow
// cmd/datalog/main.go and cmd/build-testdb/main.go in the teacher.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/corvidlabs/bikecep/internal/baseline"
	"github.com/corvidlabs/bikecep/internal/cep"
	"github.com/corvidlabs/bikecep/internal/config"
	"github.com/corvidlabs/bikecep/internal/driver"
	"github.com/corvidlabs/bikecep/internal/event"
	"github.com/corvidlabs/bikecep/internal/ingest"
	"github.com/corvidlabs/bikecep/internal/matcher"
	"github.com/corvidlabs/bikecep/internal/report"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cepengine", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		inputPath       string
		targets         string
		windowSeconds   int64
		maxKleene       int
		shedMode        string
		targetLatencyMs float64
		baseDropProb    float64
		seed            uint64
		burstEvery      int
		burstSleepMs    int
		verbose         bool
		baselinePath    string
		baselineName    string
		saveBaseline    bool
	)

	fs.StringVar(&inputPath, "input", "", "path to the bike-trip CSV file (required)")
	fs.StringVar(&targets, "targets", "9", "comma-separated terminator end_loc values")
	fs.Int64Var(&windowSeconds, "window", 3600, "pattern time window, in seconds")
	fs.IntVar(&maxKleene, "max-kleene", 8, "maximum Kleene chain length")
	fs.StringVar(&shedMode, "shed-mode", "off", "shedding mode: off, event, or hybrid")
	fs.Float64Var(&targetLatencyMs, "target-latency-ms", 5, "EWMA latency reference, in milliseconds")
	fs.Float64Var(&baseDropProb, "base-drop-prob", 0.3, "baseline drop probability when overloaded")
	fs.Uint64Var(&seed, "seed", 1, "PRNG seed for shedding decisions")
	fs.IntVar(&burstEvery, "burst-every", 0, "sleep every N events (0 disables burst mode)")
	fs.IntVar(&burstSleepMs, "burst-sleep-ms", 0, "sleep duration for burst mode, in milliseconds")
	fs.BoolVar(&verbose, "verbose", false, "enable debug logging")
	fs.StringVar(&baselinePath, "baseline-db", "", "path to a badger baseline store (enables recall scoring)")
	fs.StringVar(&baselineName, "baseline-name", "default", "name of the baseline projection set")
	fs.BoolVar(&saveBaseline, "save-baseline", false, "save this run's projections as the named baseline instead of scoring recall")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [options]\n\n", "cepengine")
		fmt.Fprintf(stderr, "Detects the bike-trip Kleene-plus pattern over a CSV trip stream.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  cepengine -input trips.csv\n")
		fmt.Fprintf(stderr, "  cepengine -input trips.csv -shed-mode hybrid -target-latency-ms 2\n")
		fmt.Fprintf(stderr, "  cepengine -input trips.csv -baseline-db run.db -save-baseline\n")
		fmt.Fprintf(stderr, "  cepengine -input trips.csv -baseline-db run.db -shed-mode event\n")
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	if verbose {
		log = log.Level(zerolog.DebugLevel)
	} else {
		log = log.Level(zerolog.InfoLevel)
	}

	if inputPath == "" {
		fmt.Fprintln(stderr, "cepengine: -input is required")
		fs.Usage()
		return 2
	}

	cfg := config.Config{
		Pattern: config.PatternConfig{
			TargetEndLocs: config.NewTargetSet(strings.Split(targets, ",")),
			WindowSeconds: windowSeconds,
			MaxKleene:     maxKleene,
		},
		Shed: config.ShedConfig{
			Mode:            config.ShedMode(shedMode),
			TargetLatencyMs: targetLatencyMs,
			BaseDropProb:    baseDropProb,
			Seed:            seed,
			BurstEvery:      burstEvery,
			BurstSleepMs:    burstSleepMs,
		},
	}

	controller, err := driver.ValidateAndBuildCapSource(cfg, log)
	if err != nil {
		var cerr *cep.ConfigError
		if errors.As(err, &cerr) {
			fmt.Fprintf(stderr, "cepengine: invalid configuration: %v\n", cerr)
			return 2
		}
		fmt.Fprintf(stderr, "cepengine: %v\n", err)
		return 1
	}

	f, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "cepengine: cannot open %s: %v\n", inputPath, err)
		return 1
	}
	defer f.Close()

	m := matcher.New(cfg.Pattern.WindowSeconds, cfg.Pattern.TargetEndLocs, log)
	sink := &collectingSink{}
	d := driver.New(m, controller, event.SystemClock{}, driver.BurstConfig{
		Every:   cfg.Shed.BurstEvery,
		SleepMs: cfg.Shed.BurstSleepMs,
	}, nil, log, nil)

	events := make(chan event.Event, 256)
	go feedCSV(f, events, log)

	counters := d.Run(events, sink)

	summary := report.Summary{
		Counters:       counters,
		Recall:         -1,
		LatencySamples: d.LatencySamples(),
	}

	if baselinePath != "" {
		store, err := baseline.Open(baselinePath)
		if err != nil {
			fmt.Fprintf(stderr, "cepengine: %v\n", err)
			return 1
		}
		defer store.Close()

		if saveBaseline {
			if err := store.Save(baselineName, sink.projections); err != nil {
				fmt.Fprintf(stderr, "cepengine: %v\n", err)
				return 1
			}
			log.Info().Str("name", baselineName).Int("count", len(sink.projections)).Msg("cepengine: baseline saved")
		} else {
			base, err := store.Load(baselineName)
			if err != nil {
				fmt.Fprintf(stderr, "cepengine: %v\n", err)
				return 1
			}
			summary.Recall = baseline.Recall(base, baseline.NewSet(sink.projections))
		}
	}

	report.NewWriter(stdout).Render(summary)
	return 0
}

// collectingSink accumulates every Projection emitted during the run, for
// baseline save/recall scoring. It is not on the hot path in the sense
// that spec.md §4.6 describes: it does no recall arithmetic itself.
type collectingSink struct {
	projections []event.Projection
}

func (s *collectingSink) Emit(m event.Match, _ float64) {
	s.projections = append(s.projections, m.Project())
}

// feedCSV reads events from r and pushes well-formed ones onto out,
// dropping malformed rows per spec.md §7 before they ever reach the
// driver. It closes out when the source is exhausted.
func feedCSV(r io.Reader, out chan<- event.Event, log zerolog.Logger) {
	defer close(out)
	reader := ingest.NewReader(r)
	for {
		e, err := reader.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Warn().Err(err).Msg("cepengine: dropped malformed row")
			continue
		}
		out <- e
	}
}
