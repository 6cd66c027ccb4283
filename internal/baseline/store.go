// Package baseline implements the Baseline/Recall Harness of spec.md §4.6:
// exact-tuple-equality recall scoring against a reference projection set,
// plus a small badger-backed store so a baseline captured from one
// mode=off process invocation can be recalled by a later, separate,
// shedded run. This is the only persistence in the system; it never
// persists core pattern-matching run state (PartialMatchIndex, controller
// state) — see SPEC_FULL.md §2 item 10.
package baseline

import (
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/corvidlabs/bikecep/internal/event"
)

// Set is a deduplicated collection of Projections, the recall-evaluation
// universe of spec.md §3.
type Set map[event.Projection]struct{}

// NewSet builds a Set from a slice of Projections.
func NewSet(projections []event.Projection) Set {
	s := make(Set, len(projections))
	for _, p := range projections {
		s[p] = struct{}{}
	}
	return s
}

// Recall computes |R ∩ B| / |B| using exact tuple equality. An empty
// baseline is defined as perfect recall (1.0) rather than dividing by
// zero, since a baseline run that produced no matches makes the question
// vacuous.
func Recall(baseline, run Set) float64 {
	if len(baseline) == 0 {
		return 1.0
	}
	var hits int
	for p := range baseline {
		if _, ok := run[p]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(baseline))
}

// Store persists named baseline projection sets across process
// invocations using an embedded badger KV store.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a baseline store at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("baseline: failed to open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying badger handles.
func (s *Store) Close() error {
	return s.db.Close()
}

const keyPrefix = "baseline/"

// Save persists the projection set under name, overwriting any prior
// value.
func (s *Store) Save(name string, projections []event.Projection) error {
	payload, err := json.Marshal(projections)
	if err != nil {
		return fmt.Errorf("baseline: marshal: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+name), payload)
	})
}

// Load retrieves the projection set previously saved under name.
func (s *Store) Load(name string) (Set, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			payload = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("baseline: load %q: %w", name, err)
	}

	var projections []event.Projection
	if err := json.Unmarshal(payload, &projections); err != nil {
		return nil, fmt.Errorf("baseline: unmarshal %q: %w", name, err)
	}
	return NewSet(projections), nil
}
