// Package ingest reads bike-trip CSV rows into event.Event values. Schema
// mapping and malformed-row rejection live here, outside the pattern-
// matching core (spec.md §6): a row that fails to parse becomes a
// MalformedEventError and never reaches the driver's "ingested" counter.
package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/corvidlabs/bikecep/internal/cep"
	"github.com/corvidlabs/bikecep/internal/event"
)

// Header is the expected CSV column order.
var Header = []string{"event_id", "bike_id", "start_loc", "end_loc", "start_time", "end_time"}

// Reader turns CSV rows into Events, skipping the header.
type Reader struct {
	csv       *csv.Reader
	sawHeader bool
}

// NewReader wraps r with CSV parsing. The first record read is assumed to
// be the header and is discarded.
func NewReader(r io.Reader) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return &Reader{csv: cr}
}

// Next reads and parses the next data row. It returns io.EOF when the
// input is exhausted. A row that fails validation returns a
// *cep.MalformedEventError as err with a zero Event; the caller is
// expected to drop it and continue reading.
func (r *Reader) Next() (event.Event, error) {
	if !r.sawHeader {
		if _, err := r.csv.Read(); err != nil {
			return event.Event{}, err
		}
		r.sawHeader = true
	}

	record, err := r.csv.Read()
	if err != nil {
		return event.Event{}, err
	}

	return parseRow(record)
}

func parseRow(record []string) (event.Event, error) {
	if len(record) != len(Header) {
		return event.Event{}, &cep.MalformedEventError{
			Reason: "wrong column count",
			Raw:    joinRaw(record),
		}
	}

	id, bikeID, startLoc, endLoc := record[0], record[1], record[2], record[3]
	if id == "" || bikeID == "" || startLoc == "" || endLoc == "" {
		return event.Event{}, &cep.MalformedEventError{
			Reason: "missing required attribute",
			Raw:    joinRaw(record),
		}
	}

	startTime, err := parseTimestamp(record[4])
	if err != nil {
		return event.Event{}, &cep.MalformedEventError{
			Reason: "unparseable start_time",
			Raw:    joinRaw(record),
		}
	}
	endTime, err := parseTimestamp(record[5])
	if err != nil {
		return event.Event{}, &cep.MalformedEventError{
			Reason: "unparseable end_time",
			Raw:    joinRaw(record),
		}
	}
	if endTime < startTime {
		return event.Event{}, &cep.MalformedEventError{
			Reason: "end_time < start_time",
			Raw:    joinRaw(record),
		}
	}

	return event.Event{
		ID:             id,
		CorrelationKey: bikeID,
		StartLoc:       startLoc,
		EndLoc:         endLoc,
		StartTime:      startTime,
		EndTime:        endTime,
	}, nil
}

// parseTimestamp accepts either an RFC3339 timestamp or a bare integer
// count of logical seconds, trying RFC3339 first.
func parseTimestamp(s string) (int64, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Unix(), nil
	}
	return strconv.ParseInt(s, 10, 64)
}

func joinRaw(record []string) string {
	out := ""
	for i, f := range record {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}
