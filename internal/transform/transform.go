// Package transform implements the H stage: turning a parsed batch of
// events into column mappings ready for insertion, applying the
// skipSchemas filter and the once-per-batch load_tstamp.
package transform

import (
	"fmt"
	"strings"
	"time"

	"streamloader/internal/badrow"
	"streamloader/internal/event"
)

// ColumnValue is a warehouse-native value produced for a single column.
type ColumnValue any

// Caster converts a dynamic self-describing payload into a warehouse-native
// column value. Implementations are supplied by the external transform
// collaborator; this package defines the shape it is called with and
// ships DefaultCaster as a basic implementation.
type Caster interface {
	Cast(columnName string, columnType event.ColumnType, raw []byte) (ColumnValue, error)
}

// Collaborator is the external transform hook invoked once per Event. It
// returns the projected column mapping for the fixed schema, or an error if
// the event cannot be transformed (never fatal — becomes a BadRow).
type Collaborator interface {
	Transform(e *event.Event, caster Caster) (map[string]ColumnValue, error)
}

// EventWithTransform pairs an Event with its projected column mapping.
type EventWithTransform struct {
	Event  *event.Event
	Row    map[string]ColumnValue
}

// BatchAfterTransform is the output of the transform stage, ready for the
// insert stage's Pass 1.
type BatchAfterTransform struct {
	ToBeInserted   []EventWithTransform
	OrigBatchSize  int
	BadAccumulated []badrow.BadRow
	Ack            func()
}

// SkipSchemaMatcher decides whether a dynamic column's backing schema URI
// should be dropped before column projection.
type SkipSchemaMatcher interface {
	Matches(igluURI string) bool
}

// NoneSkipped never drops a schema.
type NoneSkipped struct{}

// Matches implements SkipSchemaMatcher.
func (NoneSkipped) Matches(string) bool { return false }

// Stage runs the transform collaborator over a parsed batch.
type Stage struct {
	Collaborator Collaborator
	Caster       Caster
	SkipSchemas  SkipSchemaMatcher
	Processor    badrow.Processor
	Now          func() time.Time
}

// ParsedEvent pairs a good Event with the raw bytes it was parsed from
// (retained so a transform failure can still carry the original payload
// into its BadRow).
type ParsedEvent struct {
	Event *event.Event
	Raw   []byte
}

// ParsedBatch is the input to the transform stage.
type ParsedBatch struct {
	Good []ParsedEvent
	Bad  []badrow.BadRow
	Ack  func()
}

// Run executes the transform stage, producing a BatchAfterTransform. The
// load_tstamp column is computed once, from Now(), and shared by every row
// in the batch so that a retried Pass 2 sees the same value as Pass 1.
func (s *Stage) Run(batch ParsedBatch) BatchAfterTransform {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	loadTstamp := event.LoadTstamp(now())

	out := BatchAfterTransform{
		OrigBatchSize:  len(batch.Good) + len(batch.Bad),
		BadAccumulated: append([]badrow.BadRow{}, batch.Bad...),
		Ack:            batch.Ack,
	}

	for _, pe := range batch.Good {
		row, err := s.Collaborator.Transform(pe.Event, s.Caster)
		if err != nil {
			out.BadAccumulated = append(out.BadAccumulated, badrow.New(
				badrow.KindLoaderRuntimeError, s.Processor,
				fmt.Sprintf("transform failed: %v", err), pe.Raw,
			))
			continue
		}
		filtered := make(map[string]ColumnValue, len(row))
		for name, val := range row {
			if s.skipped(name) {
				continue
			}
			filtered[name] = val
		}
		filtered["load_tstamp"] = loadTstamp
		out.ToBeInserted = append(out.ToBeInserted, EventWithTransform{Event: pe.Event, Row: filtered})
	}
	return out
}

func (s *Stage) skipped(columnName string) bool {
	if s.SkipSchemas == nil {
		return false
	}
	uri, ok := igluURIForColumn(columnName)
	if !ok {
		return false
	}
	return s.SkipSchemas.Matches(uri)
}

// igluURIForColumn reconstructs an approximate Iglu URI from a dynamic
// column name so it can be checked against skipSchemas patterns. A column
// name flattens the schema vendor and name into one underscore-separated
// run followed by the major version, so every word but the last is joined
// with dots into the vendor segment, the name segment is "*", the format is
// "jsonschema" and the version is "<major>-*-*". A pattern therefore
// matches only when its name, minor and patch are "*" and its vendor
// segment equals that dot-joined run (e.g. "acme.widget" for
// unstruct_event_acme_widget_1); a pattern naming a concrete schema name
// never matches.
func igluURIForColumn(columnName string) (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(columnName, "unstruct_event_"):
		rest = strings.TrimPrefix(columnName, "unstruct_event_")
	case strings.HasPrefix(columnName, "contexts_"):
		rest = strings.TrimPrefix(columnName, "contexts_")
	default:
		return "", false
	}
	parts := strings.Split(rest, "_")
	if len(parts) < 2 {
		return "", false
	}
	major := parts[len(parts)-1]
	vendor := strings.Join(parts[:len(parts)-1], ".")
	return fmt.Sprintf("iglu:%s/*/jsonschema/%s-*-*", vendor, major), true
}
