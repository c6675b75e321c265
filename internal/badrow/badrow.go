// Package badrow defines the dead-letter record shape emitted for any
// payload that could not be parsed, transformed or inserted, and its
// self-describing JSON serialization.
package badrow

import "encoding/json"

// Kind tags the reason a payload was dead-lettered.
type Kind string

// Recognised bad-row kinds.
const (
	KindLoaderParsingError Kind = "LoaderParsingError"
	KindLoaderRuntimeError Kind = "LoaderRuntimeError"
)

// Processor identifies the component that produced the bad row, mirroring
// the processor block carried by every self-describing bad row payload.
type Processor struct {
	Name    string `json:"artifact"`
	Version string `json:"version"`
}

// BadRow is a single dead-lettered record.
type BadRow struct {
	Kind      Kind      `json:"-"`
	Processor Processor `json:"-"`
	Cause     string    `json:"-"`

	// Payload is the original record that failed, e.g. a raw TSV line or a
	// serialized Event. It is not itself JSON, so it travels through the
	// self-describing envelope as a []byte: encoding/json base64-encodes a
	// []byte field automatically, rather than embedding it as a JSON value.
	Payload []byte `json:"-"`
}

// schemaKey is the self-describing schema URI for each bad row kind. The
// format/major-minor-patch segments mirror the convention used for the
// dynamic event columns.
func (k Kind) schemaKey() string {
	switch k {
	case KindLoaderParsingError:
		return "iglu:com.snowplowanalytics.snowplow.badrows/loader_parsing_error/jsonschema/2-0-0"
	case KindLoaderRuntimeError:
		return "iglu:com.snowplowanalytics.snowplow.badrows/loader_runtime_error/jsonschema/1-0-0"
	default:
		return "iglu:com.snowplowanalytics.snowplow.badrows/loader_runtime_error/jsonschema/1-0-0"
	}
}

type selfDescribingData struct {
	Schema string          `json:"schema"`
	Data   json.RawMessage `json:"data"`
}

type badRowData struct {
	Processor Processor     `json:"processor"`
	Failure   badRowFailure `json:"failure"`
	Payload   []byte        `json:"payload"`
}

type badRowFailure struct {
	Errors []string `json:"errors"`
}

// New builds a BadRow of the given kind, tagging it with cause and the
// original raw payload bytes so operators can replay it.
func New(kind Kind, processor Processor, cause string, payload []byte) BadRow {
	return BadRow{
		Kind:      kind,
		Processor: processor,
		Cause:     cause,
		Payload:   payload,
	}
}

// MarshalSelfDescribing renders the bad row as a self-describing JSON blob
// suitable for the dead-letter sink.
func (b BadRow) MarshalSelfDescribing() ([]byte, error) {
	data := badRowData{
		Processor: b.Processor,
		Failure:   badRowFailure{Errors: []string{b.Cause}},
		Payload:   b.Payload,
	}
	inner, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(selfDescribingData{
		Schema: b.Kind.schemaKey(),
		Data:   inner,
	})
}
