package transform

import (
	"fmt"

	"streamloader/internal/badrow"
	"streamloader/internal/event"
)

// Parse turns a batch of raw TSV payloads into a ParsedBatch, dead-lettering
// any record that fails to parse as LoaderParsingError. This is the "parse"
// half of the transform stage's "parses TSV into the event record" duty;
// Stage.Run performs the remaining "casts to warehouse column values"
// half.
func Parse(processor badrow.Processor, payloads [][]byte, ack func()) ParsedBatch {
	batch := ParsedBatch{Ack: ack}
	for _, raw := range payloads {
		e, err := event.Parse(raw)
		if err != nil {
			batch.Bad = append(batch.Bad, badrow.New(
				badrow.KindLoaderParsingError, processor, fmt.Sprintf("parse error: %v", err), raw,
			))
			continue
		}
		batch.Good = append(batch.Good, ParsedEvent{Event: e, Raw: raw})
	}
	return batch
}
