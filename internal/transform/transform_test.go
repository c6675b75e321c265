package transform

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamloader/internal/badrow"
	"streamloader/internal/event"
)

type fixedCaster struct{}

func (fixedCaster) Cast(_ string, _ event.ColumnType, raw []byte) (ColumnValue, error) {
	return string(raw), nil
}

// echoCollaborator projects the app_id field plus one dynamic column, and
// fails whenever the event's app_id is "explode".
type echoCollaborator struct{}

func (echoCollaborator) Transform(e *event.Event, _ Caster) (map[string]ColumnValue, error) {
	if e.Fields["app_id"] == "explode" {
		return nil, errors.New("boom")
	}
	return map[string]ColumnValue{
		"app_id":                       e.Fields["app_id"],
		"unstruct_event_acme_widget_1": "payload",
	}, nil
}

func newGoodEvent(appID string) *event.Event {
	e := event.New()
	e.Fields["app_id"] = appID
	e.Fields["event_id"] = "e1"
	return e
}

func fixedNow() func() time.Time {
	t := time.UnixMilli(1_700_000_000_000)
	return func() time.Time { return t }
}

func TestStageRunAddsLoadTstampToEveryRow(t *testing.T) {
	s := &Stage{
		Collaborator: echoCollaborator{},
		Caster:       fixedCaster{},
		SkipSchemas:  NoneSkipped{},
		Processor:    badrow.Processor{Name: "transform"},
		Now:          fixedNow(),
	}

	acked := false
	out := s.Run(ParsedBatch{
		Good: []ParsedEvent{{Event: newGoodEvent("app1"), Raw: []byte("raw1")}},
		Ack:  func() { acked = true },
	})

	require.Len(t, out.ToBeInserted, 1)
	assert.Equal(t, event.LoadTstamp(fixedNow()()), out.ToBeInserted[0].Row["load_tstamp"])
	assert.Empty(t, out.BadAccumulated)
	out.Ack()
	assert.True(t, acked)
}

func TestStageRunTurnsCollaboratorErrorIntoBadRow(t *testing.T) {
	s := &Stage{
		Collaborator: echoCollaborator{},
		Caster:       fixedCaster{},
		SkipSchemas:  NoneSkipped{},
		Processor:    badrow.Processor{Name: "transform"},
		Now:          fixedNow(),
	}

	out := s.Run(ParsedBatch{
		Good: []ParsedEvent{{Event: newGoodEvent("explode"), Raw: []byte("raw1")}},
	})

	assert.Empty(t, out.ToBeInserted)
	require.Len(t, out.BadAccumulated, 1)
	assert.Equal(t, badrow.KindLoaderRuntimeError, out.BadAccumulated[0].Kind)
}

func TestStageRunPreservesPreExistingBadRows(t *testing.T) {
	s := &Stage{
		Collaborator: echoCollaborator{},
		Caster:       fixedCaster{},
		SkipSchemas:  NoneSkipped{},
		Now:          fixedNow(),
	}
	pre := badrow.New(badrow.KindLoaderParsingError, badrow.Processor{}, "bad tsv", []byte("garbage"))

	out := s.Run(ParsedBatch{
		Good: []ParsedEvent{{Event: newGoodEvent("app1"), Raw: []byte("raw1")}},
		Bad:  []badrow.BadRow{pre},
	})

	assert.Equal(t, 2, out.OrigBatchSize)
	require.Len(t, out.BadAccumulated, 1)
	assert.Equal(t, badrow.KindLoaderParsingError, out.BadAccumulated[0].Kind)
}

type skipAcmeMajor1 struct{}

func (skipAcmeMajor1) Matches(uri string) bool {
	return uri == "iglu:acme.widget/*/jsonschema/1-*-*"
}

func TestStageRunDropsSkippedDynamicColumns(t *testing.T) {
	s := &Stage{
		Collaborator: echoCollaborator{},
		Caster:       fixedCaster{},
		SkipSchemas:  skipAcmeMajor1{},
		Now:          fixedNow(),
	}

	out := s.Run(ParsedBatch{
		Good: []ParsedEvent{{Event: newGoodEvent("app1")}},
	})

	require.Len(t, out.ToBeInserted, 1)
	_, present := out.ToBeInserted[0].Row["unstruct_event_acme_widget_1"]
	assert.False(t, present)
	assert.Contains(t, out.ToBeInserted[0].Row, "load_tstamp")
}
