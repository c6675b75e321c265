package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSerializeRoundTrip(t *testing.T) {
	e := New()
	e.Fields["app_id"] = "myapp"
	e.Fields["event_id"] = "11111111-2222-3333-4444-555555555555"
	e.Fields["platform"] = "web"
	e.Fields["collector_tstamp"] = "2026-08-06T10:00:00.000Z"

	line := e.Serialize()
	got, err := Parse(line)
	require.NoError(t, err)
	assert.Equal(t, e.Fields, got.Fields)
}

func TestParseRejectsShortRecords(t *testing.T) {
	_, err := Parse([]byte("only\tthree\tcolumns"))
	assert.Error(t, err)
}

func TestClassifyColumn(t *testing.T) {
	assert.Equal(t, ColumnObject, ClassifyColumn("unstruct_event_com_acme_click_1"))
	assert.Equal(t, ColumnArray, ClassifyColumn("contexts_com_acme_client_session_1"))
}

func TestClassifyColumnPanicsOnUnknownPrefix(t *testing.T) {
	assert.Panics(t, func() {
		ClassifyColumn("some_other_column")
	})
}
