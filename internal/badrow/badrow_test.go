package badrow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSelfDescribing(t *testing.T) {
	rawLine := []byte("app1\tweb\t\t\tnot valid json at all\t{unterminated")
	b := New(KindLoaderParsingError, Processor{Name: "streamloader", Version: "1.0.0"}, "not enough columns", rawLine)
	out, err := b.MarshalSelfDescribing()
	require.NoError(t, err)

	var env struct {
		Schema string `json:"schema"`
		Data   struct {
			Processor Processor `json:"processor"`
			Failure   struct {
				Errors []string `json:"errors"`
			} `json:"failure"`
			Payload []byte `json:"payload"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Contains(t, env.Schema, "loader_parsing_error")
	assert.Equal(t, "streamloader", env.Data.Processor.Name)
	assert.Equal(t, []string{"not enough columns"}, env.Data.Failure.Errors)
	assert.Equal(t, rawLine, env.Data.Payload)
}
