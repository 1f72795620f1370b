package dimension

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := map[string]Dimension{
		"minecraft:overworld":  Overworld,
		"overworld":            Overworld,
		"minecraft:the_nether": Nether,
		"nether":               Nether,
		"the_end":              TheEnd,
		"minecraft:the_end":    TheEnd,
		" Minecraft:The_End ":  TheEnd,
		"minecraft:aether":     Unknown,
		"":                     Unknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), "вход %q", in)
	}
}

func TestPrefixStrippedConsistently(t *testing.T) {
	for _, d := range All() {
		assert.Equal(t, d, Parse(d.Namespaced()))
		assert.Equal(t, d, Parse(d.String()))
	}
}

func TestJSON(t *testing.T) {
	var payload struct {
		Dim Dimension `json:"dimension"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"dimension":"minecraft:the_nether"}`), &payload))
	assert.Equal(t, Nether, payload.Dim)

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dimension":"minecraft:the_nether"}`, string(data))

	require.NoError(t, json.Unmarshal([]byte(`{"dimension":"minecraft:deep_dark"}`), &payload))
	assert.Equal(t, Unknown, payload.Dim)
}
