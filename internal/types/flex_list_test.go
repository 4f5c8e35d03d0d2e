package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexListSingle(t *testing.T) {
	var f FlexList[map[string]interface{}]
	require.NoError(t, json.Unmarshal([]byte(` {"item":"bolt"}`), &f))
	assert.Len(t, f.Slice(), 1)
	assert.Equal(t, "bolt", f[0]["item"])
}

func TestFlexListArray(t *testing.T) {
	var f FlexList[map[string]interface{}]
	require.NoError(t, json.Unmarshal([]byte(`[{"item":"bolt"},{"item":"nut"}]`), &f))
	assert.Len(t, f.Slice(), 2)
}

func TestFlexListNull(t *testing.T) {
	var f FlexList[map[string]interface{}]
	require.NoError(t, json.Unmarshal([]byte(`null`), &f))
	assert.Empty(t, f.Slice())
}

func TestFlexListRejectsWrongShape(t *testing.T) {
	var f FlexList[map[string]interface{}]
	assert.Error(t, json.Unmarshal([]byte(`"bolt"`), &f))
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &f))
}
