package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes_ScanKeepsPrecision(t *testing.T) {
	var a Attributes
	require.NoError(t, a.Scan([]byte(`{"weight":"1.10","lifetime":12345.67,"vip":true}`)))

	assert.Equal(t, "12345.67", a.GetDecimal("lifetime").String())
	assert.Equal(t, "1.1", a.GetDecimal("weight").String())
	assert.True(t, a.GetBool("vip"))
}

func TestAttributes_Plain(t *testing.T) {
	a := Attributes{
		"count":  json.Number("3"),
		"ratio":  json.Number("0.5"),
		"nested": map[string]any{"n": json.Number("7")},
		"list":   []any{json.Number("1"), "x"},
	}

	p := a.Plain()
	assert.Equal(t, int64(3), p["count"])
	assert.Equal(t, 0.5, p["ratio"])
	assert.Equal(t, int64(7), p["nested"].(map[string]any)["n"])
	assert.Equal(t, []any{int64(1), "x"}, p["list"])
}

func TestAttributes_ScanNil(t *testing.T) {
	a := Attributes{"x": 1}
	require.NoError(t, a.Scan(nil))
	assert.Nil(t, a)

	assert.Error(t, a.Scan(42))
}
