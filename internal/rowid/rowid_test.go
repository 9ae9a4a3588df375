package rowid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/metadata"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	id := Encode("projects", "p-1", float64(7))
	require.NotEmpty(t, id)

	table, values, err := Decode(id)
	require.NoError(t, err)
	assert.Equal(t, "projects", table)
	assert.Equal(t, []interface{}{"p-1", float64(7)}, values)
}

func TestDecodeRejectsMalformedIDs(t *testing.T) {
	tests := []struct {
		name string
		id   string
	}{
		{"not base64", "%%%"},
		{"not json", Encode("x")[:4]},
		{"missing values", "WyJwcm9qZWN0cyJd"}, // ["projects"]
		{"empty table", "WyIiLCJwLTEiXQ=="},    // ["","p-1"]
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.id)
			assert.Error(t, err)
		})
	}
}

func TestParseKeyValue(t *testing.T) {
	intField := metadata.FieldType{WireType: "bigint"}
	floatField := metadata.FieldType{WireType: "float8"}
	boolField := metadata.FieldType{WireType: "boolean"}
	textField := metadata.FieldType{WireType: "uuid"}

	tests := []struct {
		name    string
		field   metadata.FieldType
		raw     interface{}
		want    interface{}
		wantErr bool
	}{
		{"json float to int", intField, float64(42), int64(42), false},
		{"string to int", intField, "42", int64(42), false},
		{"fractional rejected", intField, 1.5, nil, true},
		{"float passes", floatField, 2.5, 2.5, false},
		{"bool string", boolField, "true", true, false},
		{"bool rejects number", boolField, float64(1), nil, true},
		{"text passes", textField, "abc-123", "abc-123", false},
		{"nil rejected", textField, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKeyValue(tt.field, tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
