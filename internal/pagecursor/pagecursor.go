// Package pagecursor encodes opaque keyset pagination cursors for row pages.
// Cursors are base64-encoded JSON carrying ordering context and
// string-coerced seek values, so a cursor minted under one ordering can never
// be replayed under another.
package pagecursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gridbase/internal/metadata"
	"gridbase/internal/rowid"
)

type payload struct {
	Version    int      `json:"v"`
	Table      string   `json:"t"`
	OrderKey   string   `json:"k"`
	Directions []string `json:"d"`
	Values     []string `json:"vals"`
}

// Encode builds an opaque cursor from table, order key, directions, and seek
// values. Values are string-coerced for JSON safety.
func Encode(table, orderKey string, directions []string, values ...interface{}) string {
	normalized := make([]string, len(directions))
	for i, direction := range directions {
		normalized[i] = strings.ToUpper(direction)
	}
	stringValues := make([]string, 0, len(values))
	for _, v := range values {
		stringValues = append(stringValues, coerceToString(v))
	}
	data, err := json.Marshal(payload{
		Version:    1,
		Table:      table,
		OrderKey:   orderKey,
		Directions: normalized,
		Values:     stringValues,
	})
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses a cursor into its components.
func Decode(raw string) (table, orderKey string, directions []string, values []string, err error) {
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", "", nil, nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", "", nil, nil, fmt.Errorf("invalid cursor format")
	}
	if p.Version != 1 {
		return "", "", nil, nil, fmt.Errorf("invalid cursor format")
	}
	if p.Table == "" || p.OrderKey == "" {
		return "", "", nil, nil, fmt.Errorf("invalid cursor: missing table or order key")
	}
	if len(p.Directions) == 0 {
		return "", "", nil, nil, fmt.Errorf("invalid cursor: missing directions")
	}
	for i, direction := range p.Directions {
		direction = strings.ToUpper(direction)
		if direction != "ASC" && direction != "DESC" {
			return "", "", nil, nil, fmt.Errorf("invalid cursor: direction %d must be ASC or DESC", i)
		}
		p.Directions[i] = direction
	}
	if len(p.Values) != len(p.Directions) {
		return "", "", nil, nil, fmt.Errorf("invalid cursor: value count mismatch for order columns")
	}
	return p.Table, p.OrderKey, p.Directions, p.Values, nil
}

// Validate confirms the cursor matches the query context it is replayed
// against.
func Validate(expectedTable, expectedOrderKey string, expectedDirections []string, table, orderKey string, directions []string) error {
	if table != expectedTable {
		return fmt.Errorf("cursor table mismatch: expected %s, got %s", expectedTable, table)
	}
	if orderKey != expectedOrderKey {
		return fmt.Errorf("cursor order mismatch: expected %s, got %s", expectedOrderKey, orderKey)
	}
	if len(directions) != len(expectedDirections) {
		return fmt.Errorf("cursor direction count mismatch: expected %d, got %d", len(expectedDirections), len(directions))
	}
	for i := range expectedDirections {
		expected := strings.ToUpper(expectedDirections[i])
		actual := strings.ToUpper(directions[i])
		if actual != expected {
			return fmt.Errorf("cursor direction mismatch at position %d: expected %s, got %s", i, expected, actual)
		}
	}
	return nil
}

// ParseValues converts string-encoded cursor values into native Go types
// based on the order columns' field types.
func ParseValues(stringValues []string, fields []metadata.CleanField) ([]interface{}, error) {
	if len(stringValues) != len(fields) {
		return nil, fmt.Errorf("cursor value count mismatch: expected %d, got %d", len(fields), len(stringValues))
	}
	result := make([]interface{}, len(stringValues))
	for i, sv := range stringValues {
		parsed, err := rowid.ParseKeyValue(fields[i].Type, sv)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor value for %s: %w", fields[i].Name, err)
		}
		result[i] = parsed
	}
	return result, nil
}

func coerceToString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
