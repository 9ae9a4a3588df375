// Package rowid encodes stable row identifiers: opaque base64 JSON arrays of
// table name plus primary key values. Used as cache arguments for row-by-id
// resources so a row's address survives column reordering.
package rowid

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gridbase/internal/metadata"
	"gridbase/internal/wiretype"
)

// Encode marshals the table name and key values into an opaque identifier.
func Encode(table string, keyValues ...interface{}) string {
	payload := make([]interface{}, 0, len(keyValues)+1)
	payload = append(payload, table)
	payload = append(payload, keyValues...)
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// Decode parses an identifier back into its table name and raw key values.
func Decode(id string) (string, []interface{}, error) {
	raw, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		return "", nil, fmt.Errorf("invalid row id: %w", err)
	}
	var payload []interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", nil, fmt.Errorf("invalid row id: %w", err)
	}
	if len(payload) < 2 {
		return "", nil, errors.New("invalid row id: missing table or key values")
	}
	table, ok := payload[0].(string)
	if !ok || table == "" {
		return "", nil, errors.New("invalid row id: missing table name")
	}
	return table, payload[1:], nil
}

// ParseKeyValue coerces a decoded JSON value into the Go type the key
// column's wire type expects.
func ParseKeyValue(field metadata.FieldType, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, errors.New("missing key value")
	}

	switch field.Kind() {
	case wiretype.KindInt:
		switch v := raw.(type) {
		case float64:
			if v != math.Trunc(v) {
				return nil, errors.New("invalid integer key value")
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, errors.New("invalid integer key value")
			}
			return parsed, nil
		default:
			return nil, errors.New("invalid integer key value")
		}
	case wiretype.KindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case string:
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.New("invalid float key value")
			}
			return parsed, nil
		default:
			return nil, errors.New("invalid float key value")
		}
	case wiretype.KindBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, errors.New("invalid boolean key value")
			}
			return parsed, nil
		default:
			return nil, errors.New("invalid boolean key value")
		}
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return nil, errors.New("invalid key value")
		}
	}
}
