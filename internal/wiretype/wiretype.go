// Package wiretype provides a shared mapping from platform wire type names to
// value categories. This ensures consistent type handling across selection
// compilation, complex-type synthesis, and draft row defaulting.
package wiretype

import "strings"

// Kind represents the value category of a column's wire type.
type Kind int

const (
	// KindString is the default category for text, dates, and unknown wire types.
	KindString Kind = iota
	// KindInt represents integer numeric types.
	KindInt
	// KindFloat represents floating-point and fixed-point numeric types.
	KindFloat
	// KindBoolean represents boolean types.
	KindBoolean
	// KindJSON represents JSON document types.
	KindJSON
	// KindPoint represents a two-coordinate geometric point.
	KindPoint
	// KindInterval represents a duration decomposed into calendar components.
	KindInterval
	// KindGeometry represents a polymorphic PostGIS geometry value.
	KindGeometry
	// KindGeography represents a geo-encoded value fetched as nested GeoJSON.
	KindGeography
)

// Map converts a wire type name to its value category. The input is
// case-insensitive and size specifiers like (10,2) are stripped before
// matching. Array wrappers are the caller's concern; Map classifies the
// element type only.
func Map(wireType string) Kind {
	if idx := strings.Index(wireType, "("); idx != -1 {
		wireType = wireType[:idx]
	}
	switch strings.ToUpper(strings.TrimSpace(wireType)) {
	case "SMALLINT", "INT", "INTEGER", "BIGINT", "INT2", "INT4", "INT8", "SERIAL", "BIGSERIAL":
		return KindInt
	case "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT4", "FLOAT8", "DECIMAL", "NUMERIC", "MONEY":
		return KindFloat
	case "BOOL", "BOOLEAN":
		return KindBoolean
	case "JSON", "JSONB":
		return KindJSON
	case "POINT":
		return KindPoint
	case "INTERVAL":
		return KindInterval
	case "GEOMETRY":
		return KindGeometry
	case "GEOGRAPHY":
		return KindGeography
	case "CHAR", "VARCHAR", "TEXT", "CHARACTER", "CHARACTER VARYING", "BYTEA",
		"UUID", "CITEXT", "INET", "CIDR", "MACADDR":
		return KindString
	case "DATE", "TIME", "TIMETZ", "TIMESTAMP", "TIMESTAMPTZ":
		return KindString
	default:
		return KindString
	}
}

// IsStructured reports whether values of this kind decompose into subfields on
// the wire instead of arriving as a single leaf value.
func (k Kind) IsStructured() bool {
	switch k {
	case KindPoint, KindInterval, KindGeometry, KindGeography:
		return true
	case KindString, KindInt, KindFloat, KindBoolean, KindJSON:
		return false
	}
	return false
}

// String returns the category name for logging and diagnostics.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindBoolean:
		return "Boolean"
	case KindJSON:
		return "JSON"
	case KindPoint:
		return "Point"
	case KindInterval:
		return "Interval"
	case KindGeometry:
		return "Geometry"
	case KindGeography:
		return "Geography"
	default:
		return "String"
	}
}

// DraftDefault returns the seed value for a freshly created draft cell of this
// kind. Booleans default to false so they render as a concrete checkbox state;
// everything else starts empty.
func (k Kind) DraftDefault() interface{} {
	if k == KindBoolean {
		return false
	}
	return nil
}
