// Package metadata normalizes raw schema introspection payloads into a clean
// internal table model shared by selection compilation and the draft row
// engine. The normalized model is read-only once constructed.
package metadata

import (
	"gridbase/internal/wiretype"
)

// FieldType describes the declared wire type of a column.
type FieldType struct {
	WireType     string `json:"wireType"`
	IsArray      bool   `json:"isArray"`
	DBType       string `json:"dbType"`
	Subtype      string `json:"subtype"`
	TypeModifier int    `json:"typeModifier"`
}

// Kind returns the value category of the element type.
func (t FieldType) Kind() wiretype.Kind {
	return wiretype.Map(t.WireType)
}

// FieldReference records the target of a foreign key pairing.
type FieldReference struct {
	Table string
	Field string
}

// CleanField is a normalized scalar column. Immutable once constructed.
type CleanField struct {
	Name string
	Type FieldType
	// IsPrimaryKey marks membership in the table's singular primary identity,
	// taken from the first declared primary constraint only.
	IsPrimaryKey bool
	// IsUnique marks membership in the first declared unique constraint.
	IsUnique bool
	// Alias is the logical relation accessor under which a foreign key column
	// surfaces for display, e.g. "owner" for "owner_id". Empty when the column
	// backs no belongs-to relation.
	Alias string
	// References is set for foreign key columns: the first referenced field of
	// the first declared constraint naming this column first.
	References *FieldReference
}

// RelationKind distinguishes the four relation groupings.
type RelationKind int

const (
	// BelongsTo means this table holds the foreign key.
	BelongsTo RelationKind = iota
	// HasOne means the other table holds the foreign key, single row.
	HasOne
	// HasMany means the other table holds the foreign key, many rows.
	HasMany
	// ManyToMany traverses a junction table.
	ManyToMany
)

// String returns the relation kind name for logging.
func (k RelationKind) String() string {
	switch k {
	case BelongsTo:
		return "belongsTo"
	case HasOne:
		return "hasOne"
	case HasMany:
		return "hasMany"
	case ManyToMany:
		return "manyToMany"
	}
	return "unknown"
}

// Relation is one logical relation accessor on a table.
type Relation struct {
	Kind      RelationKind
	FieldName string // accessor name exposed to selections
	Table     string // related table name
	// ForeignKey and ReferencedKey record the first local/remote key pair.
	// For belongsTo the foreign key lives on this table; for hasOne/hasMany it
	// lives on the related table.
	ForeignKey    string
	ReferencedKey string
	// JunctionTable is set for manyToMany relations only.
	JunctionTable string
}

// IsList reports whether the accessor yields a collection of related rows.
func (r Relation) IsList() bool {
	return r.Kind == HasMany || r.Kind == ManyToMany
}

// Relations groups a table's relation accessors by kind.
type Relations struct {
	BelongsTo  []Relation
	HasOne     []Relation
	HasMany    []Relation
	ManyToMany []Relation
}

// All returns every relation accessor in declaration order: belongsTo,
// hasOne, hasMany, manyToMany.
func (r Relations) All() []Relation {
	out := make([]Relation, 0, len(r.BelongsTo)+len(r.HasOne)+len(r.HasMany)+len(r.ManyToMany))
	out = append(out, r.BelongsTo...)
	out = append(out, r.HasOne...)
	out = append(out, r.HasMany...)
	out = append(out, r.ManyToMany...)
	return out
}

// CleanTable is a normalized table: scalar fields plus relation accessors.
// Relation accessor names are unique within a table and disjoint from scalar
// field names.
type CleanTable struct {
	Name      string
	Fields    []CleanField
	Relations Relations
}

// Field returns the scalar field with the given name, or nil.
func (t *CleanTable) Field(name string) *CleanField {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// Relation returns the relation accessor with the given field name, or nil.
func (t *CleanTable) Relation(fieldName string) *Relation {
	all := t.Relations.All()
	for i := range all {
		if all[i].FieldName == fieldName {
			return &all[i]
		}
	}
	return nil
}

// PrimaryKey returns the first primary key field, or nil for keyless tables.
func (t *CleanTable) PrimaryKey() *CleanField {
	for i := range t.Fields {
		if t.Fields[i].IsPrimaryKey {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldNames returns scalar field names in declaration order.
func (t *CleanTable) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Catalog maps table names to their normalized models.
type Catalog map[string]*CleanTable

// Table returns the named table, or nil.
func (c Catalog) Table(name string) *CleanTable {
	return c[name]
}
