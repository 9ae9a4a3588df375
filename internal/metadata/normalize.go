package metadata

import (
	"log/slog"

	"github.com/jinzhu/inflection"
)

// RawIntrospection is the introspection payload returned by a tenant
// database's metadata endpoint. Callers are responsible for handing in a
// well-formed payload; a missing _meta.tables block is a contract violation,
// not a condition this layer defends against.
type RawIntrospection struct {
	Meta RawMeta `json:"_meta"`
}

// RawMeta holds the introspected table list.
type RawMeta struct {
	Tables []RawTable `json:"tables"`
}

// RawTable is one introspected table before normalization.
type RawTable struct {
	Name        string         `json:"name"`
	Fields      []RawField     `json:"fields"`
	Constraints RawConstraints `json:"constraints"`
	Relations   RawRelations   `json:"relations"`
}

// RawField is one introspected column.
type RawField struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// RawConstraints carries the declared key constraints of a table.
type RawConstraints struct {
	Primary []RawKeyConstraint `json:"primary"`
	Unique  []RawKeyConstraint `json:"unique"`
	Foreign []RawForeignKey    `json:"foreign"`
}

// RawKeyConstraint is a primary or unique constraint over one or more fields.
type RawKeyConstraint struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// RawForeignKey is a declared foreign key constraint.
type RawForeignKey struct {
	Name             string   `json:"name"`
	Fields           []string `json:"fields"`
	ReferencedTable  string   `json:"referencedTable"`
	ReferencedFields []string `json:"referencedFields"`
}

// RawRelations is the relations block of an introspected table.
type RawRelations struct {
	BelongsTo  []RawRelation `json:"belongsTo"`
	HasOne     []RawRelation `json:"hasOne"`
	HasMany    []RawRelation `json:"hasMany"`
	ManyToMany []RawRelation `json:"manyToMany"`
}

// RawRelation is one relation entry. Keys are the local key fields and
// ReferencedKeys the corresponding fields on the related table.
type RawRelation struct {
	FieldName     string   `json:"fieldName"`
	Table         string   `json:"table"`
	Keys          []string `json:"keys"`
	ReferencedKeys []string `json:"referencedKeys"`
	JunctionTable string   `json:"junctionTable,omitempty"`
}

// Normalize converts a raw introspection payload into the clean table model.
// It is a pure, synchronous, total function over well-formed input.
func Normalize(raw RawIntrospection) []*CleanTable {
	tables := make([]*CleanTable, 0, len(raw.Meta.Tables))
	for _, rawTable := range raw.Meta.Tables {
		tables = append(tables, normalizeTable(rawTable))
	}
	return tables
}

// NormalizeCatalog normalizes a raw payload and indexes the result by table
// name for catalog-wide lookups.
func NormalizeCatalog(raw RawIntrospection) Catalog {
	catalog := make(Catalog)
	for _, table := range Normalize(raw) {
		catalog[table.Name] = table
	}
	return catalog
}

func normalizeTable(raw RawTable) *CleanTable {
	table := &CleanTable{
		Name:   raw.Name,
		Fields: make([]CleanField, 0, len(raw.Fields)),
	}

	for _, rawField := range raw.Fields {
		table.Fields = append(table.Fields, CleanField{
			Name: rawField.Name,
			Type: rawField.Type,
		})
	}

	// A table's singular primary/unique identity is its first declared
	// constraint of each kind; additional constraints are ignored here.
	if len(raw.Constraints.Primary) > 0 {
		markMembers(table, raw.Constraints.Primary[0].Fields, func(f *CleanField) { f.IsPrimaryKey = true })
	}
	if len(raw.Constraints.Unique) > 0 {
		markMembers(table, raw.Constraints.Unique[0].Fields, func(f *CleanField) { f.IsUnique = true })
	}

	for _, fk := range raw.Constraints.Foreign {
		applyForeignKey(table, fk, raw.Relations.BelongsTo)
	}

	table.Relations = normalizeRelations(table, raw.Relations)
	return table
}

func markMembers(table *CleanTable, names []string, mark func(*CleanField)) {
	for _, name := range names {
		if field := table.Field(name); field != nil {
			mark(field)
		}
	}
}

// applyForeignKey pairs the first local key field with the first referenced
// field, then annotates the local field with the logical accessor name of the
// belongsTo relation whose first key matches. Composite keys are simplified
// to their first column.
func applyForeignKey(table *CleanTable, fk RawForeignKey, belongsTo []RawRelation) {
	if len(fk.Fields) == 0 {
		return
	}
	localKey := fk.Fields[0]
	field := table.Field(localKey)
	if field == nil {
		return
	}

	referencedField := ""
	if len(fk.ReferencedFields) > 0 {
		referencedField = fk.ReferencedFields[0]
	}
	field.References = &FieldReference{
		Table: fk.ReferencedTable,
		Field: referencedField,
	}

	for _, rel := range belongsTo {
		if len(rel.Keys) > 0 && rel.Keys[0] == localKey {
			field.Alias = relationAccessorName(rel, BelongsTo)
			break
		}
	}
}

func normalizeRelations(table *CleanTable, raw RawRelations) Relations {
	taken := make(map[string]struct{}, len(table.Fields))
	for _, field := range table.Fields {
		taken[field.Name] = struct{}{}
	}

	add := func(dst []Relation, entries []RawRelation, kind RelationKind) []Relation {
		for _, entry := range entries {
			rel := Relation{
				Kind:          kind,
				FieldName:     relationAccessorName(entry, kind),
				Table:         entry.Table,
				JunctionTable: entry.JunctionTable,
			}
			if len(entry.Keys) > 0 {
				rel.ForeignKey = entry.Keys[0]
			}
			if len(entry.ReferencedKeys) > 0 {
				rel.ReferencedKey = entry.ReferencedKeys[0]
			}
			if _, exists := taken[rel.FieldName]; exists {
				slog.Default().Warn("skipping relation with conflicting accessor name",
					slog.String("table", table.Name),
					slog.String("accessor", rel.FieldName),
					slog.String("kind", kind.String()),
				)
				continue
			}
			taken[rel.FieldName] = struct{}{}
			dst = append(dst, rel)
		}
		return dst
	}

	return Relations{
		BelongsTo:  add(nil, raw.BelongsTo, BelongsTo),
		HasOne:     add(nil, raw.HasOne, HasOne),
		HasMany:    add(nil, raw.HasMany, HasMany),
		ManyToMany: add(nil, raw.ManyToMany, ManyToMany),
	}
}

// relationAccessorName returns the declared accessor name, deriving one from
// the related table name when the payload omits it: singular for single-row
// accessors, plural for collections.
func relationAccessorName(rel RawRelation, kind RelationKind) string {
	if rel.FieldName != "" {
		return rel.FieldName
	}
	switch kind {
	case HasMany, ManyToMany:
		return inflection.Plural(rel.Table)
	default:
		return inflection.Singular(rel.Table)
	}
}
