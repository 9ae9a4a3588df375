package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Signature computes the meta-version signature of a table: a deterministic
// fingerprint of column order, field metadata, and relation metadata. Draft
// state reconciliation triggers exactly when this value changes, so the
// signature must be a pure function of its inputs.
func Signature(columnOrder []string, fields map[string]FieldType, relations map[string]Relation) string {
	return combineComponents(SignatureComponents(columnOrder, fields, relations))
}

// SignatureComponents computes per-component hashes so callers can report
// which of columns, fields, or relations drove a signature change.
func SignatureComponents(columnOrder []string, fields map[string]FieldType, relations map[string]Relation) map[string]string {
	columnHash := sha256.New()
	for _, name := range columnOrder {
		writeFramed(columnHash, name)
	}

	fieldHash := sha256.New()
	for _, key := range sortedKeys(fields) {
		t := fields[key]
		writeFramed(fieldHash, key, t.WireType, t.DBType, t.Subtype,
			fmt.Sprintf("%t", t.IsArray), fmt.Sprintf("%d", t.TypeModifier))
	}

	relationHash := sha256.New()
	relationKeys := make([]string, 0, len(relations))
	for key := range relations {
		relationKeys = append(relationKeys, key)
	}
	sort.Strings(relationKeys)
	for _, key := range relationKeys {
		rel := relations[key]
		writeFramed(relationHash, key, rel.Kind.String(), rel.Table,
			rel.ForeignKey, rel.ReferencedKey, rel.JunctionTable)
	}

	return map[string]string{
		"columns":   hex.EncodeToString(columnHash.Sum(nil)),
		"fields":    hex.EncodeToString(fieldHash.Sum(nil)),
		"relations": hex.EncodeToString(relationHash.Sum(nil)),
	}
}

// TableSignature computes the meta-version signature from a normalized table's
// own column order and metadata.
func TableSignature(table *CleanTable) string {
	columnOrder := table.FieldNames()
	fields := make(map[string]FieldType, len(table.Fields))
	for _, field := range table.Fields {
		fields[field.Name] = field.Type
	}
	relations := make(map[string]Relation)
	for _, rel := range table.Relations.All() {
		relations[rel.FieldName] = rel
	}
	return Signature(columnOrder, fields, relations)
}

// ChangedComponents compares two component maps over the union of their keys
// and returns the sorted names of components that differ.
func ChangedComponents(previous, current map[string]string) []string {
	keySet := make(map[string]struct{}, len(previous)+len(current))
	for key := range previous {
		keySet[key] = struct{}{}
	}
	for key := range current {
		keySet[key] = struct{}{}
	}
	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changed := make([]string, 0, len(keys))
	for _, key := range keys {
		if previous[key] != current[key] {
			changed = append(changed, key)
		}
	}
	return changed
}

func combineComponents(components map[string]string) string {
	keys := make([]string, 0, len(components))
	for key := range components {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	hash := sha256.New()
	for _, key := range keys {
		_, _ = fmt.Fprintf(hash, "%s=%s\n", key, components[key])
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func sortedKeys(m map[string]FieldType) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// writeFramed hashes length-prefixed cells to avoid ambiguity from delimiter
// collisions.
func writeFramed(hash interface{ Write([]byte) (int, error) }, parts ...string) {
	for _, part := range parts {
		_, _ = fmt.Fprintf(hash, "%d:%s|", len(part), part)
	}
	_, _ = hash.Write([]byte{'\n'})
}
