package selection

import (
	"sort"

	"gridbase/internal/metadata"
)

// displayFieldPreference ranks common display-oriented field names used when
// auto-deriving a related table's subfield selection.
var displayFieldPreference = []string{
	"id",
	"nodeId",
	"displayName",
	"fullName",
	"username",
	"email",
	"name",
	"title",
	"slug",
	"createdAt",
	"updatedAt",
}

// maxAutoDerivedFields caps auto-derived related-table selections to bound
// query fan-out.
const maxAutoDerivedFields = 8

// Resolve resolves a spec against a table and the full catalog into a
// selection options tree. It is total and side-effect-free for a spec that
// passed Validate.
func Resolve(table *metadata.CleanTable, catalog metadata.Catalog, spec Spec) *Options {
	if spec.Preset != "" {
		return resolvePreset(table, spec.Preset)
	}
	return resolveCustom(table, catalog, spec)
}

func resolvePreset(table *metadata.CleanTable, preset Preset) *Options {
	opts := newOptions()
	switch preset {
	case PresetMinimal:
		for _, field := range table.Fields {
			if opts.Len() == 3 {
				break
			}
			opts.set(field.Name, Node{})
		}
	case PresetDisplay:
		count := displayFieldCount(len(table.Fields))
		for _, field := range table.Fields {
			if opts.Len() == count {
				break
			}
			opts.set(field.Name, Node{})
		}
	case PresetAll:
		for _, field := range table.Fields {
			opts.set(field.Name, Node{})
		}
	case PresetFull:
		for _, field := range table.Fields {
			opts.set(field.Name, Node{})
		}
		for _, rel := range table.Relations.All() {
			relation := rel
			// Shallow expansion marker: the caller decides how far to expand.
			opts.set(relation.FieldName, Node{Relation: &relation, Depth: 1})
		}
	}
	return opts
}

// displayFieldCount is intentionally schema-driven rather than hardcoded to
// field names: the first max(5, n/2) non-relational fields.
func displayFieldCount(n int) int {
	count := n / 2
	if count < 5 {
		count = 5
	}
	return count
}

func resolveCustom(table *metadata.CleanTable, catalog metadata.Catalog, spec Spec) *Options {
	opts := newOptions()
	maxDepth := spec.effectiveMaxDepth()

	// 1. Seed the field set from select, else every non-relational field.
	if len(spec.Select) > 0 {
		for _, name := range spec.Select {
			if table.Field(name) != nil {
				opts.set(name, Node{})
			}
		}
	} else {
		for _, field := range table.Fields {
			opts.set(field.Name, Node{})
		}
	}

	// 2. includeRelations attach with auto-derived subfields.
	if maxDepth > 0 {
		for _, name := range spec.IncludeRelations {
			rel := table.Relation(name)
			if rel == nil {
				continue
			}
			opts.set(name, relationNode(*rel, catalog, nil, 1))
		}

		// 3. include entries: true for auto-derivation, arrays verbatim.
		for _, name := range sortedIncludeKeys(spec.Include) {
			rel := table.Relation(name)
			if rel == nil {
				continue
			}
			inc := spec.Include[name]
			if inc.Auto {
				opts.set(name, relationNode(*rel, catalog, nil, 1))
				continue
			}
			opts.set(name, relationNode(*rel, catalog, inc.Fields, 1))
		}
	}

	// 4. Exclude is applied last and always wins.
	for _, name := range spec.Exclude {
		opts.remove(name)
	}

	return opts
}

func sortedIncludeKeys(include map[string]Include) []string {
	keys := make([]string, 0, len(include))
	for key := range include {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// relationNode builds the node for a relation accessor. With explicit fields
// those names are used verbatim; otherwise the related table's display
// fields are auto-derived.
func relationNode(rel metadata.Relation, catalog metadata.Catalog, explicit []string, depth int) Node {
	children := newOptions()
	related := catalog.Table(rel.Table)

	if len(explicit) > 0 {
		for _, name := range explicit {
			children.set(name, Node{Depth: depth})
		}
	} else if related != nil {
		for _, name := range autoDeriveDisplayFields(related) {
			children.set(name, Node{Depth: depth})
		}
	}

	relation := rel
	return Node{Relation: &relation, Children: children, Depth: depth}
}

// autoDeriveDisplayFields selects up to maxAutoDerivedFields scalar fields
// from a related table: ranked display names first, then remaining scalars in
// declaration order. This caps fan-out instead of pulling whole records.
func autoDeriveDisplayFields(table *metadata.CleanTable) []string {
	selected := make([]string, 0, maxAutoDerivedFields)
	taken := make(map[string]struct{}, maxAutoDerivedFields)

	for _, name := range displayFieldPreference {
		if len(selected) == maxAutoDerivedFields {
			return selected
		}
		if table.Field(name) != nil {
			selected = append(selected, name)
			taken[name] = struct{}{}
		}
	}

	for _, field := range table.Fields {
		if len(selected) == maxAutoDerivedFields {
			break
		}
		if _, ok := taken[field.Name]; ok {
			continue
		}
		selected = append(selected, field.Name)
	}
	return selected
}
