// Package selection compiles field and relation selection specifications into
// the full selection set for a table: presets or custom specs resolve against
// the normalized table model into a deterministic options tree, which renders
// to a wire selection set.
package selection

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"gridbase/internal/metadata"
)

// Preset names a predefined selection shape.
type Preset string

const (
	// PresetMinimal selects the first 3 non-relational fields.
	PresetMinimal Preset = "minimal"
	// PresetDisplay selects the first max(5, n/2) non-relational fields.
	PresetDisplay Preset = "display"
	// PresetAll selects every non-relational field, complex types included.
	PresetAll Preset = "all"
	// PresetFull selects every field including relation accessors as shallow
	// expansion markers.
	PresetFull Preset = "full"
)

// Include controls the subfield selection for one included relation: either
// auto-derived display fields or an explicit field list.
type Include struct {
	Auto   bool
	Fields []string
}

// Spec is a selection specification: a preset, or a structured spec resolved
// in a fixed order (select, includeRelations, include, then exclude last).
type Spec struct {
	Preset           Preset
	Select           []string
	Include          map[string]Include
	IncludeRelations []string
	Exclude          []string
	// MaxDepth bounds relation traversal in [0,5]; nil means the default of 1.
	MaxDepth *int
}

// DefaultMaxDepth is the relation traversal depth used when a spec does not
// set one.
const DefaultMaxDepth = 1

// MaxTraversalDepth is the hard bound on relation traversal, preventing
// unbounded expansion across self-referential or circular relation graphs.
const MaxTraversalDepth = 5

// effectiveMaxDepth clamps the spec's depth into [0, MaxTraversalDepth].
func (s Spec) effectiveMaxDepth() int {
	if s.MaxDepth == nil {
		return DefaultMaxDepth
	}
	depth := *s.MaxDepth
	if depth < 0 {
		return 0
	}
	if depth > MaxTraversalDepth {
		return MaxTraversalDepth
	}
	return depth
}

// Hash returns a stable identity for the spec, used with the table identity
// as the compiled-selection cache key.
func (s Spec) Hash() uint64 {
	h := fnv.New64a()
	write := func(parts ...string) {
		for _, part := range parts {
			_, _ = fmt.Fprintf(h, "%d:%s|", len(part), part)
		}
	}

	write("preset", string(s.Preset))
	write("select", strings.Join(s.Select, ","))
	write("includeRelations", strings.Join(s.IncludeRelations, ","))
	write("exclude", strings.Join(s.Exclude, ","))
	if s.MaxDepth != nil {
		write("maxDepth", fmt.Sprintf("%d", *s.MaxDepth))
	}

	keys := make([]string, 0, len(s.Include))
	for key := range s.Include {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		inc := s.Include[key]
		write("include", key, fmt.Sprintf("%t", inc.Auto), strings.Join(inc.Fields, ","))
	}
	return h.Sum64()
}

// Node is one entry in a resolved options tree. A nil Relation marks a scalar
// leaf; a relation node with nil Children is a shallow expansion marker.
type Node struct {
	Relation *metadata.Relation
	Children *Options
	// Depth is the traversal depth at which this node was attached, 0 for the
	// root table's own fields.
	Depth int
}

// IsScalar reports whether the node selects a plain column.
func (n Node) IsScalar() bool {
	return n.Relation == nil
}

// Options is the resolved selection tree: an ordered mapping from field name
// to its node. Resolution is deterministic; repeated resolution of the same
// spec against the same table yields the same names in the same order.
type Options struct {
	order []string
	nodes map[string]Node
}

func newOptions() *Options {
	return &Options{nodes: make(map[string]Node)}
}

// set adds or replaces a node. First insertion fixes the position.
func (o *Options) set(name string, node Node) {
	if _, exists := o.nodes[name]; !exists {
		o.order = append(o.order, name)
	}
	o.nodes[name] = node
}

// remove drops a node regardless of how it was added.
func (o *Options) remove(name string) {
	if _, exists := o.nodes[name]; !exists {
		return
	}
	delete(o.nodes, name)
	for i, existing := range o.order {
		if existing == name {
			o.order = append(o.order[:i], o.order[i+1:]...)
			break
		}
	}
}

// FieldNames returns the selected names in resolution order.
func (o *Options) FieldNames() []string {
	return append([]string(nil), o.order...)
}

// Node returns the node for a selected name.
func (o *Options) Node(name string) (Node, bool) {
	node, ok := o.nodes[name]
	return node, ok
}

// Has reports whether a name is selected.
func (o *Options) Has(name string) bool {
	_, ok := o.nodes[name]
	return ok
}

// Len returns the number of selected entries.
func (o *Options) Len() int {
	return len(o.order)
}
