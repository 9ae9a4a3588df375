// Package typeast synthesizes the wire sub-selections required to fetch
// structured column types. Scalar wire types travel as single leaf fields;
// types like geometric points or intervals decompose into fixed subfield
// shapes that must be named explicitly in the request.
package typeast

import (
	"fmt"
	"strings"
	"sync"

	"github.com/graphql-go/graphql/language/ast"

	"gridbase/internal/metadata"
)

// SynthesizeFunc builds the fixed sub-selection for one structured wire type.
type SynthesizeFunc func() *ast.SelectionSet

// Registry maps structured wire type names to their selection shapes.
// Unknown structured types must be registered explicitly: treating them as
// scalar would silently under-fetch data.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]SynthesizeFunc
}

// NewRegistry returns a registry seeded with the platform's built-in
// structured types.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]SynthesizeFunc)}
	r.Register("point", pointSelection)
	r.Register("interval", intervalSelection)
	r.Register("geometry", geometrySelection)
	r.Register("geography", geographySelection)
	return r
}

// Register adds or replaces the selection shape for a wire type name.
func (r *Registry) Register(wireType string, synthesize SynthesizeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[normalizeName(wireType)] = synthesize
}

// RequiresSubfieldSelection reports whether the field's declared wire type
// needs an explicit sub-selection. Classification is pure over the type name.
func (r *Registry) RequiresSubfieldSelection(t metadata.FieldType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.builders[normalizeName(t.WireType)]; ok {
		return true
	}
	return t.Kind().IsStructured()
}

// Synthesize returns the sub-selection for a structured field. It fails for a
// structured wire type with no registered shape rather than degrading to a
// scalar fetch.
func (r *Registry) Synthesize(t metadata.FieldType) (*ast.SelectionSet, error) {
	r.mu.RLock()
	builder, ok := r.builders[normalizeName(t.WireType)]
	r.mu.RUnlock()
	if ok {
		return builder(), nil
	}
	if t.Kind().IsStructured() {
		return nil, fmt.Errorf("structured wire type %q has no registered selection shape", t.WireType)
	}
	return nil, fmt.Errorf("wire type %q is scalar and needs no sub-selection", t.WireType)
}

func normalizeName(wireType string) string {
	name := strings.ToLower(strings.TrimSpace(wireType))
	if idx := strings.Index(name, "("); idx != -1 {
		name = name[:idx]
	}
	return name
}

// pointSelection decomposes a geometric point into its two coordinates.
func pointSelection() *ast.SelectionSet {
	return selectionSet(leaf("x"), leaf("y"))
}

// intervalSelection decomposes a duration into its six integer components.
func intervalSelection() *ast.SelectionSet {
	return selectionSet(
		leaf("years"),
		leaf("months"),
		leaf("days"),
		leaf("hours"),
		leaf("minutes"),
		leaf("seconds"),
	)
}

// geometrySelection covers the polymorphic geometry variants with per-variant
// inline selections.
func geometrySelection() *ast.SelectionSet {
	return selectionSet(
		leaf("__typename"),
		inlineFragment("GeometryPoint", selectionSet(leaf("x"), leaf("y"))),
		inlineFragment("GeometryLineString", selectionSet(
			field("points", selectionSet(leaf("x"), leaf("y"))),
		)),
		inlineFragment("GeometryPolygon", selectionSet(
			field("exterior", selectionSet(
				field("points", selectionSet(leaf("x"), leaf("y"))),
			)),
		)),
	)
}

// geographySelection fetches a geo-encoded value as a single nested GeoJSON
// field.
func geographySelection() *ast.SelectionSet {
	return selectionSet(leaf("geojson"))
}

func selectionSet(selections ...ast.Selection) *ast.SelectionSet {
	return ast.NewSelectionSet(&ast.SelectionSet{Selections: selections})
}

func leaf(name string) ast.Selection {
	return ast.NewField(&ast.Field{Name: ast.NewName(&ast.Name{Value: name})})
}

func field(name string, sub *ast.SelectionSet) ast.Selection {
	return ast.NewField(&ast.Field{
		Name:         ast.NewName(&ast.Name{Value: name}),
		SelectionSet: sub,
	})
}

func inlineFragment(typeName string, sub *ast.SelectionSet) ast.Selection {
	return ast.NewInlineFragment(&ast.InlineFragment{
		TypeCondition: ast.NewNamed(&ast.Named{Name: ast.NewName(&ast.Name{Value: typeName})}),
		SelectionSet:  sub,
	})
}
