package selection

import (
	"fmt"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"

	"gridbase/internal/metadata"
)

// Render converts a resolved options tree into a wire selection set.
// Structured column types receive their synthesized sub-selections; relation
// nodes render with their child selections, and shallow relation markers are
// expanded with auto-derived display fields.
func (c *Compiler) Render(table *metadata.CleanTable, catalog metadata.Catalog, opts *Options) (*ast.SelectionSet, error) {
	selections := make([]ast.Selection, 0, opts.Len())

	for _, name := range opts.FieldNames() {
		node, _ := opts.Node(name)

		if node.IsScalar() {
			field := table.Field(name)
			if field == nil {
				return nil, fmt.Errorf("selected field %q does not exist on table %q", name, table.Name)
			}
			sel, err := c.renderColumn(name, field.Type)
			if err != nil {
				return nil, err
			}
			selections = append(selections, sel)
			continue
		}

		children := node.Children
		if children == nil || children.Len() == 0 {
			// Shallow expansion marker from the full preset.
			related := catalog.Table(node.Relation.Table)
			children = newOptions()
			if related != nil {
				for _, childName := range autoDeriveDisplayFields(related) {
					children.set(childName, Node{Depth: node.Depth})
				}
			}
		}

		childSet, err := c.renderRelation(node.Relation, catalog, children)
		if err != nil {
			return nil, err
		}
		selections = append(selections, ast.NewField(&ast.Field{
			Name:         ast.NewName(&ast.Name{Value: name}),
			SelectionSet: childSet,
		}))
	}

	return ast.NewSelectionSet(&ast.SelectionSet{Selections: selections}), nil
}

// Print renders an options tree and prints it in wire form.
func (c *Compiler) Print(table *metadata.CleanTable, catalog metadata.Catalog, opts *Options) (string, error) {
	set, err := c.Render(table, catalog, opts)
	if err != nil {
		return "", err
	}
	printed, ok := printer.Print(set).(string)
	if !ok {
		return "", fmt.Errorf("unexpected printed selection type %T", printer.Print(set))
	}
	return printed, nil
}

func (c *Compiler) renderColumn(name string, t metadata.FieldType) (ast.Selection, error) {
	if c.registry.RequiresSubfieldSelection(t) {
		sub, err := c.registry.Synthesize(t)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		return ast.NewField(&ast.Field{
			Name:         ast.NewName(&ast.Name{Value: name}),
			SelectionSet: sub,
		}), nil
	}
	return ast.NewField(&ast.Field{Name: ast.NewName(&ast.Name{Value: name})}), nil
}

func (c *Compiler) renderRelation(rel *metadata.Relation, catalog metadata.Catalog, children *Options) (*ast.SelectionSet, error) {
	related := catalog.Table(rel.Table)
	selections := make([]ast.Selection, 0, children.Len())

	for _, name := range children.FieldNames() {
		if related != nil {
			if field := related.Field(name); field != nil {
				sel, err := c.renderColumn(name, field.Type)
				if err != nil {
					return nil, err
				}
				selections = append(selections, sel)
				continue
			}
		}
		// Explicit include lists may name fields the catalog does not know
		// about yet; pass them through as leaves.
		selections = append(selections, ast.NewField(&ast.Field{Name: ast.NewName(&ast.Name{Value: name})}))
	}

	return ast.NewSelectionSet(&ast.SelectionSet{Selections: selections}), nil
}
