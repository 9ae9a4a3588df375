package selection

import (
	"fmt"
	"sort"

	"gridbase/internal/metadata"
)

// Validation reports every violation in a spec, not just the first, so batch
// editing surfaces can show all problems at once. Failures are reported,
// never thrown.
type Validation struct {
	Errors []string
}

// IsValid reports whether the spec passed validation.
func (v Validation) IsValid() bool {
	return len(v.Errors) == 0
}

// Validate checks a spec against a table: select/exclude names must exist as
// scalar fields, includeRelations/include keys must name declared relations,
// and maxDepth must be in [0,5].
func Validate(spec Spec, table *metadata.CleanTable) Validation {
	var result Validation

	if spec.Preset != "" {
		switch spec.Preset {
		case PresetMinimal, PresetDisplay, PresetAll, PresetFull:
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("unknown preset %q", spec.Preset))
		}
	}

	for _, name := range spec.Select {
		if table.Field(name) == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("select: field %q does not exist on table %q", name, table.Name))
		}
	}
	for _, name := range spec.Exclude {
		if table.Field(name) == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("exclude: field %q does not exist on table %q", name, table.Name))
		}
	}
	for _, name := range spec.IncludeRelations {
		if table.Relation(name) == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("includeRelations: %q is not a declared relation on table %q", name, table.Name))
		}
	}

	includeKeys := make([]string, 0, len(spec.Include))
	for key := range spec.Include {
		includeKeys = append(includeKeys, key)
	}
	sort.Strings(includeKeys)
	for _, name := range includeKeys {
		if table.Relation(name) == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("include: %q is not a declared relation on table %q", name, table.Name))
		}
	}

	if spec.MaxDepth != nil {
		if depth := *spec.MaxDepth; depth < 0 || depth > MaxTraversalDepth {
			result.Errors = append(result.Errors, fmt.Sprintf("maxDepth must be between 0 and %d, got %d", MaxTraversalDepth, depth))
		}
	}

	return result
}
