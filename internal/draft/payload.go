package draft

// PayloadOptions controls submission payload normalization.
type PayloadOptions struct {
	// IdentityColumn is dropped from the payload. Defaults to "id".
	IdentityColumn string
	// AllowedColumns restricts the payload when non-empty.
	AllowedColumns []string
	// RelationColumns maps column keys to their relation roles.
	RelationColumns map[string]RelationColumn
}

// PrepareSubmissionPayload normalizes a draft row into the mutation input
// shape. The identity column, nil values, disallowed columns, and relation
// display accessors are dropped; foreign-key columns holding display objects
// are reduced to their referenced id, and array-valued reference columns to
// an id list with nulls removed. Scalars pass through unchanged. Pure and
// total over well-formed input.
func PrepareSubmissionPayload(row Row, opts PayloadOptions) map[string]interface{} {
	identity := opts.IdentityColumn
	if identity == "" {
		identity = "id"
	}

	var allowed map[string]struct{}
	if len(opts.AllowedColumns) > 0 {
		allowed = make(map[string]struct{}, len(opts.AllowedColumns))
		for _, column := range opts.AllowedColumns {
			allowed[column] = struct{}{}
		}
	}

	payload := make(map[string]interface{}, len(row.Values))
	for column, value := range row.Values {
		if column == identity || value == nil {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[column]; !ok {
				continue
			}
		}

		relation, isRelation := opts.RelationColumns[column]
		if !isRelation {
			payload[column] = value
			continue
		}
		if relation.Role == RoleAccessor {
			continue
		}
		if relation.List {
			payload[column] = normalizeReferenceList(value)
			continue
		}
		payload[column] = normalizeReference(value)
	}
	return payload
}

// normalizeReference reduces a display object picked via a relation selector
// to its referenced id. Bare ids pass through.
func normalizeReference(value interface{}) interface{} {
	if display, ok := value.(map[string]interface{}); ok {
		return display["id"]
	}
	return value
}

// normalizeReferenceList reduces an array of display objects, ids, and nulls
// to an array of ids with nulls dropped.
func normalizeReferenceList(value interface{}) interface{} {
	items, ok := value.([]interface{})
	if !ok {
		return value
	}
	ids := make([]interface{}, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		ids = append(ids, normalizeReference(item))
	}
	return ids
}
