package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"gridbase/internal/cachescope"
	"gridbase/internal/metadata"
	"gridbase/internal/pagecursor"
	"gridbase/internal/queryclient"
	"gridbase/internal/rowid"
	"gridbase/internal/selection"
)

// DefaultPageSize bounds FetchRowsPage when the caller passes no limit.
const DefaultPageSize = 50

// RowsPage is one page of rows. NextCursor resumes the scan after the last
// row and is empty when the page came back short.
type RowsPage struct {
	Rows       []map[string]interface{}
	NextCursor string
}

// FetchRow retrieves a single row by primary key value. The cache entry is
// keyed by an opaque row identifier built from the table and key value, so
// the address stays stable across schema column reordering.
func (a *App) FetchRow(ctx context.Context, catalog metadata.Catalog, tableName string, keyValue interface{}) (json.RawMessage, error) {
	table := catalog.Table(tableName)
	if table == nil {
		return nil, fmt.Errorf("unknown table %q", tableName)
	}
	pk := table.PrimaryKey()
	if pk == nil {
		return nil, fmt.Errorf("table %q has no primary key", tableName)
	}
	keyVal, err := rowid.ParseKeyValue(pk.Type, keyValue)
	if err != nil {
		return nil, fmt.Errorf("invalid key value for %s.%s: %w", tableName, pk.Name, err)
	}

	rendered, err := a.renderSelection(table, catalog, selection.Spec{Preset: selection.PresetAll})
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("query Row { %s(where: {%s: {eq: %s}}, limit: 1) %s }",
		table.Name, pk.Name, wireLiteral(keyVal), rendered)

	client, key := a.dataSource(cachescope.ResourceRowByID, rowid.Encode(table.Name, keyVal))
	if client == nil {
		return nil, fmt.Errorf("no query endpoint configured")
	}
	return client.Fetch(ctx, key, queryclient.Request{Query: query})
}

// FetchRowsPage retrieves up to limit rows ordered by primary key, resuming
// after the supplied cursor. A cursor minted for a different table or
// ordering is rejected before any request is made.
func (a *App) FetchRowsPage(ctx context.Context, catalog metadata.Catalog, tableName, preset, cursor string, limit int) (RowsPage, error) {
	table := catalog.Table(tableName)
	if table == nil {
		return RowsPage{}, fmt.Errorf("unknown table %q", tableName)
	}
	pk := table.PrimaryKey()
	if pk == nil {
		return RowsPage{}, fmt.Errorf("table %q has no primary key to order by", tableName)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	directions := []string{"ASC"}
	var seek []interface{}
	if cursor != "" {
		curTable, curKey, curDirections, values, err := pagecursor.Decode(cursor)
		if err != nil {
			return RowsPage{}, err
		}
		if err := pagecursor.Validate(table.Name, pk.Name, directions, curTable, curKey, curDirections); err != nil {
			return RowsPage{}, err
		}
		seek, err = pagecursor.ParseValues(values, []metadata.CleanField{*pk})
		if err != nil {
			return RowsPage{}, err
		}
	}

	rendered, err := a.renderSelection(table, catalog, selection.Spec{Preset: selection.Preset(preset)})
	if err != nil {
		return RowsPage{}, err
	}
	args := fmt.Sprintf("orderBy: {%s: ASC}, limit: %d", pk.Name, limit)
	if len(seek) > 0 {
		args = fmt.Sprintf("where: {%s: {gt: %s}}, %s", pk.Name, wireLiteral(seek[0]), args)
	}
	query := fmt.Sprintf("query Rows { %s(%s) %s }", table.Name, args, rendered)

	client, key := a.dataSource(cachescope.ResourceRows,
		tableName, "preset:"+preset, "limit:"+strconv.Itoa(limit), "cursor:"+cursor)
	if client == nil {
		return RowsPage{}, fmt.Errorf("no query endpoint configured")
	}
	data, err := client.Fetch(ctx, key, queryclient.Request{Query: query})
	if err != nil {
		return RowsPage{}, err
	}

	var decoded map[string][]map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return RowsPage{}, fmt.Errorf("malformed rows payload: %w", err)
	}

	page := RowsPage{Rows: decoded[table.Name]}
	if len(page.Rows) == limit {
		last := page.Rows[len(page.Rows)-1][pk.Name]
		page.NextCursor = pagecursor.Encode(table.Name, pk.Name, directions, last)
	}
	return page, nil
}

func (a *App) renderSelection(table *metadata.CleanTable, catalog metadata.Catalog, spec selection.Spec) (string, error) {
	opts := a.compiler.Resolve(table, catalog, spec)
	rendered, err := a.compiler.Print(table, catalog, opts)
	if err != nil {
		return "", fmt.Errorf("failed to render selection for %q: %w", table.Name, err)
	}
	return rendered, nil
}

// wireLiteral renders a key value as a query literal. Strings are quoted,
// numbers and booleans pass through bare.
func wireLiteral(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strconv.Quote(val)
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return strconv.Quote(fmt.Sprintf("%v", val))
	}
}
