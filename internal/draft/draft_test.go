package draft

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridbase/internal/dataerr"
	"gridbase/internal/metadata"
)

func fieldMeta() map[string]metadata.FieldType {
	return map[string]metadata.FieldType{
		"id":        {WireType: "uuid"},
		"name":      {WireType: "text"},
		"published": {WireType: "boolean"},
		"ownerId":   {WireType: "uuid"},
		"owner":     {WireType: "text"},
	}
}

func columnOrder() []string {
	return []string{"id", "name", "published", "ownerId", "owner"}
}

func relationColumns() map[string]RelationColumn {
	return map[string]RelationColumn{
		"owner":   {Role: RoleAccessor},
		"ownerId": {Role: RoleForeignKey},
		"roleIds": {Role: RoleForeignKey, List: true},
	}
}

func newTestEngine() *Engine {
	return NewEngine(nil, nil)
}

func TestCreateDraftRowSeedsDefaults(t *testing.T) {
	engine := newTestEngine()
	rowID := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), relationColumns(), "v1")

	row, ok := engine.Row("posts", rowID)
	require.True(t, ok)

	assert.Equal(t, StateIdle, row.State)
	assert.Equal(t, false, row.Values["published"], "boolean columns render as a concrete unchecked state")
	assert.Nil(t, row.Values["name"])
	assert.Nil(t, row.Values["id"])
	assert.Equal(t, "v1", engine.MetaVersion("posts"))
}

func TestUpdateDraftCellAppliesExtrasAtomically(t *testing.T) {
	engine := newTestEngine()
	rowID := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), relationColumns(), "v1")

	err := engine.UpdateDraftCell("posts", rowID, "owner",
		map[string]interface{}{"id": "u1", "name": "Jane"},
		map[string]interface{}{"ownerId": "u1"},
	)
	require.NoError(t, err)

	row, _ := engine.Row("posts", rowID)
	assert.Equal(t, "u1", row.Values["ownerId"])
	assert.Equal(t, map[string]interface{}{"id": "u1", "name": "Jane"}, row.Values["owner"])
}

func TestUpdateDraftCellUnknownRow(t *testing.T) {
	engine := newTestEngine()
	engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), nil, "v1")

	assert.Error(t, engine.UpdateDraftCell("posts", "missing", "name", "x", nil))
	assert.Error(t, engine.UpdateDraftCell("absent", "missing", "name", "x", nil))
}

func TestSyncPreservesUserInput(t *testing.T) {
	engine := newTestEngine()
	order := []string{"id", "a", "c"}
	meta := map[string]metadata.FieldType{
		"id": {WireType: "uuid"},
		"a":  {WireType: "text"},
		"c":  {WireType: "text"},
	}
	rowID := engine.CreateDraftRow("posts", order, meta, nil, "v1")
	require.NoError(t, engine.UpdateDraftCell("posts", rowID, "a", "typed by hand", nil))

	nextOrder := []string{"id", "a", "b"}
	nextMeta := map[string]metadata.FieldType{
		"id": {WireType: "uuid"},
		"a":  {WireType: "text"},
		"b":  {WireType: "boolean"},
	}
	reconciled := engine.SyncDraftRowsWithMeta("posts", nextOrder, nextMeta, "v2")
	assert.Equal(t, 1, reconciled)

	row, _ := engine.Row("posts", rowID)
	assert.Equal(t, "typed by hand", row.Values["a"])
	assert.Equal(t, false, row.Values["b"], "added boolean column gets its type default")
	_, hasC := row.Values["c"]
	assert.False(t, hasC, "removed column is dropped")
	assert.Equal(t, "v2", engine.MetaVersion("posts"))
}

func TestSyncWithTableOnlyOnSignatureChange(t *testing.T) {
	engine := newTestEngine()

	meta := &metadata.CleanTable{
		Name: "posts",
		Fields: []metadata.CleanField{
			{Name: "id", Type: metadata.FieldType{WireType: "uuid"}},
			{Name: "title", Type: metadata.FieldType{WireType: "text"}},
		},
	}
	order := meta.FieldNames()
	fields := map[string]metadata.FieldType{
		"id":    {WireType: "uuid"},
		"title": {WireType: "text"},
	}
	version := metadata.Signature(order, fields, nil)
	engine.CreateDraftRow("posts", order, fields, nil, version)

	assert.False(t, engine.SyncWithTable(meta), "matching signature must not reconcile")

	meta.Fields = append(meta.Fields, metadata.CleanField{Name: "extra", Type: metadata.FieldType{WireType: "boolean"}})
	assert.True(t, engine.SyncWithTable(meta))

	rows := engine.Rows("posts")
	require.Len(t, rows, 1)
	assert.Equal(t, false, rows[0].Values["extra"])
}

func TestPrepareSubmissionPayloadNormalization(t *testing.T) {
	row := Row{
		ID: "draft-1",
		Values: map[string]interface{}{
			"id":      nil,
			"name":    "My project",
			"blank":   nil,
			"owner":   map[string]interface{}{"id": "u1", "name": "Jane"},
			"ownerId": map[string]interface{}{"id": "u1", "name": "Jane"},
			"roleIds": []interface{}{map[string]interface{}{"id": "a"}, map[string]interface{}{"id": "b"}, nil},
		},
	}

	payload := PrepareSubmissionPayload(row, PayloadOptions{RelationColumns: relationColumns()})

	assert.Equal(t, map[string]interface{}{
		"name":    "My project",
		"ownerId": "u1",
		"roleIds": []interface{}{"a", "b"},
	}, payload)
}

func TestPrepareSubmissionPayloadAllowList(t *testing.T) {
	row := Row{
		Values: map[string]interface{}{
			"name":   "kept",
			"secret": "dropped",
		},
	}
	payload := PrepareSubmissionPayload(row, PayloadOptions{AllowedColumns: []string{"name"}})
	assert.Equal(t, map[string]interface{}{"name": "kept"}, payload)
}

func TestPrepareSubmissionPayloadBareIDsPassThrough(t *testing.T) {
	row := Row{
		Values: map[string]interface{}{
			"ownerId": "u7",
			"roleIds": []interface{}{"a", "b"},
		},
	}
	payload := PrepareSubmissionPayload(row, PayloadOptions{RelationColumns: relationColumns()})
	assert.Equal(t, "u7", payload["ownerId"])
	assert.Equal(t, []interface{}{"a", "b"}, payload["roleIds"])
}

func TestSubmitAllSettlesEveryRow(t *testing.T) {
	engine := newTestEngine()
	first := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), relationColumns(), "v1")
	second := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), relationColumns(), "v1")
	require.NoError(t, engine.UpdateDraftCell("posts", first, "name", "ok", nil))
	require.NoError(t, engine.UpdateDraftCell("posts", second, "name", "dup", nil))

	callbacks := 0
	outcome := engine.SubmitAll(context.Background(), "posts", []string{first, second},
		func(ctx context.Context, payload map[string]interface{}) error {
			if payload["name"] == "dup" {
				return &dataerr.ResponseError{
					Message:    "duplicate key value violates unique constraint",
					Extensions: map[string]interface{}{"code": "23505", "constraint": "posts_name_key"},
				}
			}
			return nil
		},
		func(o Outcome) {
			callbacks++
			assert.Equal(t, Outcome{Success: 1, Failed: 1}, o)
		},
	)

	assert.Equal(t, Outcome{Success: 1, Failed: 1}, outcome)
	assert.Equal(t, 1, callbacks)

	rows := engine.Rows("posts")
	require.Len(t, rows, 1, "only the failed row is retained")
	assert.Equal(t, second, rows[0].ID)
	assert.Equal(t, StateIdle, rows[0].State)
	require.NotNil(t, rows[0].Err)
	assert.Equal(t, dataerr.KindUniqueViolation, rows[0].Err.Kind)
	assert.Equal(t, "name", rows[0].Err.FieldName)
}

func TestRemoveLastDraftRowDropsTable(t *testing.T) {
	engine := newTestEngine()
	first := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), nil, "v1")
	second := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), nil, "v1")

	engine.RemoveDraftRow("posts", first)
	assert.Equal(t, "v1", engine.MetaVersion("posts"), "table survives while rows remain")

	engine.RemoveDraftRow("posts", second)
	assert.Equal(t, "", engine.MetaVersion("posts"), "empty table entry is removed")
	assert.Nil(t, engine.Rows("posts"))
}

func TestSubmitAllDropsTableWhenEveryRowSucceeds(t *testing.T) {
	engine := newTestEngine()
	rowID := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), nil, "v1")
	require.NoError(t, engine.UpdateDraftCell("posts", rowID, "name", "done", nil))

	outcome := engine.SubmitAll(context.Background(), "posts", []string{rowID},
		func(ctx context.Context, payload map[string]interface{}) error { return nil },
		nil,
	)

	assert.Equal(t, Outcome{Success: 1}, outcome)
	assert.Equal(t, "", engine.MetaVersion("posts"), "empty table entry is removed")
	assert.Nil(t, engine.Rows("posts"))
}

func TestSubmitAllNoCallbackWhenEveryRowFails(t *testing.T) {
	engine := newTestEngine()
	rowID := engine.CreateDraftRow("posts", columnOrder(), fieldMeta(), nil, "v1")

	callbacks := 0
	outcome := engine.SubmitAll(context.Background(), "posts", []string{rowID},
		func(ctx context.Context, payload map[string]interface{}) error {
			return errors.New("connection refused")
		},
		func(Outcome) { callbacks++ },
	)

	assert.Equal(t, Outcome{Success: 0, Failed: 1}, outcome)
	assert.Equal(t, 0, callbacks)
	assert.Len(t, engine.Rows("posts"), 1)
}
