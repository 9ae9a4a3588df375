// Package draft holds locally-created rows that have not yet been persisted.
// Draft state lives entirely in memory, keyed by table, and is reconciled
// against the live schema whenever the table's metadata signature changes.
package draft

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridbase/internal/dataerr"
	"gridbase/internal/logging"
	"gridbase/internal/metadata"
	"gridbase/internal/observability"
)

// State is a draft row's lifecycle position. Rows return to idle on failed
// submission; successful rows are removed.
type State int

const (
	// StateIdle means the row is editable.
	StateIdle State = iota
	// StateSubmitting means the row is part of an in-flight batch.
	StateSubmitting
)

// ColumnRole distinguishes relation-backed columns during payload
// normalization.
type ColumnRole int

const (
	// RoleAccessor is a relation's display column. Never submitted.
	RoleAccessor ColumnRole = iota
	// RoleForeignKey is the column that actually carries the reference and is
	// the only relation column allowed in a submission payload.
	RoleForeignKey
)

// RelationColumn describes how one column participates in a relation.
type RelationColumn struct {
	Role ColumnRole
	// List marks array-valued reference columns (one-to-many style pickers).
	List bool
}

// RelationColumnsFor derives relation column roles from table metadata. Only
// belongs-to relations map onto local columns; callers with array-valued
// picker columns add those entries themselves.
func RelationColumnsFor(table *metadata.CleanTable) map[string]RelationColumn {
	columns := make(map[string]RelationColumn)
	for _, rel := range table.Relations.BelongsTo {
		columns[rel.FieldName] = RelationColumn{Role: RoleAccessor}
		columns[rel.ForeignKey] = RelationColumn{Role: RoleForeignKey}
	}
	return columns
}

// Row is one pending record. Values is keyed by column.
type Row struct {
	ID        string
	Values    map[string]interface{}
	State     State
	CreatedAt time.Time
	// Err holds the classified failure from the last submission attempt, nil
	// while the row has never failed.
	Err *dataerr.Error
}

func (r *Row) clone() Row {
	values := make(map[string]interface{}, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Row{ID: r.ID, Values: values, State: r.State, CreatedAt: r.CreatedAt, Err: r.Err}
}

// table is the per-table draft store.
type table struct {
	key             string
	columnOrder     []string
	fieldMeta       map[string]metadata.FieldType
	relationColumns map[string]RelationColumn
	metaVersion     string
	metaComponents  map[string]string
	order           []string
	rows            map[string]*Row
}

// Engine owns all draft tables. Safe for concurrent use; every public
// operation is one atomic state transition.
type Engine struct {
	mu      sync.Mutex
	tables  map[string]*table
	logger  *logging.Logger
	metrics *observability.SchemaSyncMetrics
	newID   func() string
}

// NewEngine builds an empty engine. Logger must not be nil; metrics may be.
func NewEngine(logger *logging.Logger, metrics *observability.SchemaSyncMetrics) *Engine {
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Engine{
		tables:  make(map[string]*table),
		logger:  logger.WithFields(slog.String("component", "draft")),
		metrics: metrics,
		newID:   uuid.NewString,
	}
}

// CreateDraftRow allocates a row seeded from field metadata: boolean columns
// default to false so they render as a concrete unchecked state, everything
// else to nil. The table is created on first use and its meta version
// recorded.
func (e *Engine) CreateDraftRow(tableKey string, columnOrder []string, fieldMeta map[string]metadata.FieldType, relationColumns map[string]RelationColumn, metaVersion string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tables[tableKey]
	if !ok {
		t = &table{key: tableKey, rows: make(map[string]*Row)}
		e.tables[tableKey] = t
	}
	t.columnOrder = append([]string(nil), columnOrder...)
	t.fieldMeta = fieldMeta
	t.relationColumns = relationColumns
	t.metaVersion = metaVersion

	values := make(map[string]interface{}, len(columnOrder))
	for _, column := range columnOrder {
		values[column] = defaultValue(fieldMeta[column])
	}

	row := &Row{ID: e.newID(), Values: values, CreatedAt: time.Now()}
	t.rows[row.ID] = row
	t.order = append(t.order, row.ID)

	e.logger.Debug("draft row created",
		slog.String("table", tableKey),
		slog.String("row_id", row.ID),
	)
	return row.ID
}

// UpdateDraftCell sets one cell plus an optional batch of sibling cells as a
// single transition. Used when picking a related record also fills its
// foreign-key column.
func (e *Engine) UpdateDraftCell(tableKey, rowID, columnKey string, value interface{}, extraValues map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, err := e.lockedRow(tableKey, rowID)
	if err != nil {
		return err
	}
	if row.State == StateSubmitting {
		return fmt.Errorf("draft row %s in table %s is being submitted", rowID, tableKey)
	}

	row.Values[columnKey] = value
	for key, extra := range extraValues {
		row.Values[key] = extra
	}
	return nil
}

// SyncDraftRowsWithMeta reconciles every draft row against a changed schema:
// surviving columns keep their value, added columns are seeded with their
// type default, removed columns are dropped. Returns the number of rows
// reconciled.
func (e *Engine) SyncDraftRowsWithMeta(tableKey string, nextColumnOrder []string, nextFieldMeta map[string]metadata.FieldType, nextMetaVersion string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lockedSync(tableKey, nextColumnOrder, nextFieldMeta, nil, nextMetaVersion, nil)
}

// SyncWithTable compares the stored meta version against the table's current
// signature and reconciles only when they differ. The signature is a pure
// function of column order plus field and relation metadata, so irrelevant
// re-renders never trigger a reconciliation.
func (e *Engine) SyncWithTable(meta *metadata.CleanTable) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tables[meta.Name]
	if !ok {
		return false
	}

	columnOrder := meta.FieldNames()
	fieldMeta := make(map[string]metadata.FieldType, len(meta.Fields))
	for _, field := range meta.Fields {
		fieldMeta[field.Name] = field.Type
	}
	relations := make(map[string]metadata.Relation)
	for _, rel := range meta.Relations.All() {
		relations[rel.FieldName] = rel
	}

	components := metadata.SignatureComponents(columnOrder, fieldMeta, relations)
	version := metadata.Signature(columnOrder, fieldMeta, relations)
	changed := version != t.metaVersion
	e.metrics.RecordCheck(context.Background(), meta.Name, changed)
	if !changed {
		return false
	}

	changedComponents := metadata.ChangedComponents(t.metaComponents, components)
	e.logger.Info("schema change detected, reconciling draft rows",
		slog.String("table", meta.Name),
		slog.Any("changed_components", changedComponents),
	)
	e.lockedSync(meta.Name, columnOrder, fieldMeta, components, version, RelationColumnsFor(meta))
	return true
}

func (e *Engine) lockedSync(tableKey string, columnOrder []string, fieldMeta map[string]metadata.FieldType, components map[string]string, metaVersion string, relationColumns map[string]RelationColumn) int {
	t, ok := e.tables[tableKey]
	if !ok {
		return 0
	}

	start := time.Now()
	for _, row := range t.rows {
		next := make(map[string]interface{}, len(columnOrder))
		for _, column := range columnOrder {
			if current, present := row.Values[column]; present {
				next[column] = current
				continue
			}
			next[column] = defaultValue(fieldMeta[column])
		}
		row.Values = next
	}

	t.columnOrder = append([]string(nil), columnOrder...)
	t.fieldMeta = fieldMeta
	t.metaVersion = metaVersion
	t.metaComponents = components
	if relationColumns != nil {
		t.relationColumns = relationColumns
	}

	e.metrics.RecordReconcile(context.Background(), tableKey, time.Since(start), len(t.rows))
	return len(t.rows)
}

// Rows returns a snapshot of the table's draft rows in creation order.
func (e *Engine) Rows(tableKey string) []Row {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tables[tableKey]
	if !ok {
		return nil
	}
	rows := make([]Row, 0, len(t.order))
	for _, id := range t.order {
		if row, present := t.rows[id]; present {
			rows = append(rows, row.clone())
		}
	}
	return rows
}

// Row returns a snapshot of one draft row.
func (e *Engine) Row(tableKey, rowID string) (Row, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	row, err := e.lockedRow(tableKey, rowID)
	if err != nil {
		return Row{}, false
	}
	return row.clone(), true
}

// RemoveDraftRow discards one draft row.
func (e *Engine) RemoveDraftRow(tableKey, rowID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tables[tableKey]
	if !ok {
		return
	}
	e.lockedRemove(t, rowID)
}

// DiscardTable drops a table and all of its draft rows.
func (e *Engine) DiscardTable(tableKey string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tables, tableKey)
}

// MetaVersion reports the signature recorded for a table, or "".
func (e *Engine) MetaVersion(tableKey string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.tables[tableKey]; ok {
		return t.metaVersion
	}
	return ""
}

func (e *Engine) lockedRow(tableKey, rowID string) (*Row, error) {
	t, ok := e.tables[tableKey]
	if !ok {
		return nil, fmt.Errorf("no draft table %q", tableKey)
	}
	row, ok := t.rows[rowID]
	if !ok {
		return nil, fmt.Errorf("no draft row %q in table %q", rowID, tableKey)
	}
	return row, nil
}

func (e *Engine) lockedRemove(t *table, rowID string) {
	if _, ok := t.rows[rowID]; !ok {
		return
	}
	delete(t.rows, rowID)
	for i, id := range t.order {
		if id == rowID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	// An empty draft table is indistinguishable from no table: drop the entry
	// so its recorded meta version does not outlive the drafts.
	if len(t.rows) == 0 {
		delete(e.tables, t.key)
	}
}

func defaultValue(t metadata.FieldType) interface{} {
	return t.Kind().DraftDefault()
}
