package draft

import (
	"context"
	"log/slog"
	"sync"

	"gridbase/internal/dataerr"
)

// Outcome aggregates one batch submission.
type Outcome struct {
	Success int
	Failed  int
}

// SubmitFunc persists one draft row's payload.
type SubmitFunc func(ctx context.Context, payload map[string]interface{}) error

// SubmitAll submits the selected draft rows concurrently and waits for every
// outcome before accounting: a failure never aborts the rest of the batch.
// Rows that succeed are removed from the draft table; rows that fail return
// to idle with their classified error populated. The callback fires once per
// batch and only when at least one row succeeded.
func (e *Engine) SubmitAll(ctx context.Context, tableKey string, rowIDs []string, submit SubmitFunc, onSuccess func(Outcome)) Outcome {
	type pending struct {
		rowID   string
		payload map[string]interface{}
	}

	e.mu.Lock()
	t, ok := e.tables[tableKey]
	if !ok {
		e.mu.Unlock()
		return Outcome{}
	}
	batch := make([]pending, 0, len(rowIDs))
	for _, rowID := range rowIDs {
		row, present := t.rows[rowID]
		if !present || row.State == StateSubmitting {
			continue
		}
		row.State = StateSubmitting
		batch = append(batch, pending{
			rowID: rowID,
			payload: PrepareSubmissionPayload(row.clone(), PayloadOptions{
				RelationColumns: t.relationColumns,
			}),
		})
	}
	e.mu.Unlock()

	if len(batch) == 0 {
		return Outcome{}
	}

	errs := make([]error, len(batch))
	var wg sync.WaitGroup
	for i, item := range batch {
		wg.Add(1)
		go func(i int, item pending) {
			defer wg.Done()
			errs[i] = submit(ctx, item.payload)
		}(i, item)
	}
	wg.Wait()

	var outcome Outcome
	e.mu.Lock()
	for i, item := range batch {
		row, present := t.rows[item.rowID]
		if !present {
			continue
		}
		if errs[i] == nil {
			e.lockedRemove(t, item.rowID)
			outcome.Success++
			continue
		}
		row.State = StateIdle
		row.Err = dataerr.Classify(errs[i])
		outcome.Failed++
	}
	e.mu.Unlock()

	e.logger.Info("draft batch submitted",
		slog.String("table", tableKey),
		slog.Int("success", outcome.Success),
		slog.Int("failed", outcome.Failed),
	)
	if outcome.Success > 0 && onSuccess != nil {
		onSuccess(outcome)
	}
	return outcome
}
