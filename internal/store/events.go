package store

import (
	"context"

	"github.com/siret/somhunter-go/internal/errs"
	"github.com/siret/somhunter-go/internal/eventlog"
)

// RecordRescore inserts one row per successful rescore, the SQLite
// counterpart to eventlog.Log.Append(eventlog.CategoryResults, ...).
func (s *Store) RecordRescore(ctx context.Context, ts int64, r eventlog.RescoreRecord) error {
	if s.noop() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rescores (timestamp, context_id, used_text, used_canvas_text,
			used_canvas_bitmap, used_relocation, used_feedback, used_filters, used_knn)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts, r.ContextID, boolToInt(r.UsedText), boolToInt(r.UsedCanvasText),
		boolToInt(r.UsedCanvasBitmap), boolToInt(r.UsedRelocation), boolToInt(r.UsedFeedback),
		boolToInt(r.UsedFilters), boolToInt(r.UsedKNN))
	if err != nil {
		return errs.Wrap("store.recordRescore", err)
	}
	return nil
}

// RecordAction inserts one action row; the engine records like/bookmark
// toggles through it and does not log display requests.
func (s *Store) RecordAction(ctx context.Context, ts int64, a eventlog.ActionRecord) error {
	if s.noop() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actions (timestamp, context_id, action, frame_id, new_state, kind)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, a.ContextID, a.Action, a.FrameID, boolToInt(a.NewState), a.Kind)
	if err != nil {
		return errs.Wrap("store.recordAction", err)
	}
	return nil
}

// RecordSubmission inserts one row per submit_to_eval_server call.
func (s *Store) RecordSubmission(ctx context.Context, ts int64, r eventlog.SubmissionRecord) error {
	if s.noop() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (timestamp, context_id, frame_id, result)
		VALUES (?, ?, ?, ?)`,
		ts, r.ContextID, r.FrameID, r.Result)
	if err != nil {
		return errs.Wrap("store.recordSubmission", err)
	}
	return nil
}

// RecordSomQuery inserts one SOM-query row. The engine does not call it
// when it restarts a SOM worker.
func (s *Store) RecordSomQuery(ctx context.Context, ts int64, r eventlog.SomQueryRecord) error {
	if s.noop() {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO som_queries (timestamp, context_id, slot, frame_count)
		VALUES (?, ?, ?, ?)`,
		ts, r.ContextID, r.Slot, r.FrameCount)
	if err != nil {
		return errs.Wrap("store.recordSomQuery", err)
	}
	return nil
}

// CountByAction returns how many action rows are recorded for the
// given action name. This package's tests use it; no CLI command calls it.
func (s *Store) CountByAction(ctx context.Context, action string) (int, error) {
	if s.noop() {
		return 0, nil
	}
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE action = ?`, action)
	if err := row.Scan(&n); err != nil {
		return 0, errs.Wrap("store.countByAction", err)
	}
	return n, nil
}

func (s *Store) noop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db == nil || s.closed
}
