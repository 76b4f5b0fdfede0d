package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/onnwee/clockbot/timekeeping"
)

// RunRecord is one row of action_runs.
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Action     string    `json:"action"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Artifact   string    `json:"artifact,omitempty"`
	Source     string    `json:"source"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func lastRunKey(action string) string { return "last_run_" + action }

// RecordRun stores a finished flow and updates last_run_<action> in kv.
// Re-recording the same run id is a no-op.
func (s *Store) RecordRun(ctx context.Context, r timekeeping.Run) error {
	rec := RunRecord{
		RunID:      r.ID,
		Action:     r.Outcome.Action.String(),
		Status:     r.Outcome.Status.String(),
		Detail:     r.Outcome.Detail,
		Artifact:   r.Outcome.Artifact,
		Source:     r.Trigger,
		DurationMS: r.Duration.Milliseconds(),
		CreatedAt:  r.Outcome.Timestamp.UTC(),
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO action_runs(run_id, action, status, detail, artifact, source, duration_ms, created_at)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT(run_id) DO NOTHING`,
		rec.RunID, rec.Action, rec.Status, rec.Detail, rec.Artifact, rec.Source, rec.DurationMS, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert action run: %w", err)
	}
	summary, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES($1, $2, NOW())
		 ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		lastRunKey(rec.Action), string(summary))
	if err != nil {
		return fmt.Errorf("update last run: %w", err)
	}
	return tx.Commit()
}

// RecentRuns returns up to limit runs, newest first. A non-empty action filters by action name.
func (s *Store) RecentRuns(ctx context.Context, limit int, action string) ([]RunRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q := `SELECT run_id, action, status, COALESCE(detail, ''), COALESCE(artifact, ''), COALESCE(source, ''),
	             COALESCE(duration_ms, 0), created_at
	      FROM action_runs`
	args := []any{}
	if action != "" {
		q += ` WHERE action = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, action, limit)
	} else {
		q += ` ORDER BY created_at DESC, id DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Action, &r.Status, &r.Detail, &r.Artifact, &r.Source, &r.DurationMS, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastRun returns the most recent run summary for an action from kv.
func (s *Store) LastRun(ctx context.Context, action string) (RunRecord, bool, error) {
	v, ok, err := s.GetKV(ctx, lastRunKey(action))
	if err != nil || !ok {
		return RunRecord{}, false, err
	}
	var r RunRecord
	if err := json.Unmarshal([]byte(v), &r); err != nil {
		return RunRecord{}, false, fmt.Errorf("decode %s: %w", lastRunKey(action), err)
	}
	return r, true, nil
}

// CountRuns returns the number of stored runs; used by tests and /readyz details.
func (s *Store) CountRuns(ctx context.Context) (int64, error) {
	var n sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_runs`).Scan(&n)
	return n.Int64, err
}
