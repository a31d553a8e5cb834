package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/TriggerGate/internal/port/audit"
)

// AuditStore implements audit.Sink using PostgreSQL.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates an AuditStore backed by the given connection pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Record inserts one audit entry. A zero ID or Time is filled in here
// so callers on the decision path only describe the decision.
func (s *AuditStore) Record(ctx context.Context, e audit.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, recorded_at, delivery_id, source, channel, user_id, text, action_class, outcome, reason, target_kind, target_name, exec_context, approval_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.Time, e.DeliveryID, e.Source, e.Channel, e.UserID, e.Text,
		e.ActionClass, e.Outcome, e.Reason, e.TargetKind, e.TargetName, e.Context, nullIfEmpty(e.ApprovalID))
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, recorded_at, delivery_id, source, channel, user_id, text, action_class, outcome, reason, target_kind, target_name, exec_context, COALESCE(approval_id, '')
		 FROM audit_entries
		 WHERE ($1 = '' OR source = $1)
		   AND ($2 = '' OR outcome = $2)
		   AND recorded_at >= $3
		 ORDER BY recorded_at DESC
		 LIMIT $4`,
		f.Source, f.Outcome, sinceOrEpoch(f.Since), limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.Time, &e.DeliveryID, &e.Source, &e.Channel, &e.UserID, &e.Text,
			&e.ActionClass, &e.Outcome, &e.Reason, &e.TargetKind, &e.TargetName, &e.Context, &e.ApprovalID); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close releases the underlying pool.
func (s *AuditStore) Close() {
	s.pool.Close()
}

// nullIfEmpty returns nil for empty strings (for nullable UUID columns).
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullTime converts a zero time to nil for nullable DB columns.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func sinceOrEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
