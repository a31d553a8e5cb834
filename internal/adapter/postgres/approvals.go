package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Strob0t/TriggerGate/internal/domain/approval"
)

// ArchiveApproval persists a terminal approval request. The originating
// message is stored as JSON alongside the decision columns so the full
// request can be reconstructed for review.
func (s *AuditStore) ArchiveApproval(ctx context.Context, r *approval.Request) error {
	if !r.Status.Terminal() {
		return fmt.Errorf("archive approval %s: status %s is not terminal", r.ID, r.Status)
	}

	msgJSON, err := json.Marshal(r.Message)
	if err != nil {
		return fmt.Errorf("archive approval %s: marshal message: %w", r.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO approval_archive (id, requested_at, expires_at, resolved_at, resolved_by, status, reason, final_note,
		                               action_class, target_kind, target_name, exec_context, requester, message)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO NOTHING`,
		r.ID, r.CreatedAt, r.ExpiresAt, nullTime(r.ResolvedAt), r.ResolvedBy, string(r.Status), r.Reason, r.FinalNote,
		string(r.Action), string(r.Target.Kind), r.Target.Name, r.Context, r.Requester, msgJSON)
	if err != nil {
		return fmt.Errorf("archive approval %s: %w", r.ID, err)
	}
	return nil
}

// ArchivedApproval is one row of the terminal approval archive.
type ArchivedApproval struct {
	ID         string          `json:"id"`
	Status     string          `json:"status"`
	Action     string          `json:"action_class"`
	TargetKind string          `json:"target_kind"`
	TargetName string          `json:"target_name"`
	Context    string          `json:"context,omitempty"`
	Requester  string          `json:"requester"`
	ResolvedBy string          `json:"resolved_by,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	FinalNote  string          `json:"final_note,omitempty"`
	Message    json.RawMessage `json:"message"`
}

// ListArchivedApprovals returns the most recently resolved approvals.
func (s *AuditStore) ListArchivedApprovals(ctx context.Context, limit int) ([]ArchivedApproval, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, status, action_class, target_kind, target_name, exec_context, requester, resolved_by, reason, final_note, message
		 FROM approval_archive ORDER BY requested_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived approvals: %w", err)
	}
	defer rows.Close()

	var out []ArchivedApproval
	for rows.Next() {
		var a ArchivedApproval
		if err := rows.Scan(&a.ID, &a.Status, &a.Action, &a.TargetKind, &a.TargetName, &a.Context,
			&a.Requester, &a.ResolvedBy, &a.Reason, &a.FinalNote, &a.Message); err != nil {
			return nil, fmt.Errorf("scan archived approval: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
