package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"guestgate/internal/audit"
)

// AuditRepo appends audit entries to PostgreSQL. Entries are never updated
// or deleted here; retention purges happen out of band.
type AuditRepo struct{ db *DB }

// NewAuditRepo constructs an audit repository.
func NewAuditRepo(db *DB) *AuditRepo { return &AuditRepo{db: db} }

func (r *AuditRepo) Append(ctx context.Context, e audit.Event) error {
	var details []byte
	if len(e.Details) > 0 {
		var err error
		details, err = json.Marshal(e.Details)
		if err != nil {
			details = nil
		}
	}
	const q = `
INSERT INTO audit_entries (ts, action, entity_type, entity_id, user_id, staff_id,
                           ip, user_agent, details, severity, request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.Pool.Exec(ctx, q, e.Timestamp, e.Action, e.EntityType, e.EntityID,
		e.UserID, e.StaffID, e.IP, e.UserAgent, details, string(e.Severity), e.RequestID)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

var _ audit.Store = (*AuditRepo)(nil)
