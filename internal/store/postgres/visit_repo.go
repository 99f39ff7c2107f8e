package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
)

// VisitRepo persists visits in PostgreSQL.
type VisitRepo struct{ db *DB }

// NewVisitRepo constructs a visit repository.
func NewVisitRepo(db *DB) *VisitRepo { return &VisitRepo{db: db} }

func (r *VisitRepo) Save(ctx context.Context, v *models.Visit) error {
	const q = `
INSERT INTO visits (id, user_id, device_id, started_at, ended_at, data_used_bytes, source_ip)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, v.ID, v.UserID, v.DeviceID, v.StartedAt,
		v.EndedAt, v.DataUsedBytes, v.SourceIP)
	if err != nil {
		return fmt.Errorf("save visit: %w", err)
	}
	return nil
}

func (r *VisitRepo) FindByID(ctx context.Context, visitID uuid.UUID) (*models.Visit, error) {
	const q = `
SELECT id, user_id, device_id, started_at, ended_at, data_used_bytes, source_ip
FROM visits WHERE id=$1`
	var v models.Visit
	err := r.db.Pool.QueryRow(ctx, q, visitID).Scan(&v.ID, &v.UserID, &v.DeviceID,
		&v.StartedAt, &v.EndedAt, &v.DataUsedBytes, &v.SourceIP)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("visit not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan visit: %w", err)
	}
	return &v, nil
}

func (r *VisitRepo) End(ctx context.Context, visitID uuid.UUID, endedAt time.Time, dataUsed int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE visits SET ended_at=$2, data_used_bytes=$3 WHERE id=$1`, visitID, endedAt, dataUsed)
	if err != nil {
		return fmt.Errorf("end visit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("visit not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (r *VisitRepo) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM visits WHERE user_id=$1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count visits: %w", err)
	}
	return count, nil
}
