package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"guestgate/internal/models"
	"guestgate/internal/sentinel"
)

// RewardRepo persists reward definitions in PostgreSQL.
type RewardRepo struct{ db *DB }

// NewRewardRepo constructs a reward repository.
func NewRewardRepo(db *DB) *RewardRepo { return &RewardRepo{db: db} }

const rewardColumns = `id, trigger_type, trigger_value, value, description,
max_per_week, validity_days, active, created_at`

func (r *RewardRepo) Save(ctx context.Context, rw *models.Reward) error {
	const q = `
INSERT INTO rewards (id, trigger_type, trigger_value, value, description,
                     max_per_week, validity_days, active, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    trigger_type = EXCLUDED.trigger_type,
    trigger_value = EXCLUDED.trigger_value,
    value = EXCLUDED.value,
    description = EXCLUDED.description,
    max_per_week = EXCLUDED.max_per_week,
    validity_days = EXCLUDED.validity_days,
    active = EXCLUDED.active`
	_, err := r.db.Pool.Exec(ctx, q, rw.ID, string(rw.TriggerType), rw.TriggerValue,
		rw.Value, rw.Description, rw.MaxPerWeek, rw.ValidityDays, rw.Active, rw.CreatedAt)
	if err != nil {
		return fmt.Errorf("save reward: %w", err)
	}
	return nil
}

func (r *RewardRepo) FindByID(ctx context.Context, rewardID uuid.UUID) (*models.Reward, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE id=$1`, rewardID)
	var rw models.Reward
	var trigger string
	err := row.Scan(&rw.ID, &trigger, &rw.TriggerValue, &rw.Value, &rw.Description,
		&rw.MaxPerWeek, &rw.ValidityDays, &rw.Active, &rw.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reward not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan reward: %w", err)
	}
	rw.TriggerType = models.TriggerType(trigger)
	return &rw, nil
}

func (r *RewardRepo) ListActiveByTrigger(ctx context.Context, trigger models.TriggerType) ([]*models.Reward, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE active AND trigger_type=$1`, string(trigger))
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var out []*models.Reward
	for rows.Next() {
		var rw models.Reward
		var trig string
		if err := rows.Scan(&rw.ID, &trig, &rw.TriggerValue, &rw.Value, &rw.Description,
			&rw.MaxPerWeek, &rw.ValidityDays, &rw.Active, &rw.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rw.TriggerType = models.TriggerType(trig)
		out = append(out, &rw)
	}
	return out, rows.Err()
}
