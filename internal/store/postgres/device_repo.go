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
	"guestgate/pkg/domain"
)

// DeviceRepo persists devices in PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceColumns = `id, mac, user_id, active, blocked, block_reason,
last_seen, data_used_bytes, failed_attempts, registered_ip, created_at`

func (r *DeviceRepo) Save(ctx context.Context, d *models.Device) error {
	const q = `
INSERT INTO devices (id, mac, user_id, active, blocked, block_reason,
                     last_seen, data_used_bytes, failed_attempts, registered_ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (mac) DO UPDATE SET
    user_id = EXCLUDED.user_id,
    active = EXCLUDED.active,
    blocked = EXCLUDED.blocked,
    block_reason = EXCLUDED.block_reason,
    last_seen = EXCLUDED.last_seen,
    data_used_bytes = EXCLUDED.data_used_bytes,
    failed_attempts = EXCLUDED.failed_attempts`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.MAC.String(), d.UserID, d.Active, d.Blocked,
		d.BlockReason, nullableTime(d.LastSeen), d.DataUsedBytes, d.FailedAttempts,
		d.RegisteredIP, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("save device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) FindByMAC(ctx context.Context, mac domain.MAC) (*models.Device, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE mac=$1`, mac.String())
	return scanDevice(row)
}

func (r *DeviceRepo) FindByID(ctx context.Context, deviceID uuid.UUID) (*models.Device, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id=$1`, deviceID)
	return scanDevice(row)
}

func (r *DeviceRepo) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM devices WHERE user_id=$1 AND active`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active devices: %w", err)
	}
	return count, nil
}

func (r *DeviceRepo) CountRegisteredByIPSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM devices WHERE registered_ip=$1 AND created_at > $2`, ip, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count registered devices: %w", err)
	}
	return count, nil
}

func (r *DeviceRepo) UpdateLastSeen(ctx context.Context, mac domain.MAC, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE devices SET last_seen=$2 WHERE mac=$1`, mac.String(), at)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (r *DeviceRepo) SetBlocked(ctx context.Context, deviceID uuid.UUID, blocked bool, reason string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE devices SET blocked=$2, block_reason=$3 WHERE id=$1`, deviceID, blocked, reason)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanDevice(row pgx.Row) (*models.Device, error) {
	var d models.Device
	var mac string
	var lastSeen *time.Time
	err := row.Scan(&d.ID, &mac, &d.UserID, &d.Active, &d.Blocked, &d.BlockReason,
		&lastSeen, &d.DataUsedBytes, &d.FailedAttempts, &d.RegisteredIP, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("device not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}
	d.MAC = domain.MAC(mac)
	if lastSeen != nil {
		d.LastSeen = *lastSeen
	}
	return &d, nil
}
