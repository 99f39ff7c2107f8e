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

// VoucherRepo persists vouchers in PostgreSQL.
type VoucherRepo struct{ db *DB }

// NewVoucherRepo constructs a voucher repository.
func NewVoucherRepo(db *DB) *VoucherRepo { return &VoucherRepo{db: db} }

const voucherColumns = `id, code, type, user_id, value, description, expires_at,
redeemed, redeemed_by, redeemed_at, qr_code, barcode, created_at`

func (r *VoucherRepo) Save(ctx context.Context, v *models.Voucher) error {
	const q = `
INSERT INTO vouchers (id, code, type, user_id, value, description, expires_at,
                      redeemed, redeemed_by, redeemed_at, qr_code, barcode, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Pool.Exec(ctx, q, v.ID, v.Code, string(v.Type), v.UserID, v.Value,
		v.Description, v.ExpiresAt, v.Redeemed, v.RedeemedBy, v.RedeemedAt,
		v.QRCode, v.Barcode, v.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("voucher code already exists: %w", sentinel.ErrAlreadyUsed)
	}
	return err
}

func (r *VoucherRepo) FindByCode(ctx context.Context, code string) (*models.Voucher, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE code=$1`, code)
	var v models.Voucher
	var typ string
	err := row.Scan(&v.ID, &v.Code, &typ, &v.UserID, &v.Value, &v.Description,
		&v.ExpiresAt, &v.Redeemed, &v.RedeemedBy, &v.RedeemedAt, &v.QRCode, &v.Barcode, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("voucher not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	v.Type = models.VoucherType(typ)
	return &v, nil
}

// MarkRedeemed flips the redeemed flag exactly once. The WHERE clause makes
// the redeem race-free: a second caller matches zero rows.
func (r *VoucherRepo) MarkRedeemed(ctx context.Context, code string, redeemer uuid.UUID, at time.Time) error {
	const q = `
UPDATE vouchers SET redeemed=TRUE, redeemed_by=$2, redeemed_at=$3
WHERE code=$1 AND NOT redeemed`
	tag, err := r.db.Pool.Exec(ctx, q, code, redeemer, at)
	if err != nil {
		return fmt.Errorf("mark redeemed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if scanErr := r.db.Pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM vouchers WHERE code=$1)`, code).Scan(&exists); scanErr != nil {
			return fmt.Errorf("mark redeemed: %w", scanErr)
		}
		if !exists {
			return fmt.Errorf("voucher not found: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("voucher already redeemed: %w", sentinel.ErrAlreadyUsed)
	}
	return nil
}

func (r *VoucherRepo) CountByUserValueSince(ctx context.Context, userID uuid.UUID, value string, since time.Time) (int, error) {
	var count int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM vouchers WHERE user_id=$1 AND value=$2 AND created_at > $3`,
		userID, value, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count vouchers: %w", err)
	}
	return count, nil
}

func (r *VoucherRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Voucher, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+voucherColumns+` FROM vouchers WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list vouchers: %w", err)
	}
	defer rows.Close()

	var out []*models.Voucher
	for rows.Next() {
		var v models.Voucher
		var typ string
		if err := rows.Scan(&v.ID, &v.Code, &typ, &v.UserID, &v.Value, &v.Description,
			&v.ExpiresAt, &v.Redeemed, &v.RedeemedBy, &v.RedeemedAt, &v.QRCode, &v.Barcode, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		v.Type = models.VoucherType(typ)
		out = append(out, &v)
	}
	return out, rows.Err()
}
