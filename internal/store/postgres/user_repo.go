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

// UserRepo persists users in PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, email, date_of_birth, language, marketing_consent,
visit_count, loyalty_tier, last_visit_at, blocked, block_reason, created_at`

func (r *UserRepo) Save(ctx context.Context, u *models.User) error {
	const q = `
INSERT INTO users (id, email, date_of_birth, language, marketing_consent,
                   visit_count, loyalty_tier, last_visit_at, blocked, block_reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    email = EXCLUDED.email,
    language = EXCLUDED.language,
    marketing_consent = EXCLUDED.marketing_consent,
    loyalty_tier = EXCLUDED.loyalty_tier,
    blocked = EXCLUDED.blocked,
    block_reason = EXCLUDED.block_reason`
	_, err := r.db.Pool.Exec(ctx, q, u.ID, u.Email, u.DateOfBirth, u.Language,
		u.MarketingConsent, u.VisitCount, u.LoyaltyTier, nullableTime(u.LastVisitAt),
		u.Blocked, u.BlockReason, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user already exists: %w", sentinel.ErrAlreadyUsed)
	}
	return err
}

func (r *UserRepo) FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email)=lower($1)`, email)
	return scanUser(row)
}

// IncrementVisits atomically increments the visit counter in storage and
// returns the post-increment count. The UPDATE serializes concurrent logins
// racing on the same row.
func (r *UserRepo) IncrementVisits(ctx context.Context, userID uuid.UUID, at time.Time) (int, error) {
	const q = `
UPDATE users SET visit_count = visit_count + 1, last_visit_at = $2
WHERE id = $1
RETURNING visit_count`
	var count int
	if err := r.db.Pool.QueryRow(ctx, q, userID, at).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		return 0, fmt.Errorf("increment visits: %w", err)
	}
	return count, nil
}

func (r *UserRepo) SetTier(ctx context.Context, userID uuid.UUID, tier string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET loyalty_tier=$2 WHERE id=$1`, userID, tier)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (r *UserRepo) SetBlocked(ctx context.Context, userID uuid.UUID, blocked bool, reason string) error {
	tag, err := r.db.Pool.Exec(ctx, `UPDATE users SET blocked=$2, block_reason=$3 WHERE id=$1`, userID, blocked, reason)
	if err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
	}
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var lastVisit *time.Time
	err := row.Scan(&u.ID, &u.Email, &u.DateOfBirth, &u.Language, &u.MarketingConsent,
		&u.VisitCount, &u.LoyaltyTier, &lastVisit, &u.Blocked, &u.BlockReason, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if lastVisit != nil {
		u.LastVisitAt = *lastVisit
	}
	return &u, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
