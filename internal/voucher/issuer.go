// Package voucher issues and redeems single-use voucher credentials.
package voucher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/audit"
	"guestgate/internal/models"
	"guestgate/internal/platform/metrics"
	"guestgate/internal/sentinel"
	domainerrors "guestgate/pkg/domain-errors"
)

// codeAlphabet omits ambiguous glyphs (0/O, 1/I/L) so staff can read codes
// back over the counter.
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	codeGroups      = 2
	codeGroupLength = 4
	maxCodeAttempts = 5
)

// Store is the slice of the voucher store the issuer needs.
type Store interface {
	Save(ctx context.Context, v *models.Voucher) error
	FindByCode(ctx context.Context, code string) (*models.Voucher, error)
	MarkRedeemed(ctx context.Context, code string, redeemer uuid.UUID, at time.Time) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Voucher, error)
}

// Renderer produces the visual code blobs embedded in a voucher. Rendering is
// cosmetic: failures degrade to a voucher without images.
type Renderer interface {
	RenderQR(code string) ([]byte, error)
	RenderBarcode(code string) ([]byte, error)
}

// NoopRenderer issues vouchers without visual codes.
type NoopRenderer struct{}

func (NoopRenderer) RenderQR(string) ([]byte, error)      { return nil, nil }
func (NoopRenderer) RenderBarcode(string) ([]byte, error) { return nil, nil }

// IssueParams describes the voucher to mint.
type IssueParams struct {
	Type         models.VoucherType
	UserID       *uuid.UUID
	Value        string
	Description  string
	ValidityDays int
}

// Issuer mints and redeems vouchers.
type Issuer struct {
	store    Store
	renderer Renderer
	auditor  audit.Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option configures the Issuer.
type Option func(*Issuer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Issuer) { i.logger = logger }
}

func WithRenderer(r Renderer) Option {
	return func(i *Issuer) { i.renderer = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Issuer) { i.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

func New(store Store, auditor audit.Sink, opts ...Option) (*Issuer, error) {
	if store == nil {
		return nil, fmt.Errorf("voucher store is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	i := &Issuer{
		store:    store,
		auditor:  auditor,
		renderer: NoopRenderer{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	return i, nil
}

// Issue mints a voucher with a unique human-readable code and a computed
// expiry.
func (i *Issuer) Issue(ctx context.Context, params IssueParams) (*models.Voucher, error) {
	if params.ValidityDays <= 0 {
		return nil, domainerrors.New(domainerrors.CodeInvalidInput, "voucher validity must be positive")
	}

	code, err := i.uniqueCode(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to generate voucher code")
	}

	now := i.now()
	v := &models.Voucher{
		ID:          uuid.New(),
		Code:        code,
		Type:        params.Type,
		UserID:      params.UserID,
		Value:       params.Value,
		Description: params.Description,
		ExpiresAt:   now.AddDate(0, 0, params.ValidityDays),
		CreatedAt:   now,
	}

	if qr, err := i.renderer.RenderQR(code); err != nil {
		i.logger.Warn("qr rendering failed", "error", err, "code", code)
	} else {
		v.QRCode = qr
	}
	if barcode, err := i.renderer.RenderBarcode(code); err != nil {
		i.logger.Warn("barcode rendering failed", "error", err, "code", code)
	} else {
		v.Barcode = barcode
	}

	if err := i.store.Save(ctx, v); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to persist voucher")
	}

	i.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionVoucherIssued,
		EntityType: "voucher",
		EntityID:   code,
		UserID:     params.UserID,
		Severity:   audit.SeverityInfo,
		Details: map[string]any{
			"type":       string(params.Type),
			"value":      params.Value,
			"expires_at": v.ExpiresAt,
		},
	})
	return v, nil
}

// Redeem marks a voucher used exactly once. The redeemed flag is checked
// before expiry, so a double redemption of an expired voucher still reports
// "already redeemed".
func (i *Issuer) Redeem(ctx context.Context, code string, redeemer uuid.UUID) (*models.Voucher, error) {
	v, err := i.store.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, domainerrors.New(domainerrors.CodeNotFound, "voucher not found")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load voucher")
	}

	if v.Redeemed {
		return nil, domainerrors.New(domainerrors.CodeConflict, "voucher already redeemed")
	}
	if i.now().After(v.ExpiresAt) {
		return nil, domainerrors.New(domainerrors.CodeValidation, "voucher expired")
	}

	at := i.now()
	if err := i.store.MarkRedeemed(ctx, code, redeemer, at); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// lost the race to a concurrent redemption
			return nil, domainerrors.New(domainerrors.CodeConflict, "voucher already redeemed")
		}
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to redeem voucher")
	}

	v.Redeemed = true
	v.RedeemedBy = &redeemer
	v.RedeemedAt = &at

	if i.metrics != nil {
		i.metrics.VouchersRedeemed.Inc()
	}
	i.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionVoucherRedeemed,
		EntityType: "voucher",
		EntityID:   code,
		UserID:     v.UserID,
		Severity:   audit.SeverityInfo,
		Details:    map[string]any{"redeemed_by": redeemer.String()},
	})
	return v, nil
}

// ListForUser returns every voucher issued to the guest, redeemed or not.
func (i *Issuer) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Voucher, error) {
	vouchers, err := i.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to load vouchers")
	}
	return vouchers, nil
}

// uniqueCode draws random codes until one is unused. Collisions are
// vanishingly rare at this alphabet size but the store stays authoritative.
func (i *Issuer) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		_, err = i.store.FindByCode(ctx, code)
		if errors.Is(err, sentinel.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted %d code generation attempts", maxCodeAttempts)
}

func randomCode() (string, error) {
	groups := make([]string, 0, codeGroups)
	max := big.NewInt(int64(len(codeAlphabet)))
	for g := 0; g < codeGroups; g++ {
		var sb strings.Builder
		for c := 0; c < codeGroupLength; c++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			sb.WriteByte(codeAlphabet[n.Int64()])
		}
		groups = append(groups, sb.String())
	}
	return "GG-" + strings.Join(groups, "-"), nil
}
