package loyalty

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/audit"
	"guestgate/internal/models"
	"guestgate/internal/platform/metrics"
	"guestgate/internal/platform/tracer"
	"guestgate/internal/voucher"
	"guestgate/pkg/domain"
)

const (
	// dedupWindow bounds repeated awards of the same voucher value.
	dedupWindow = 7 * 24 * time.Hour

	defaultMaxPerWeek = 1
)

// UserStore is the slice of the user store the engine needs.
type UserStore interface {
	FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// RewardStore lists active reward definitions.
type RewardStore interface {
	ListActiveByTrigger(ctx context.Context, trigger models.TriggerType) ([]*models.Reward, error)
}

// VoucherCounter counts recently issued vouchers for the weekly cap.
type VoucherCounter interface {
	CountByUserValueSince(ctx context.Context, userID uuid.UUID, value string, since time.Time) (int, error)
}

// Issuer mints vouchers for awarded rewards.
type Issuer interface {
	Issue(ctx context.Context, params voucher.IssueParams) (*models.Voucher, error)
}

// TriggerContext carries the flow-dependent inputs a trigger may need.
type TriggerContext struct {
	TierUpgrade bool
	Referral    bool
}

// Engine evaluates reward triggers and issues the resulting vouchers.
type Engine struct {
	ladder   *Ladder
	users    UserStore
	rewards  RewardStore
	vouchers VoucherCounter
	issuer   Issuer
	auditor  audit.Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	now      func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithBands overrides the default tier boundaries.
func WithBands(bands []Band) Option {
	return func(e *Engine) { e.ladder = NewLadder(bands) }
}

func New(users UserStore, rewards RewardStore, vouchers VoucherCounter, issuer Issuer, auditor audit.Sink, opts ...Option) (*Engine, error) {
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if rewards == nil {
		return nil, fmt.Errorf("reward store is required")
	}
	if vouchers == nil {
		return nil, fmt.Errorf("voucher counter is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("voucher issuer is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	e := &Engine{
		ladder:   NewLadder(nil),
		users:    users,
		rewards:  rewards,
		vouchers: vouchers,
		issuer:   issuer,
		auditor:  auditor,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.tracer == nil {
		e.tracer = tracer.NewNoop()
	}
	return e, nil
}

// Ladder exposes the configured tier ladder.
func (e *Engine) Ladder() *Ladder {
	return e.ladder
}

// TierFor returns the tier for a visit count.
func (e *Engine) TierFor(visitCount int) Tier {
	return e.ladder.TierFor(visitCount)
}

// Progress returns the ladder position for a visit count.
func (e *Engine) Progress(visitCount int) Progress {
	return e.ladder.Progress(visitCount)
}

// CheckRewards evaluates all active reward definitions for the trigger and
// issues a voucher per awarded reward. A failure issuing one voucher never
// aborts evaluation of the remaining candidates.
func (e *Engine) CheckRewards(ctx context.Context, userID uuid.UUID, trigger models.TriggerType, tctx TriggerContext) ([]*models.Voucher, error) {
	ctx, span := e.tracer.Start(ctx, tracer.SpanRewardCheck,
		tracer.String(tracer.AttrTrigger, string(trigger)),
	)
	defer span.End(nil)

	user, err := e.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	span.SetAttributes(tracer.Int64(tracer.AttrVisitCount, int64(user.VisitCount)))

	definitions, err := e.rewards.ListActiveByTrigger(ctx, trigger)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}

	var issued []*models.Voucher
	for _, reward := range definitions {
		if !e.shouldAward(reward, user, tctx) {
			continue
		}

		// Weekly de-duplication is keyed on the voucher VALUE TEXT, not the
		// reward id: two rewards sharing a display value suppress each other.
		capPerWeek := reward.MaxPerWeek
		if capPerWeek <= 0 {
			capPerWeek = defaultMaxPerWeek
		}
		count, err := e.vouchers.CountByUserValueSince(ctx, userID, reward.Value, e.now().Add(-dedupWindow))
		if err != nil {
			e.logger.Error("weekly cap check failed", "error", err, "reward_id", reward.ID)
			continue
		}
		if count >= capPerWeek {
			continue
		}

		v, err := e.issuer.Issue(ctx, voucher.IssueParams{
			Type:         models.VoucherReward,
			UserID:       &userID,
			Value:        reward.Value,
			Description:  describeReward(reward, user.Language),
			ValidityDays: reward.ValidityDays,
		})
		if err != nil {
			e.logger.Error("voucher issuance failed",
				"error", err,
				"reward_id", reward.ID,
				"trigger", trigger,
			)
			continue
		}
		issued = append(issued, v)

		if e.metrics != nil {
			e.metrics.RewardsIssued.WithLabelValues(string(trigger)).Inc()
		}
		e.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionRewardEarned,
			EntityType: "reward",
			EntityID:   reward.ID.String(),
			UserID:     &userID,
			Severity:   audit.SeverityInfo,
			Details: map[string]any{
				"trigger":      string(trigger),
				"voucher_code": v.Code,
				"value":        reward.Value,
			},
		})
	}
	return issued, nil
}

// shouldAward applies the per-trigger award condition.
func (e *Engine) shouldAward(reward *models.Reward, user *models.User, tctx TriggerContext) bool {
	switch reward.TriggerType {
	case models.TriggerVisitCount:
		// one-shot milestone, not "at least"
		return user.VisitCount == reward.TriggerValue
	case models.TriggerTierUpgrade:
		return tctx.TierUpgrade && user.VisitCount == reward.TriggerValue
	case models.TriggerBirthday:
		return domain.SameMonthDay(user.DateOfBirth, e.now())
	case models.TriggerReferral:
		return tctx.Referral
	default:
		return false
	}
}

// rewardTemplates localize the fallback description when a definition carries
// none.
var rewardTemplates = map[string]string{
	"en": "You earned: %s",
	"de": "Du hast verdient: %s",
	"es": "Has ganado: %s",
}

func describeReward(reward *models.Reward, language string) string {
	if reward.Description != "" {
		return reward.Description
	}
	template, ok := rewardTemplates[language]
	if !ok {
		template = rewardTemplates["en"]
	}
	return fmt.Sprintf(template, reward.Value)
}
