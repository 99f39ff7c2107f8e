package loyalty

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestgate/internal/audit"
	"guestgate/internal/audit/publisher"
	"guestgate/internal/models"
	rewardstore "guestgate/internal/store/reward"
	userstore "guestgate/internal/store/user"
	voucherstore "guestgate/internal/store/voucher"
	"guestgate/internal/voucher"
)

type fixture struct {
	engine   *Engine
	users    *userstore.InMemoryStore
	rewards  *rewardstore.InMemoryStore
	vouchers *voucherstore.InMemoryStore
	store    *audit.InMemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	users := userstore.New()
	rewards := rewardstore.New()
	vouchers := voucherstore.New()
	store := audit.NewInMemoryStore()
	sink := publisher.New(store)

	issuer, err := voucher.New(vouchers, sink)
	require.NoError(t, err)

	engine, err := New(users, rewards, vouchers, issuer, sink, opts...)
	require.NoError(t, err)
	return &fixture{engine: engine, users: users, rewards: rewards, vouchers: vouchers, store: store}
}

func (f *fixture) seedUser(t *testing.T, visits int, birth time.Time) uuid.UUID {
	t.Helper()
	u := &models.User{
		ID:          uuid.New(),
		Email:       "guest@example.com",
		DateOfBirth: birth,
		Language:    "en",
		VisitCount:  visits,
	}
	require.NoError(t, f.users.Save(context.Background(), u))
	return u.ID
}

func (f *fixture) seedReward(t *testing.T, trigger models.TriggerType, triggerValue int, value string) {
	t.Helper()
	require.NoError(t, f.rewards.Save(context.Background(), &models.Reward{
		ID:           uuid.New(),
		TriggerType:  trigger,
		TriggerValue: triggerValue,
		Value:        value,
		MaxPerWeek:   1,
		ValidityDays: 14,
		Active:       true,
	}))
}

func birthday(years int) time.Time {
	return time.Date(time.Now().Year()-years, time.March, 10, 0, 0, 0, 0, time.UTC)
}

func TestCheckRewardsVisitCountExactMatch(t *testing.T) {
	f := newFixture(t)
	userID := f.seedUser(t, 5, birthday(30))
	f.seedReward(t, models.TriggerVisitCount, 5, "free coffee")

	issued, err := f.engine.CheckRewards(context.Background(), userID, models.TriggerVisitCount, TriggerContext{})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "free coffee", issued[0].Value)
	assert.Len(t, f.store.ByAction(audit.ActionRewardEarned), 1)
}

func TestCheckRewardsVisitCountIsOneShot(t *testing.T) {
	f := newFixture(t)
	userID := f.seedUser(t, 6, birthday(30))
	f.seedReward(t, models.TriggerVisitCount, 5, "free coffee")

	// visit count has moved past the milestone
	issued, err := f.engine.CheckRewards(context.Background(), userID, models.TriggerVisitCount, TriggerContext{})
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestCheckRewardsTierUpgradeNeedsBothConditions(t *testing.T) {
	f := newFixture(t)
	userID := f.seedUser(t, 5, birthday(30))
	f.seedReward(t, models.TriggerTierUpgrade, 5, "free dessert")

	issued, err := f.engine.CheckRewards(context.Background(), userID, models.TriggerTierUpgrade, TriggerContext{TierUpgrade: false})
	require.NoError(t, err)
	assert.Empty(t, issued)

	issued, err = f.engine.CheckRewards(context.Background(), userID, models.TriggerTierUpgrade, TriggerContext{TierUpgrade: true})
	require.NoError(t, err)
	assert.Len(t, issued, 1)
}

func TestCheckRewardsBirthday(t *testing.T) {
	f := newFixture(t)
	f.seedReward(t, models.TriggerBirthday, 0, "birthday cake")

	today := time.Now().UTC()
	matching := f.seedUser(t, 3, time.Date(1990, today.Month(), today.Day(), 0, 0, 0, 0, time.UTC))
	issued, err := f.engine.CheckRewards(context.Background(), matching, models.TriggerBirthday, TriggerContext{})
	require.NoError(t, err)
	assert.Len(t, issued, 1)

	offDay := f.seedUser(t, 3, today.AddDate(-25, 0, 1))
	issued, err = f.engine.CheckRewards(context.Background(), offDay, models.TriggerBirthday, TriggerContext{})
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestCheckRewardsReferral(t *testing.T) {
	f := newFixture(t)
	userID := f.seedUser(t, 1, birthday(30))
	f.seedReward(t, models.TriggerReferral, 0, "referral bonus")

	issued, err := f.engine.CheckRewards(context.Background(), userID, models.TriggerReferral, TriggerContext{Referral: true})
	require.NoError(t, err)
	assert.Len(t, issued, 1)

	issued, err = f.engine.CheckRewards(context.Background(), userID, models.TriggerReferral, TriggerContext{Referral: false})
	require.NoError(t, err)
	assert.Empty(t, issued)
}

func TestCheckRewardsWeeklyCapByValueText(t *testing.T) {
	f := newFixture(t)
	userID := f.seedUser(t, 1, birthday(30))
	f.seedReward(t, models.TriggerReferral, 0, "free coffee")

	issued, err := f.engine.CheckRewards(context.Background(), userID, models.TriggerReferral, TriggerContext{Referral: true})
	require.NoError(t, err)
	require.Len(t, issued, 1)

	// a second award of the same value text within the week is suppressed
	issued, err = f.engine.CheckRewards(context.Background(), userID, models.TriggerReferral, TriggerContext{Referral: true})
	require.NoError(t, err)
	assert.Empty(t, issued)
}

type flakyIssuer struct {
	inner *voucher.Issuer
	fail  string
}

func (f *flakyIssuer) Issue(ctx context.Context, params voucher.IssueParams) (*models.Voucher, error) {
	if params.Value == f.fail {
		return nil, errors.New("renderer offline")
	}
	return f.inner.Issue(ctx, params)
}

func TestCheckRewardsIsolatesIssueFailures(t *testing.T) {
	users := userstore.New()
	rewards := rewardstore.New()
	vouchers := voucherstore.New()
	sink := publisher.New(audit.NewInMemoryStore())

	inner, err := voucher.New(vouchers, sink)
	require.NoError(t, err)

	engine, err := New(users, rewards, vouchers, &flakyIssuer{inner: inner, fail: "broken reward"}, sink)
	require.NoError(t, err)

	u := &models.User{ID: uuid.New(), Email: "guest@example.com", VisitCount: 1}
	require.NoError(t, users.Save(context.Background(), u))
	for _, value := range []string{"broken reward", "working reward"} {
		require.NoError(t, rewards.Save(context.Background(), &models.Reward{
			ID: uuid.New(), TriggerType: models.TriggerReferral, Value: value,
			MaxPerWeek: 1, ValidityDays: 7, Active: true,
		}))
	}

	issued, err := engine.CheckRewards(context.Background(), u.ID, models.TriggerReferral, TriggerContext{Referral: true})
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, "working reward", issued[0].Value)
}
