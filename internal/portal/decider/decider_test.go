package decider

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
	"guestgate/internal/store/device"
	"guestgate/internal/store/user"
	"guestgate/pkg/domain"
)

type fixture struct {
	svc     *Service
	devices *device.InMemoryStore
	users   *user.InMemoryStore
	store   *audit.InMemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	devices := device.New()
	users := user.New()
	store := audit.NewInMemoryStore()
	svc, err := New(devices, users, publisher.New(store))
	require.NoError(t, err)
	return &fixture{svc: svc, devices: devices, users: users, store: store}
}

func (f *fixture) seed(t *testing.T, mac domain.MAC, active, deviceBlocked, userBlocked bool) {
	t.Helper()
	ctx := context.Background()
	u := &models.User{ID: uuid.New(), Email: "guest@example.com", Blocked: userBlocked, BlockReason: blockReasonFor(userBlocked)}
	require.NoError(t, f.users.Save(ctx, u))
	require.NoError(t, f.devices.Save(ctx, &models.Device{
		ID:          uuid.New(),
		MAC:         mac,
		UserID:      u.ID,
		Active:      active,
		Blocked:     deviceBlocked,
		BlockReason: blockReasonFor(deviceBlocked),
	}))
}

func blockReasonFor(blocked bool) string {
	if blocked {
		return "abuse"
	}
	return ""
}

func TestCheckAccessAuthorizedRefreshesLastSeen(t *testing.T) {
	f := newFixture(t)
	mac := domain.MAC("aa:bb:cc:dd:ee:ff")
	f.seed(t, mac, true, false, false)

	ok, reason := f.svc.CheckAccess(context.Background(), "AA-BB-CC-DD-EE-FF")
	assert.True(t, ok)
	assert.Empty(t, reason)

	got, err := f.devices.FindByMAC(context.Background(), mac)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), got.LastSeen, time.Minute)
}

func TestCheckAccessRejectsInvalidIdentifier(t *testing.T) {
	f := newFixture(t)
	ok, reason := f.svc.CheckAccess(context.Background(), "not-a-mac")
	assert.False(t, ok)
	assert.Equal(t, ReasonInvalidIdentifier, reason)
}

func TestCheckAccessRejectsUnknownDevice(t *testing.T) {
	f := newFixture(t)
	ok, reason := f.svc.CheckAccess(context.Background(), "aa:bb:cc:dd:ee:ff")
	assert.False(t, ok)
	assert.Equal(t, ReasonUnknownDevice, reason)
}

func TestCheckAccessRejectsBlockedDevice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "aa:bb:cc:dd:ee:01", true, true, false)

	ok, reason := f.svc.CheckAccess(context.Background(), "aa:bb:cc:dd:ee:01")
	assert.False(t, ok)
	assert.Equal(t, ReasonDeviceBlocked, reason)

	denied := f.store.ByAction(audit.ActionAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "abuse", denied[0].Details["block_reason"])
}

func TestCheckAccessRejectsBlockedOwner(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "aa:bb:cc:dd:ee:02", true, false, true)

	ok, reason := f.svc.CheckAccess(context.Background(), "aa:bb:cc:dd:ee:02")
	assert.False(t, ok)
	assert.Equal(t, ReasonUserBlocked, reason)
}

func TestCheckAccessRejectsInactiveDevice(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "aa:bb:cc:dd:ee:03", false, false, false)

	ok, reason := f.svc.CheckAccess(context.Background(), "aa:bb:cc:dd:ee:03")
	assert.False(t, ok)
	assert.Equal(t, ReasonDeviceInactive, reason)
}

type failingDeviceStore struct{}

func (failingDeviceStore) FindByMAC(context.Context, domain.MAC) (*models.Device, error) {
	return nil, errors.New("connection refused")
}

func (failingDeviceStore) UpdateLastSeen(context.Context, domain.MAC, time.Time) error {
	return nil
}

func TestCheckAccessFailsClosedOnStoreError(t *testing.T) {
	store := audit.NewInMemoryStore()
	svc, err := New(failingDeviceStore{}, user.New(), publisher.New(store))
	require.NoError(t, err)

	ok, reason := svc.CheckAccess(context.Background(), "aa:bb:cc:dd:ee:ff")
	assert.False(t, ok)
	assert.Equal(t, ReasonInternalError, reason)
	assert.Len(t, store.ByAction(audit.ActionInternalError), 1)
}
