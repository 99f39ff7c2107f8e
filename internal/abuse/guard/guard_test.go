package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guestgate/internal/abuse/ipban"
	"guestgate/internal/abuse/reqwindow"
	"guestgate/internal/abuse/tracker"
	"guestgate/internal/audit"
	"guestgate/internal/audit/publisher"
	"guestgate/internal/models"
	"guestgate/internal/store/device"
	"guestgate/internal/store/user"
	"guestgate/pkg/domain"
)

type fixture struct {
	svc   *Service
	bans  *ipban.Set
	store *audit.InMemoryStore
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store := audit.NewInMemoryStore()
	bans := ipban.New()
	svc, err := New(bans, reqwindow.New(), tracker.New(), publisher.New(store), opts...)
	require.NoError(t, err)
	return &fixture{svc: svc, bans: bans, store: store}
}

func plainRequest(path string) Request {
	return Request{
		Method:    "GET",
		Path:      path,
		IP:        "203.0.113.7",
		UserAgent: "Mozilla/5.0 (Linux; Android 14)",
	}
}

func TestAdmitAllowsPlainRequest(t *testing.T) {
	f := newFixture(t)
	d := f.svc.Admit(context.Background(), plainRequest("/generate_204"))
	assert.True(t, d.Allowed)
}

func TestAdmitBypassesAllowlist(t *testing.T) {
	f := newFixture(t)
	f.bans.Ban("203.0.113.7", time.Hour)

	d := f.svc.Admit(context.Background(), plainRequest("/healthz"))
	assert.True(t, d.Allowed)
}

func TestAdmitRejectsBannedIP(t *testing.T) {
	f := newFixture(t)
	f.bans.Ban("203.0.113.7", time.Hour)

	d := f.svc.Admit(context.Background(), plainRequest("/generate_204"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "ip_banned", d.Reason)
}

func TestAdmitRejectsAndBansOnSQLInjection(t *testing.T) {
	f := newFixture(t)
	req := plainRequest("/portal")
	req.RawQuery = "name=x' OR '1'='1"

	d := f.svc.Admit(context.Background(), req)
	assert.False(t, d.Allowed)
	assert.Equal(t, "suspicious_pattern", d.Reason)
	assert.True(t, f.bans.IsBanned("203.0.113.7"))

	// every subsequent request from the address is rejected for the ban duration
	d = f.svc.Admit(context.Background(), plainRequest("/generate_204"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "ip_banned", d.Reason)
}

func TestAdmitRejectsPathTraversal(t *testing.T) {
	f := newFixture(t)
	d := f.svc.Admit(context.Background(), plainRequest("/static-files/../../etc/passwd"))
	assert.False(t, d.Allowed)
	assert.Equal(t, "suspicious_pattern", d.Reason)
}

func TestAdmitRateLimitBans(t *testing.T) {
	f := newFixture(t, WithConfig(Config{
		MaxFailedAttempts:     3,
		BanDuration:           15 * time.Minute,
		RequestsPerWindow:     5,
		RequestWindow:         time.Minute,
		MaxRegistrationsPerIP: 5,
		RegistrationWindow:    time.Hour,
	}))

	var d Decision
	for i := 0; i < 6; i++ {
		d = f.svc.Admit(context.Background(), plainRequest("/portal"))
	}
	assert.False(t, d.Allowed)
	assert.Equal(t, "rate_limit_exceeded", d.Reason)
	assert.True(t, f.bans.IsBanned("203.0.113.7"))
}

func TestAdmitLogsButAdmitsBots(t *testing.T) {
	f := newFixture(t)
	req := plainRequest("/generate_204")
	req.UserAgent = "curl/8.5.0"

	d := f.svc.Admit(context.Background(), req)
	assert.True(t, d.Allowed)
}

type stubDeviceCounter struct{ count int }

func (s *stubDeviceCounter) CountRegisteredByIPSince(context.Context, string, time.Time) (int, error) {
	return s.count, nil
}

func TestAdmitRejectsRegistrationAbuse(t *testing.T) {
	f := newFixture(t, WithDeviceCounter(&stubDeviceCounter{count: 5}))
	req := plainRequest("/api/portal/signup")
	req.Method = "POST"

	d := f.svc.Admit(context.Background(), req)
	assert.False(t, d.Allowed)
	assert.Equal(t, "registration_abuse", d.Reason)
	assert.True(t, f.bans.IsBanned("203.0.113.7"))
}

func TestTrackFailedAttemptBlocksAtThreshold(t *testing.T) {
	devices := device.New()
	mac := domain.MAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, devices.Save(context.Background(), &models.Device{MAC: mac, Active: true}))

	f := newFixture(t)
	f.svc.RegisterBlocker(models.KindDevice, NewDeviceBlocker(devices))

	fctx := FailureContext{IP: "203.0.113.7", UserAgent: "test"}
	assert.False(t, f.svc.TrackFailedAttempt(context.Background(), mac.String(), models.KindDevice, fctx))
	assert.False(t, f.svc.TrackFailedAttempt(context.Background(), mac.String(), models.KindDevice, fctx))
	assert.True(t, f.svc.TrackFailedAttempt(context.Background(), mac.String(), models.KindDevice, fctx))

	blocked, err := devices.FindByMAC(context.Background(), mac)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)
	assert.Contains(t, blocked.BlockReason, "excessive failed attempts")
	assert.True(t, f.bans.IsBanned("203.0.113.7"))

	// one critical audit entry for the crossing failure
	assert.Len(t, f.store.ByAction(audit.ActionEntityBlocked), 1)

	// still blocking past the threshold, without duplicate audit entries
	assert.True(t, f.svc.TrackFailedAttempt(context.Background(), mac.String(), models.KindDevice, fctx))
	assert.Len(t, f.store.ByAction(audit.ActionEntityBlocked), 1)
}

type stubEdgeController struct {
	macs    []string
	reasons []string
	err     error
}

func (c *stubEdgeController) BlockDevice(_ context.Context, mac domain.MAC, reason string) error {
	c.macs = append(c.macs, mac.String())
	c.reasons = append(c.reasons, reason)
	return c.err
}

func TestTrackFailedAttemptTearsDownEdgeSession(t *testing.T) {
	devices := device.New()
	mac := domain.MAC("aa:bb:cc:dd:ee:ff")
	require.NoError(t, devices.Save(context.Background(), &models.Device{MAC: mac, Active: true}))

	edge := &stubEdgeController{}
	f := newFixture(t, WithController(edge))
	f.svc.RegisterBlocker(models.KindDevice, NewDeviceBlocker(devices))

	fctx := FailureContext{IP: "203.0.113.7", UserAgent: "test"}
	for i := 0; i < 3; i++ {
		f.svc.TrackFailedAttempt(context.Background(), mac.String(), models.KindDevice, fctx)
	}

	require.Len(t, edge.macs, 1)
	assert.Equal(t, mac.String(), edge.macs[0])
	assert.Contains(t, edge.reasons[0], "excessive failed attempts")
}

func TestControllerFailureDoesNotReverseBlock(t *testing.T) {
	devices := device.New()
	mac := domain.MAC("aa:bb:cc:dd:ee:01")
	require.NoError(t, devices.Save(context.Background(), &models.Device{MAC: mac, Active: true}))

	edge := &stubEdgeController{err: errors.New("edge unreachable")}
	f := newFixture(t, WithController(edge))
	f.svc.RegisterBlocker(models.KindDevice, NewDeviceBlocker(devices))

	fctx := FailureContext{IP: "203.0.113.7"}
	for i := 0; i < 3; i++ {
		f.svc.TrackFailedAttempt(context.Background(), mac.String(), models.KindDevice, fctx)
	}

	blocked, err := devices.FindByMAC(context.Background(), mac)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)
	assert.Len(t, f.store.ByAction(audit.ActionControllerFailure), 1)
}

func TestClearFailedAttemptsRestartsWindow(t *testing.T) {
	f := newFixture(t)
	fctx := FailureContext{IP: "203.0.113.9"}

	f.svc.TrackFailedAttempt(context.Background(), "guest@example.com", models.KindUser, fctx)
	f.svc.TrackFailedAttempt(context.Background(), "guest@example.com", models.KindUser, fctx)
	f.svc.ClearFailedAttempts("guest@example.com", models.KindUser)

	// fourth failure overall, but first of the new window
	assert.False(t, f.svc.TrackFailedAttempt(context.Background(), "guest@example.com", models.KindUser, fctx))
}

func TestUserBlockerByEmail(t *testing.T) {
	users := user.New()
	u := &models.User{Email: "guest@example.com"}
	require.NoError(t, users.Save(context.Background(), u))

	b := NewUserBlocker(users)
	require.NoError(t, b.Block(context.Background(), "guest@example.com", "abuse"))

	got, err := users.FindByEmail(context.Background(), "guest@example.com")
	require.NoError(t, err)
	assert.True(t, got.Blocked)
	assert.Equal(t, "abuse", got.BlockReason)
}
