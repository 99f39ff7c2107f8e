// Package session is the top-level signup/login flow: it composes identity
// validation, device-limit enforcement, visit recording, tier recalculation,
// and reward evaluation into the two portal entry operations.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"guestgate/internal/abuse/guard"
	"guestgate/internal/audit"
	"guestgate/internal/loyalty"
	"guestgate/internal/models"
	"guestgate/internal/netctl"
	"guestgate/internal/platform/config"
	"guestgate/internal/platform/metrics"
	"guestgate/internal/platform/tracer"
	"guestgate/internal/sentinel"
	"guestgate/internal/voucher"
	"guestgate/pkg/domain"
	domainerrors "guestgate/pkg/domain-errors"
)

// UserStore is the slice of the user store the orchestrator needs.
type UserStore interface {
	Save(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	IncrementVisits(ctx context.Context, userID uuid.UUID, at time.Time) (int, error)
	SetTier(ctx context.Context, userID uuid.UUID, tier string) error
}

// DeviceStore is the slice of the device store the orchestrator needs.
type DeviceStore interface {
	Save(ctx context.Context, device *models.Device) error
	FindByMAC(ctx context.Context, mac domain.MAC) (*models.Device, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	UpdateLastSeen(ctx context.Context, mac domain.MAC, at time.Time) error
}

// VisitStore records authorized sessions.
type VisitStore interface {
	Save(ctx context.Context, visit *models.Visit) error
}

// FailureGuard tracks and clears failed authentication attempts.
type FailureGuard interface {
	TrackFailedAttempt(ctx context.Context, identifier string, kind models.EntityKind, fctx guard.FailureContext) bool
	ClearFailedAttempts(identifier string, kind models.EntityKind)
}

// RewardEngine evaluates reward triggers and derives tiers.
type RewardEngine interface {
	TierFor(visitCount int) loyalty.Tier
	CheckRewards(ctx context.Context, userID uuid.UUID, trigger models.TriggerType, tctx loyalty.TriggerContext) ([]*models.Voucher, error)
}

// VoucherIssuer mints the welcome voucher.
type VoucherIssuer interface {
	Issue(ctx context.Context, params voucher.IssueParams) (*models.Voucher, error)
}

// SignupParams is the input of the signup flow.
type SignupParams struct {
	Email            string
	DateOfBirth      time.Time
	Language         string
	MarketingConsent bool
	MAC              domain.MAC
	SourceIP         string
	UserAgent        string
}

// LoginParams is the input of the login flow.
type LoginParams struct {
	Email       string
	DateOfBirth time.Time
	MAC         domain.MAC
	SourceIP    string
	UserAgent   string
}

// Result is the outcome of a successful signup or login.
type Result struct {
	Token    string
	User     *models.User
	Device   *models.Device
	Visit    *models.Visit
	Vouchers []*models.Voucher
}

// Orchestrator drives the signup and login state machines.
type Orchestrator struct {
	users      UserStore
	devices    DeviceStore
	visits     VisitStore
	guard      FailureGuard
	rewards    RewardEngine
	issuer     VoucherIssuer
	minter     *TokenMinter
	controller netctl.Controller
	auditor    audit.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	portal     config.Portal
	now        func() time.Time
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithController(c netctl.Controller) Option {
	return func(o *Orchestrator) { o.controller = c }
}

func WithPortalConfig(p config.Portal) Option {
	return func(o *Orchestrator) { o.portal = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(users UserStore, devices DeviceStore, visits VisitStore, failures FailureGuard, rewards RewardEngine, issuer VoucherIssuer, minter *TokenMinter, auditor audit.Sink, opts ...Option) (*Orchestrator, error) {
	if users == nil || devices == nil || visits == nil {
		return nil, fmt.Errorf("user, device, and visit stores are required")
	}
	if failures == nil {
		return nil, fmt.Errorf("failure guard is required")
	}
	if rewards == nil {
		return nil, fmt.Errorf("reward engine is required")
	}
	if issuer == nil {
		return nil, fmt.Errorf("voucher issuer is required")
	}
	if minter == nil {
		return nil, fmt.Errorf("token minter is required")
	}
	if auditor == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	o := &Orchestrator{
		users:      users,
		devices:    devices,
		visits:     visits,
		guard:      failures,
		rewards:    rewards,
		issuer:     issuer,
		minter:     minter,
		controller: netctl.Noop{},
		auditor:    auditor,
		portal:     config.DefaultPortal(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = tracer.NewNoop()
	}
	return o, nil
}

// Signup registers a new guest, binds the device, records the first visit,
// and mints a guest credential.
func (o *Orchestrator) Signup(ctx context.Context, params SignupParams) (result *Result, err error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanSignup,
		tracer.String(tracer.AttrDeviceHash, tracer.HashIdentifier(params.MAC.String())),
	)
	defer func() { span.End(err) }()
	defer o.recoverToGenericFailure(ctx, "signup", params.Email, &result, &err)

	if !domain.IsAtLeastYears(params.DateOfBirth, o.now(), o.portal.MinimumAge) {
		return nil, domainerrors.New(domainerrors.CodeValidation,
			fmt.Sprintf("you must be at least %d years old to sign up", o.portal.MinimumAge))
	}

	if _, err := o.users.FindByEmail(ctx, params.Email); err == nil {
		return nil, domainerrors.NewWithSuggestion(domainerrors.CodeConflict,
			"an account with this email already exists",
			"log in instead of signing up again")
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("lookup email: %w", err))
	}

	// a hardware address bound to a different account must not be rebound
	if existing, err := o.devices.FindByMAC(ctx, params.MAC); err == nil {
		owner, err := o.users.FindByID(ctx, existing.UserID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("lookup device owner: %w", err))
		}
		if owner != nil {
			return nil, domainerrors.NewWithSuggestion(domainerrors.CodeConflict,
				"this device is already registered to another account",
				"log in with the account that registered this device")
		}
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("lookup device: %w", err))
	}

	now := o.now()
	user := &models.User{
		ID:               uuid.New(),
		Email:            params.Email,
		DateOfBirth:      params.DateOfBirth,
		Language:         params.Language,
		MarketingConsent: params.MarketingConsent,
		VisitCount:       1,
		LoyaltyTier:      string(o.rewards.TierFor(1)),
		LastVisitAt:      now,
		CreatedAt:        now,
	}
	if err := o.users.Save(ctx, user); err != nil {
		return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("create user: %w", err))
	}

	// device or visit creation failing after the user exists is a fatal
	// signup error, never silently ignored
	device := &models.Device{
		ID:           uuid.New(),
		MAC:          params.MAC,
		UserID:       user.ID,
		Active:       true,
		LastSeen:     now,
		RegisteredIP: params.SourceIP,
		CreatedAt:    now,
	}
	if err := o.devices.Save(ctx, device); err != nil {
		return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("create device: %w", err))
	}

	visit, err := o.recordVisit(ctx, user.ID, device.ID, params.SourceIP)
	if err != nil {
		return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("create visit: %w", err))
	}

	var issued []*models.Voucher
	if params.MarketingConsent {
		welcome, err := o.issuer.Issue(ctx, voucher.IssueParams{
			Type:         models.VoucherPromotional,
			UserID:       &user.ID,
			Value:        "welcome gift",
			Description:  "Welcome to the loyalty program",
			ValidityDays: o.portal.WelcomeVoucherDays,
		})
		if err != nil {
			// the welcome voucher is a perk, not a signup precondition
			o.logger.Error("welcome voucher issuance failed", "error", err, "user_id", user.ID)
		} else {
			issued = append(issued, welcome)
		}
	}
	issued = append(issued, o.evaluateRewards(ctx, user.ID, loyalty.TriggerContext{},
		models.TriggerVisitCount, models.TriggerBirthday)...)

	token, err := o.minter.Mint(user.ID, device.ID, user.LoyaltyTier)
	if err != nil {
		return nil, o.internalError(ctx, "signup", params.Email, fmt.Errorf("mint token: %w", err))
	}

	if o.metrics != nil {
		o.metrics.SignupsTotal.Inc()
	}
	o.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionSignup,
		EntityType: string(models.KindUser),
		EntityID:   user.Email,
		UserID:     &user.ID,
		IP:         params.SourceIP,
		UserAgent:  params.UserAgent,
		Severity:   audit.SeverityInfo,
		Details:    map[string]any{"device": params.MAC.String(), "marketing_consent": params.MarketingConsent},
	})

	o.authorizeOnController(ctx, params.MAC)
	return &Result{Token: token, User: user, Device: device, Visit: visit, Vouchers: issued}, nil
}

// Login re-verifies a returning guest, enforces the device limit for new
// devices, records the visit, recomputes the tier, and mints a credential
// embedding the post-increment tier.
func (o *Orchestrator) Login(ctx context.Context, params LoginParams) (result *Result, err error) {
	ctx, span := o.tracer.Start(ctx, tracer.SpanLogin,
		tracer.String(tracer.AttrDeviceHash, tracer.HashIdentifier(params.MAC.String())),
	)
	defer func() { span.End(err) }()
	defer o.recoverToGenericFailure(ctx, "login", params.Email, &result, &err)

	user, err := o.users.FindByEmail(ctx, params.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, o.authFailure(ctx, params, "unknown email")
		}
		return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("lookup email: %w", err))
	}

	if !domain.SameDate(user.DateOfBirth, params.DateOfBirth) {
		return nil, o.authFailure(ctx, params, "date of birth mismatch")
	}

	if user.Blocked {
		return nil, domainerrors.New(domainerrors.CodeForbidden,
			fmt.Sprintf("your account is blocked: %s", user.BlockReason))
	}

	o.guard.ClearFailedAttempts(params.Email, models.KindUser)
	o.guard.ClearFailedAttempts(params.MAC.String(), models.KindDevice)

	now := o.now()
	device, err := o.devices.FindByMAC(ctx, params.MAC)
	switch {
	case err == nil:
		if device.UserID != user.ID {
			return nil, domainerrors.NewWithSuggestion(domainerrors.CodeConflict,
				"this device is already registered to another account",
				"log in with the account that registered this device")
		}
		if device.Blocked {
			return nil, domainerrors.New(domainerrors.CodeForbidden,
				fmt.Sprintf("this device is blocked: %s", device.BlockReason))
		}
		// existing devices always refresh, the limit applies to new ones only
		if err := o.devices.UpdateLastSeen(ctx, params.MAC, now); err != nil {
			o.logger.Warn("failed to refresh device last-seen", "error", err, "device", params.MAC.String())
		}
	case errors.Is(err, sentinel.ErrNotFound):
		active, err := o.devices.CountActiveByUser(ctx, user.ID)
		if err != nil {
			return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("count devices: %w", err))
		}
		if active >= o.portal.DeviceLimit {
			return nil, domainerrors.NewWithSuggestion(domainerrors.CodeConflict,
				fmt.Sprintf("device limit reached (%d devices)", o.portal.DeviceLimit),
				"remove one of your existing devices before adding a new one")
		}
		device = &models.Device{
			ID:           uuid.New(),
			MAC:          params.MAC,
			UserID:       user.ID,
			Active:       true,
			LastSeen:     now,
			RegisteredIP: params.SourceIP,
			CreatedAt:    now,
		}
		if err := o.devices.Save(ctx, device); err != nil {
			return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("create device: %w", err))
		}
	default:
		return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("lookup device: %w", err))
	}

	oldTier := user.LoyaltyTier
	newCount, err := o.users.IncrementVisits(ctx, user.ID, now)
	if err != nil {
		return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("increment visits: %w", err))
	}
	newTier := string(o.rewards.TierFor(newCount))
	if newTier != oldTier {
		if err := o.users.SetTier(ctx, user.ID, newTier); err != nil {
			return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("set tier: %w", err))
		}
	}
	user.VisitCount = newCount
	user.LoyaltyTier = newTier
	user.LastVisitAt = now
	span.SetAttributes(
		tracer.Int64(tracer.AttrVisitCount, int64(newCount)),
		tracer.String(tracer.AttrTier, newTier),
		tracer.Bool(tracer.AttrTierUpgrade, newTier != oldTier),
	)

	visit, err := o.recordVisit(ctx, user.ID, device.ID, params.SourceIP)
	if err != nil {
		return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("create visit: %w", err))
	}

	issued := o.evaluateRewards(ctx, user.ID, loyalty.TriggerContext{TierUpgrade: newTier != oldTier},
		models.TriggerVisitCount, models.TriggerTierUpgrade, models.TriggerBirthday)

	token, err := o.minter.Mint(user.ID, device.ID, newTier)
	if err != nil {
		return nil, o.internalError(ctx, "login", params.Email, fmt.Errorf("mint token: %w", err))
	}

	if o.metrics != nil {
		o.metrics.LoginsTotal.Inc()
	}
	o.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionLogin,
		EntityType: string(models.KindUser),
		EntityID:   user.Email,
		UserID:     &user.ID,
		IP:         params.SourceIP,
		UserAgent:  params.UserAgent,
		Severity:   audit.SeverityInfo,
		Details:    map[string]any{"device": params.MAC.String(), "visit_count": newCount, "tier": newTier},
	})

	o.authorizeOnController(ctx, params.MAC)
	return &Result{Token: token, User: user, Device: device, Visit: visit, Vouchers: issued}, nil
}

func (o *Orchestrator) recordVisit(ctx context.Context, userID, deviceID uuid.UUID, sourceIP string) (*models.Visit, error) {
	visit := &models.Visit{
		ID:        uuid.New(),
		UserID:    userID,
		DeviceID:  deviceID,
		StartedAt: o.now(),
		SourceIP:  sourceIP,
	}
	if err := o.visits.Save(ctx, visit); err != nil {
		return nil, err
	}
	return visit, nil
}

// evaluateRewards runs the engine for each trigger. Evaluation failures are
// logged and never abort the flow.
func (o *Orchestrator) evaluateRewards(ctx context.Context, userID uuid.UUID, tctx loyalty.TriggerContext, triggers ...models.TriggerType) []*models.Voucher {
	var issued []*models.Voucher
	for _, trigger := range triggers {
		vouchers, err := o.rewards.CheckRewards(ctx, userID, trigger, tctx)
		if err != nil {
			o.logger.Error("reward evaluation failed", "error", err, "trigger", trigger, "user_id", userID)
			continue
		}
		issued = append(issued, vouchers...)
	}
	return issued
}

// authFailure records a failed authentication against both the account and
// the device, then returns the uniform unauthorized error. The internal
// detail never reaches the guest.
func (o *Orchestrator) authFailure(ctx context.Context, params LoginParams, detail string) error {
	fctx := guard.FailureContext{IP: params.SourceIP, UserAgent: params.UserAgent, Detail: detail}
	o.guard.TrackFailedAttempt(ctx, params.Email, models.KindUser, fctx)
	o.guard.TrackFailedAttempt(ctx, params.MAC.String(), models.KindDevice, fctx)

	if o.metrics != nil {
		o.metrics.AuthFailures.Inc()
	}
	o.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionAuthFailed,
		EntityType: string(models.KindUser),
		EntityID:   params.Email,
		IP:         params.SourceIP,
		UserAgent:  params.UserAgent,
		Severity:   audit.SeverityWarning,
		Details:    map[string]any{"detail": detail},
	})
	return domainerrors.New(domainerrors.CodeUnauthorized, "email or date of birth is incorrect")
}

// authorizeOnController opens the network session at the edge. Best-effort:
// the guest already holds a valid credential, a controller hiccup must not
// fail the flow.
func (o *Orchestrator) authorizeOnController(ctx context.Context, mac domain.MAC) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.portal.ControllerTimeout)
	defer cancel()
	if err := o.controller.AuthorizeDevice(cctx, mac, int(o.portal.SessionDuration.Seconds()), o.portal.SessionQuotaBytes); err != nil {
		o.logger.Error("controller authorize failed", "error", err, "device", mac.String())
		if o.metrics != nil {
			o.metrics.ControllerFailures.Inc()
		}
		o.auditor.Record(ctx, audit.Event{
			Action:     audit.ActionControllerFailure,
			EntityType: string(models.KindDevice),
			EntityID:   mac.String(),
			Severity:   audit.SeverityError,
			Details:    map[string]any{"error": err.Error()},
		})
	}
}

// internalError logs and audits the underlying cause, then returns a generic
// failure. The raw cause is never surfaced to the guest.
func (o *Orchestrator) internalError(ctx context.Context, flow, email string, err error) error {
	o.logger.Error("portal flow failed", "flow", flow, "email", email, "error", err)
	o.auditor.Record(ctx, audit.Event{
		Action:     audit.ActionInternalError,
		EntityType: string(models.KindUser),
		EntityID:   email,
		Severity:   audit.SeverityError,
		Details:    map[string]any{"flow": flow, "error": err.Error()},
	})
	return domainerrors.New(domainerrors.CodeInternal, "something went wrong, please try again")
}

// recoverToGenericFailure converts a panic anywhere in the flow into the
// generic failure result.
func (o *Orchestrator) recoverToGenericFailure(ctx context.Context, flow, email string, result **Result, err *error) {
	if r := recover(); r != nil {
		*result = nil
		*err = o.internalError(ctx, flow, email, fmt.Errorf("panic: %v", r))
	}
}
