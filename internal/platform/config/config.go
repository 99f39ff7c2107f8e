package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration for the portal service.
type Server struct {
	Addr          string
	PortalURL     string
	JWTSigningKey string
	TokenTTL      time.Duration
	DatabaseDSN   string
	ControllerURL string
}

// Portal captures the tunables of the authorization and abuse-control core.
type Portal struct {
	DeviceLimit           int
	MaxFailedAttempts     int
	AttemptWindow         time.Duration
	IPBanDuration         time.Duration
	RequestsPerWindow     int
	RequestWindow         time.Duration
	MaxRegistrationsPerIP int
	RegistrationWindow    time.Duration
	SweepInterval         time.Duration
	MinimumAge            int
	SessionDuration       time.Duration
	SessionQuotaBytes     int64
	WelcomeVoucherDays    int
	ControllerTimeout     time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("GUESTGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	portalURL := os.Getenv("GUESTGATE_PORTAL_URL")
	if portalURL == "" {
		portalURL = "http://portal.local/portal"
	}
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}
	tokenTTL := 12 * time.Hour
	if s := os.Getenv("TOKEN_TTL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			tokenTTL = d
		}
	}

	return Server{
		Addr:          addr,
		PortalURL:     portalURL,
		JWTSigningKey: jwtSigningKey,
		TokenTTL:      tokenTTL,
		DatabaseDSN:   os.Getenv("DATABASE_DSN"),
		ControllerURL: os.Getenv("CONTROLLER_URL"),
	}
}

// DefaultPortal returns the portal core defaults, with selected knobs
// overridable from the environment.
func DefaultPortal() Portal {
	p := Portal{
		DeviceLimit:           2,
		MaxFailedAttempts:     3,
		AttemptWindow:         15 * time.Minute,
		IPBanDuration:         15 * time.Minute,
		RequestsPerWindow:     50,
		RequestWindow:         60 * time.Second,
		MaxRegistrationsPerIP: 5,
		RegistrationWindow:    time.Hour,
		SweepInterval:         5 * time.Minute,
		MinimumAge:            13,
		SessionDuration:       4 * time.Hour,
		SessionQuotaBytes:     2 << 30, // 2 GiB
		WelcomeVoucherDays:    30,
		ControllerTimeout:     10 * time.Second,
	}
	if n := intFromEnv("GUESTGATE_DEVICE_LIMIT"); n > 0 {
		p.DeviceLimit = n
	}
	if n := intFromEnv("GUESTGATE_MAX_FAILED_ATTEMPTS"); n > 0 {
		p.MaxFailedAttempts = n
	}
	if n := intFromEnv("GUESTGATE_MAX_REGISTRATIONS_PER_IP"); n > 0 {
		p.MaxRegistrationsPerIP = n
	}
	if s := os.Getenv("GUESTGATE_IP_BAN_DURATION"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			p.IPBanDuration = d
		}
	}
	if s := os.Getenv("GUESTGATE_SESSION_DURATION"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			p.SessionDuration = d
		}
	}
	return p
}

func intFromEnv(key string) int {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
