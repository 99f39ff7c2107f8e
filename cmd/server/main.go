// Command server runs the guest portal: captive-portal probe handling,
// signup/login, abuse control, and loyalty rewards behind one HTTP listener.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"guestgate/internal/abuse/guard"
	"guestgate/internal/abuse/ipban"
	"guestgate/internal/abuse/reqwindow"
	"guestgate/internal/abuse/tracker"
	"guestgate/internal/audit"
	"guestgate/internal/audit/publisher"
	"guestgate/internal/identity"
	"guestgate/internal/loyalty"
	"guestgate/internal/migrate"
	"guestgate/internal/models"
	"guestgate/internal/netctl"
	"guestgate/internal/platform/config"
	"guestgate/internal/platform/logger"
	"guestgate/internal/platform/metrics"
	"guestgate/internal/platform/tracer"
	"guestgate/internal/portal/decider"
	"guestgate/internal/portal/detector"
	"guestgate/internal/session"
	devicestore "guestgate/internal/store/device"
	"guestgate/internal/store/postgres"
	rewardstore "guestgate/internal/store/reward"
	userstore "guestgate/internal/store/user"
	visitstore "guestgate/internal/store/visit"
	voucherstore "guestgate/internal/store/voucher"
	"guestgate/internal/transport"
	"guestgate/internal/voucher"
	"guestgate/internal/workers/cleanup"
)

func main() {
	log := logger.New("guestgate", logger.WithLevel(logger.ParseLevel(os.Getenv("LOG_LEVEL"))))
	cfg := config.FromEnv()
	portal := config.DefaultPortal()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing guestgate",
		"addr", cfg.Addr,
		"portal_url", cfg.PortalURL,
		"database", cfg.DatabaseDSN != "",
		"controller", cfg.ControllerURL != "",
	)

	m := metrics.New()

	// stores: postgres when a DSN is configured, in-memory otherwise
	var (
		users    session.UserStore
		devices  interface {
			session.DeviceStore
			decider.DeviceStore
			guard.DeviceCounter
		}
		visits     session.VisitStore
		vouchers   voucher.Store
		rewards    loyalty.RewardStore
		auditStore audit.Store
	)
	var userFinder transport.UserReader
	var voucherCounter loyalty.VoucherCounter
	var deviceBlockTarget guard.Blocker
	var userBlockTarget guard.Blocker

	if cfg.DatabaseDSN != "" {
		if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		db, err := postgres.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		userRepo := postgres.NewUserRepo(db)
		deviceRepo := postgres.NewDeviceRepo(db)
		voucherRepo := postgres.NewVoucherRepo(db)

		users = userRepo
		devices = deviceRepo
		visits = postgres.NewVisitRepo(db)
		vouchers = voucherRepo
		rewards = postgres.NewRewardRepo(db)
		auditStore = postgres.NewAuditRepo(db)
		userFinder = userRepo
		voucherCounter = voucherRepo
		deviceBlockTarget = guard.NewDeviceBlocker(deviceRepo)
		userBlockTarget = guard.NewUserBlocker(userRepo)
	} else {
		log.Warn("no DATABASE_DSN set, using in-memory stores")
		userRepo := userstore.New()
		deviceRepo := devicestore.New()
		voucherRepo := voucherstore.New()

		users = userRepo
		devices = deviceRepo
		visits = visitstore.New()
		vouchers = voucherRepo
		rewards = rewardstore.New()
		auditStore = audit.NewInMemoryStore()
		userFinder = userRepo
		voucherCounter = voucherRepo
		deviceBlockTarget = guard.NewDeviceBlocker(deviceRepo)
		userBlockTarget = guard.NewUserBlocker(userRepo)
	}

	sink := publisher.New(auditStore,
		publisher.WithLogger(log),
		publisher.WithAsyncBuffer(256),
	)
	defer sink.Close()

	trc := tracer.NewOTel()

	var controller netctl.Controller = netctl.Noop{}
	if cfg.ControllerURL != "" {
		controller = netctl.NewClient(cfg.ControllerURL,
			netctl.WithLogger(log),
			netctl.WithTimeout(portal.ControllerTimeout),
		)
	}

	bans := ipban.New()
	window := reqwindow.New()
	attempts := tracker.New(tracker.WithWindow(portal.AttemptWindow))

	abuse, err := guard.New(bans, window, attempts, sink,
		guard.WithLogger(log),
		guard.WithMetrics(m),
		guard.WithConfig(guard.Config{
			MaxFailedAttempts:     portal.MaxFailedAttempts,
			BanDuration:           portal.IPBanDuration,
			RequestsPerWindow:     portal.RequestsPerWindow,
			RequestWindow:         portal.RequestWindow,
			MaxRegistrationsPerIP: portal.MaxRegistrationsPerIP,
			RegistrationWindow:    portal.RegistrationWindow,
			ControllerTimeout:     portal.ControllerTimeout,
		}),
		guard.WithDeviceCounter(devices),
		guard.WithController(controller),
	)
	if err != nil {
		log.Error("abuse guard init failed", "error", err)
		os.Exit(1)
	}
	abuse.RegisterBlocker(models.KindDevice, deviceBlockTarget)
	abuse.RegisterBlocker(models.KindUser, userBlockTarget)

	issuer, err := voucher.New(vouchers, sink,
		voucher.WithLogger(log),
		voucher.WithMetrics(m),
	)
	if err != nil {
		log.Error("voucher issuer init failed", "error", err)
		os.Exit(1)
	}

	engine, err := loyalty.New(users, rewards, voucherCounter, issuer, sink,
		loyalty.WithLogger(log),
		loyalty.WithMetrics(m),
		loyalty.WithTracer(trc),
	)
	if err != nil {
		log.Error("loyalty engine init failed", "error", err)
		os.Exit(1)
	}

	minter, err := session.NewTokenMinter([]byte(cfg.JWTSigningKey), cfg.TokenTTL)
	if err != nil {
		log.Error("token minter init failed", "error", err)
		os.Exit(1)
	}

	orch, err := session.New(users, devices, visits, abuse, engine, issuer, minter, sink,
		session.WithLogger(log),
		session.WithMetrics(m),
		session.WithTracer(trc),
		session.WithController(controller),
		session.WithPortalConfig(portal),
	)
	if err != nil {
		log.Error("session orchestrator init failed", "error", err)
		os.Exit(1)
	}

	resolver := identity.NewResolver()
	access, err := decider.New(devices, userFinder, sink,
		decider.WithLogger(log),
		decider.WithTracer(trc),
	)
	if err != nil {
		log.Error("authorization decider init failed", "error", err)
		os.Exit(1)
	}
	probes := detector.New(resolver, access, cfg.PortalURL, sink,
		detector.WithLogger(log),
		detector.WithMetrics(m),
		detector.WithTracer(trc),
	)

	server, err := transport.New(resolver, abuse, probes, orch, issuer, engine, userFinder, minter,
		transport.WithLogger(log),
		transport.WithMetrics(m),
	)
	if err != nil {
		log.Error("http server init failed", "error", err)
		os.Exit(1)
	}

	sweeper, err := cleanup.New(map[string]cleanup.Sweepable{
		"attempt_tracker": attempts,
		"ip_bans":         bans,
		"request_window":  window,
	},
		cleanup.WithLogger(log),
		cleanup.WithInterval(portal.SweepInterval),
	)
	if err != nil {
		log.Error("cleanup worker init failed", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		sweeper.Start(gctx)
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
