// File: internal/orchestrator/orchestrator.go
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/karacadev/portalkeeper/internal/batch"
	"github.com/karacadev/portalkeeper/internal/browser"
	"github.com/karacadev/portalkeeper/internal/config"
	"github.com/karacadev/portalkeeper/internal/eventbus"
	"github.com/karacadev/portalkeeper/internal/health"
	"github.com/karacadev/portalkeeper/internal/platform"
	"github.com/karacadev/portalkeeper/internal/store"
)

// Service owns the login workflow end to end: the shared browser process,
// the registry of live sessions, the health monitor and the retry policy.
// One Service instance runs per process; all state lives on the struct, not
// in package globals.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger
	store  store.Store
	bus    *eventbus.Bus
	driver browserDriver

	portal    platform.Platform
	classroom platform.Platform

	// limiter paces login attempts across the whole pool so retries and
	// recoveries cannot hammer the targets.
	limiter *rate.Limiter

	mu       sync.RWMutex
	sessions map[string]*liveSession

	// runCtx governs background work (duration updaters, auto-end timers);
	// canceled by Close.
	runCtx    context.Context
	runCancel context.CancelFunc

	monitor *health.Monitor
}

// New wires a Service from its dependencies. The browser is not launched
// until Initialize or the first Login.
func New(
	cfg *config.Config,
	st store.Store,
	bus *eventbus.Bus,
	driver *browser.Driver,
	portal, classroom platform.Platform,
	logger *zap.Logger,
) *Service {
	runCtx, runCancel := context.WithCancel(context.Background())

	perAttempt := time.Minute
	if cfg.Session.AttemptsPerMinute > 0 {
		perAttempt = time.Minute / time.Duration(cfg.Session.AttemptsPerMinute)
	}

	s := &Service{
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		store:     st,
		bus:       bus,
		driver:    chromeDriver{driver},
		portal:    portal,
		classroom: classroom,
		limiter:   rate.NewLimiter(rate.Every(perAttempt), cfg.Session.LoginBatchSize),
		sessions:  make(map[string]*liveSession),
		runCtx:    runCtx,
		runCancel: runCancel,
	}
	s.monitor = health.NewMonitor(cfg.Health, st, s, portal, classroom, logger)
	return s
}

// Initialize launches the browser process and starts health monitoring.
// Login calls this lazily, so it is only required when the caller wants
// startup failures surfaced before any account is processed.
func (s *Service) Initialize(ctx context.Context) error {
	if err := s.driver.Start(ctx); err != nil {
		return fmt.Errorf("browser startup failed: %w", err)
	}
	s.monitor.Start()
	return nil
}

// RunAll logs in the given accounts in fixed-size batches. One hung or
// failed account never blocks more than its own batch.
func (s *Service) RunAll(ctx context.Context, accounts []store.Account) error {
	if len(accounts) == 0 {
		s.logger.Info("No accounts to process.")
		return nil
	}

	s.logger.Info("Starting batch logins.",
		zap.Int("accounts", len(accounts)),
		zap.Int("batch_size", s.cfg.Session.LoginBatchSize),
		zap.Int("batches", batch.NumBatches(len(accounts), s.cfg.Session.LoginBatchSize)))

	var established atomic.Int32
	err := batch.Run(ctx, len(accounts), s.cfg.Session.LoginBatchSize, 0, func(ctx context.Context, i int) {
		if s.Login(ctx, accounts[i]) {
			established.Add(1)
		}
	})
	s.logger.Info("Batch logins finished.",
		zap.Int32("established", established.Load()),
		zap.Int("accounts", len(accounts)))
	return err
}

// ActiveSessionCount returns the number of live sessions.
func (s *Service) ActiveSessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ActiveUsernames returns the accounts that currently hold a live session,
// sorted for stable output.
func (s *Service) ActiveUsernames() []string {
	s.mu.RLock()
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SessionPages exposes a live session's pages to the health monitor.
func (s *Service) SessionPages(username string) (portalPage, classroomPage platform.Page, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls, ok := s.sessions[username]
	if !ok {
		return nil, nil, false
	}
	return ls.portalPage, ls.classroomPage, true
}

// HealthStatus reports the monitor state for status queries.
func (s *Service) HealthStatus() health.Status {
	return s.monitor.Status()
}

// Monitor exposes the health monitor for explicit start/stop control.
func (s *Service) Monitor() *health.Monitor {
	return s.monitor
}

// Close stops health monitoring, tears down every live session
// concurrently and finally releases the browser process.
func (s *Service) Close(ctx context.Context) error {
	s.logger.Info("Shutting down: closing all sessions.")

	s.monitor.Stop()
	s.runCancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, username := range s.ActiveUsernames() {
		g.Go(func() error {
			s.EndSession(gctx, username)
			return nil
		})
	}
	_ = g.Wait()

	if s.driver.Started() {
		s.driver.Stop()
	}

	if _, err := s.store.CloseAllOpen(ctx, "Session terminated"); err != nil {
		s.logger.Warn("Failed to mark open accounts closed during shutdown.", zap.Error(err))
	}

	s.logger.Info("Shutdown complete.")
	return nil
}
