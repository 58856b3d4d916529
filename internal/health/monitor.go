// File: internal/health/monitor.go
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/karacadev/portalkeeper/internal/batch"
	"github.com/karacadev/portalkeeper/internal/config"
	"github.com/karacadev/portalkeeper/internal/platform"
	"github.com/karacadev/portalkeeper/internal/store"
)

// Engine is the slice of the orchestrator the monitor needs: access to live
// session pages, teardown, and re-login for recovery. Defined here so the
// monitor can be exercised with a fake in tests.
type Engine interface {
	SessionPages(username string) (portalPage, classroomPage platform.Page, ok bool)
	EndSession(ctx context.Context, username string)
	Login(ctx context.Context, acct store.Account) bool
	ActiveSessionCount() int
}

// Status is a snapshot of the monitor for status queries.
type Status struct {
	Running        bool          `json:"running"`
	Interval       time.Duration `json:"interval"`
	ActiveSessions int           `json:"active_sessions"`
}

// Monitor periodically re-verifies every open session against both
// platforms and recovers accounts whose sessions died.
type Monitor struct {
	cfg       config.HealthConfig
	store     store.Store
	engine    Engine
	portal    platform.Platform
	classroom platform.Platform
	logger    *zap.Logger

	mu      sync.Mutex
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor builds a Monitor; call Start to begin passes.
func NewMonitor(
	cfg config.HealthConfig,
	st store.Store,
	engine Engine,
	portal, classroom platform.Platform,
	logger *zap.Logger,
) *Monitor {
	return &Monitor{
		cfg:       cfg,
		store:     st,
		engine:    engine,
		portal:    portal,
		classroom: classroom,
		logger:    logger.Named("health"),
	}
}

// Start launches the monitoring loop. Calling Start on a running monitor is
// a logged no-op; there is never more than one loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		m.logger.Warn("Health monitor already running, ignoring start.")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.runCtx = ctx
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("Health monitor started.", zap.Duration("interval", m.cfg.Interval))
}

// Stop halts the loop and waits for the in-flight pass and any pending
// recoveries to finish. Safe to call on a stopped monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("Health monitor stopped.")
}

// Status reports whether the loop is running and how many sessions it
// watches over.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	return Status{
		Running:        running,
		Interval:       m.cfg.Interval,
		ActiveSessions: m.engine.ActiveSessionCount(),
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	// First pass runs immediately so a fresh start surfaces dead sessions
	// without waiting a full interval.
	m.performPass(ctx)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.performPass(ctx)
		}
	}
}

// performPass checks every open account in small batches with a pause in
// between, so a large pool does not slam the targets all at once.
func (m *Monitor) performPass(ctx context.Context) {
	accounts, err := m.store.ListOpen(ctx)
	if err != nil {
		m.logger.Error("Failed to list open accounts for health pass.", zap.Error(err))
		return
	}
	if len(accounts) == 0 {
		m.logger.Debug("No open sessions to check.")
		return
	}

	m.logger.Info("Starting health pass.",
		zap.Int("accounts", len(accounts)),
		zap.Int("batch_size", m.cfg.BatchSize))

	err = batch.Run(ctx, len(accounts), m.cfg.BatchSize, m.cfg.BatchPause, func(ctx context.Context, i int) {
		m.checkAccount(ctx, accounts[i])
	})
	if err != nil {
		m.logger.Debug("Health pass aborted.", zap.Error(err))
		return
	}
	m.logger.Info("Health pass complete.", zap.Int("accounts", len(accounts)))
}

// checkAccount probes both platforms of one account concurrently and acts
// on the combined verdict.
func (m *Monitor) checkAccount(ctx context.Context, acct store.Account) {
	log := m.logger.With(zap.String("username", acct.Username))

	portalPage, classroomPage, ok := m.engine.SessionPages(acct.Username)
	if !ok {
		// The store says open but no live session exists, e.g. after a
		// crash. Treat as offline so recovery kicks in.
		log.Warn("No live session found for open account.")
		m.handleOffline(ctx, acct, "no active session found", "no active session found")
		return
	}

	var (
		portalOK, classroomOK         bool
		portalReason, classroomReason string
	)

	g := new(errgroup.Group)
	g.Go(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
		defer cancel()
		portalOK, portalReason = m.portal.CheckHealth(checkCtx, portalPage)
		return nil
	})
	g.Go(func() error {
		checkCtx, cancel := context.WithTimeout(ctx, m.cfg.CheckTimeout)
		defer cancel()
		classroomOK, classroomReason = m.classroom.CheckHealth(checkCtx, classroomPage)
		return nil
	})
	_ = g.Wait()

	switch {
	case portalOK && classroomOK:
		log.Debug("Session healthy.",
			zap.String("portal", portalReason),
			zap.String("classroom", classroomReason))
		m.recordVerdict(ctx, acct.Username, store.StatusSuccess, "healthy on both platforms")

	case !portalOK && !classroomOK:
		log.Warn("Session offline on both platforms.",
			zap.String("portal", portalReason),
			zap.String("classroom", classroomReason))
		m.handleOffline(ctx, acct, portalReason, classroomReason)

	default:
		detail := "portal down: " + portalReason
		if !classroomOK {
			detail = "classroom down: " + classroomReason
		}
		log.Warn("Session partially degraded.", zap.String("detail", detail))
		m.recordVerdict(ctx, acct.Username, store.StatusPartialFailed, detail)
	}
}

// recordVerdict persists a non-offline verdict on the account.
func (m *Monitor) recordVerdict(ctx context.Context, username string, status store.AccountStatus, message string) {
	if err := m.store.UpdateAccount(ctx, username, store.AccountUpdate{
		Status:  store.StatusPtr(status),
		Message: store.StringPtr(message),
	}); err != nil {
		m.logger.Error("Failed to record health verdict.",
			zap.String("username", username), zap.Error(err))
	}
}

// handleOffline marks the account failed, tears the dead session down and
// schedules a delayed recovery login.
func (m *Monitor) handleOffline(ctx context.Context, acct store.Account, portalReason, classroomReason string) {
	log := m.logger.With(zap.String("username", acct.Username))

	if err := m.store.UpdateAccount(ctx, acct.Username, store.AccountUpdate{
		Status:      store.StatusPtr(store.StatusFailed),
		BrowserOpen: store.BoolPtr(false),
		Message:     store.StringPtr("session offline"),
	}); err != nil {
		log.Error("Failed to mark account offline.", zap.Error(err))
	}
	if err := m.store.AppendLog(ctx, store.LogEntry{
		Username: acct.Username,
		Status:   "offline",
		Reason:   "session offline on both platforms",
		Details: map[string]any{
			"portal":    portalReason,
			"classroom": classroomReason,
		},
	}); err != nil {
		log.Warn("Failed to append offline audit record.", zap.Error(err))
	}

	m.engine.EndSession(ctx, acct.Username)
	m.triggerRecovery(ctx, acct.Username)
}

// triggerRecovery queues the account for a fresh login after a cool-down.
// The account is parked as waiting first; the delayed goroutine re-checks
// the status so an operator action in the meantime wins over the recovery.
func (m *Monitor) triggerRecovery(ctx context.Context, username string) {
	log := m.logger.With(zap.String("username", username))

	if err := m.store.UpdateAccount(ctx, username, store.AccountUpdate{
		Status:  store.StatusPtr(store.StatusWaiting),
		Message: store.StringPtr("queued for automatic recovery"),
	}); err != nil {
		log.Error("Failed to queue account for recovery.", zap.Error(err))
		return
	}

	log.Info("Recovery scheduled.", zap.Duration("delay", m.cfg.RecoveryDelay))

	// The pass context dies when its batch settles; the cool-down and
	// re-login must survive it, bounded only by the monitor's lifetime.
	m.mu.Lock()
	runCtx := m.runCtx
	m.mu.Unlock()
	if runCtx == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx := runCtx

		if err := batch.Sleep(ctx, m.cfg.RecoveryDelay); err != nil {
			log.Debug("Recovery canceled during cool-down.", zap.Error(err))
			return
		}

		acct, err := m.store.GetAccount(ctx, username)
		if err != nil {
			log.Error("Failed to re-fetch account for recovery.", zap.Error(err))
			return
		}
		if acct.Status != store.StatusWaiting {
			log.Info("Account no longer waiting, skipping recovery.",
				zap.String("status", string(acct.Status)))
			return
		}

		log.Info("Attempting recovery login.")
		if !m.engine.Login(ctx, acct) {
			log.Warn("Recovery login did not establish a session.")
		}
	}()
}
