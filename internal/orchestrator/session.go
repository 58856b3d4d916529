// File: internal/orchestrator/session.go
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/karacadev/portalkeeper/internal/store"
)

// EndSession tears down the live session for username: stops its timers,
// disposes its browsing context and finalizes the persisted records. Safe to
// call from any goroutine and idempotent; a second concurrent call finds no
// registry entry and returns immediately.
func (s *Service) EndSession(ctx context.Context, username string) {
	ls := s.deregister(username)
	if ls == nil {
		return
	}

	log := s.logger.With(
		zap.String("username", username),
		zap.String("session_id", ls.sessionID))
	log.Info("Ending session.")

	if ls.autoEnd != nil {
		ls.autoEnd.Stop()
	}
	if ls.stopUpdater != nil {
		ls.stopUpdater()
	}

	// Browser teardown failures are not fatal: the context is disposed on
	// detach anyway once the process exits, and the records must be
	// finalized regardless.
	if ls.bctx != nil {
		if err := ls.bctx.Close(ctx); err != nil {
			log.Warn("Failed to dispose session browsing context.", zap.Error(err))
		}
	}

	end := time.Now()
	minutes := int(end.Sub(ls.startTime).Minutes())

	if err := s.store.CloseSession(ctx, ls.sessionID, end, minutes, store.SessionCompleted); err != nil {
		log.Error("Failed to finalize session record.", zap.Error(err))
	}
	if err := s.store.UpdateAccount(ctx, username, store.AccountUpdate{
		BrowserOpen: store.BoolPtr(false),
		Message:     store.StringPtr("session ended"),
	}); err != nil {
		log.Error("Failed to mark account browser closed.", zap.Error(err))
	}
	if err := s.store.AppendLog(ctx, store.LogEntry{
		Username: username,
		Status:   "session_ended",
		Reason:   "session ended",
		Details: map[string]any{
			"session_id": ls.sessionID,
			"duration":   minutes,
		},
	}); err != nil {
		log.Warn("Failed to append session-end audit record.", zap.Error(err))
	}

	log.Info("Session ended.", zap.Int("duration_minutes", minutes))
}
