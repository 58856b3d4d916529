// File: internal/orchestrator/login.go
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/karacadev/portalkeeper/internal/batch"
	"github.com/karacadev/portalkeeper/internal/platform"
	"github.com/karacadev/portalkeeper/internal/store"
)

// attemptResult bundles everything one login attempt produced. The browsing
// context is only kept when at least one platform authenticated; failed
// attempts dispose it before returning.
type attemptResult struct {
	portal    platform.Outcome
	classroom platform.Outcome

	bctx          browsingContext
	portalPage    platform.Page
	classroomPage platform.Page
}

func (r attemptResult) anyRejected() bool {
	return r.portal.Kind == platform.OutcomeCredentialsRejected ||
		r.classroom.Kind == platform.OutcomeCredentialsRejected
}

func (r attemptResult) anySuccess() bool {
	return r.portal.OK() || r.classroom.OK()
}

// Login drives one account through the full dual-platform login workflow:
// bounded retries with jittered delays, credential-rejection short-circuit,
// and session establishment on full or partial success. It reports whether a
// session was established; failures are recorded against the account rather
// than returned, so batch siblings never see them.
func (s *Service) Login(ctx context.Context, acct store.Account) bool {
	log := s.logger.With(zap.String("username", acct.Username))

	if err := s.driver.Start(ctx); err != nil {
		log.Error("Browser unavailable, cannot attempt login.", zap.Error(err))
		s.markFailed(ctx, acct.Username, "browser unavailable: "+err.Error())
		return false
	}

	for attempt := 1; attempt <= s.cfg.Session.MaxRetries; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			log.Warn("Login aborted while waiting for rate limiter.", zap.Error(err))
			return false
		}

		log.Info("Starting login attempt.",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", s.cfg.Session.MaxRetries))

		res, err := s.performAttempt(ctx, acct, attempt)
		if err != nil {
			log.Warn("Login attempt failed before reaching the platforms.",
				zap.Int("attempt", attempt), zap.Error(err))
			if !s.delayRetry(ctx, attempt) {
				break
			}
			continue
		}

		if res.anyRejected() {
			// Wrong credentials will stay wrong; retrying only draws
			// attention and burns attempts.
			reason := res.portal.Reason
			if res.classroom.Kind == platform.OutcomeCredentialsRejected {
				reason = res.classroom.Reason
			}
			log.Warn("Credentials rejected, not retrying.", zap.String("reason", reason))
			s.discard(ctx, res)
			s.markFailed(ctx, acct.Username, "invalid credentials: "+reason)
			return false
		}

		if res.anySuccess() {
			return s.establishSession(ctx, acct, res)
		}

		log.Warn("Both platforms failed transiently.",
			zap.Int("attempt", attempt),
			zap.String("portal_reason", res.portal.Reason),
			zap.String("classroom_reason", res.classroom.Reason))
		s.discard(ctx, res)

		if !s.delayRetry(ctx, attempt) {
			break
		}
	}

	log.Error("All login attempts exhausted.", zap.Int("attempts", s.cfg.Session.MaxRetries))
	s.markFailed(ctx, acct.Username, fmt.Sprintf("login failed after %d attempts", s.cfg.Session.MaxRetries))
	return false
}

// delayRetry sleeps the jittered backoff between attempts. It returns false
// when the context died or this was the final attempt's slot.
func (s *Service) delayRetry(ctx context.Context, attempt int) bool {
	if attempt >= s.cfg.Session.MaxRetries {
		return false
	}
	if err := batch.Jitter(ctx, s.cfg.Session.RetryDelayMin, s.cfg.Session.RetryDelayMax); err != nil {
		return false
	}
	return true
}

// performAttempt opens a fresh isolated browsing context with one tab per
// platform, navigates both concurrently and runs both logins concurrently.
// A fresh context per attempt guarantees no cookie or cached redirect from a
// previous attempt can contaminate the classification.
func (s *Service) performAttempt(ctx context.Context, acct store.Account, attempt int) (attemptResult, error) {
	var res attemptResult

	bctx, err := s.driver.OpenContext(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to create browsing context: %w", err)
	}

	portalPage, err := bctx.NewPage(ctx)
	if err != nil {
		_ = bctx.Close(ctx)
		return res, fmt.Errorf("failed to open portal tab: %w", err)
	}
	classroomPage, err := bctx.NewPage(ctx)
	if err != nil {
		_ = bctx.Close(ctx)
		return res, fmt.Errorf("failed to open classroom tab: %w", err)
	}

	res.bctx = bctx
	res.portalPage = portalPage
	res.classroomPage = classroomPage

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return portalPage.Navigate(gctx, s.portal.LoginURL(), s.cfg.Portal.NavTimeout)
	})
	g.Go(func() error {
		return classroomPage.Navigate(gctx, s.classroom.LoginURL(), s.cfg.Classroom.NavTimeout)
	})
	if err := g.Wait(); err != nil {
		_ = bctx.Close(ctx)
		res.bctx = nil
		return res, err
	}

	creds := platform.Credentials{Username: acct.Username, Password: acct.Password}

	// Login outcomes are classifications, not errors; run both to the end
	// even when one side fails.
	var wg errgroup.Group
	wg.Go(func() error {
		res.portal = s.portal.Login(ctx, portalPage, creds)
		return nil
	})
	wg.Go(func() error {
		res.classroom = s.classroom.Login(ctx, classroomPage, creds)
		return nil
	})
	_ = wg.Wait()

	s.captureEvidence(ctx, acct.Username, attempt, res)
	return res, nil
}

// captureEvidence screenshots both tabs after an attempt. Failures here are
// logged and swallowed; evidence is never worth failing a login over.
func (s *Service) captureEvidence(ctx context.Context, username string, attempt int, res attemptResult) {
	if s.cfg.Browser.ScreenshotDir == "" {
		return
	}
	stamp := time.Now().UTC().Format("20060102T150405")
	shots := []struct {
		page    platform.Page
		name    string
		outcome platform.Outcome
	}{
		{res.portalPage, s.portal.Name(), res.portal},
		{res.classroomPage, s.classroom.Name(), res.classroom},
	}
	for _, shot := range shots {
		if shot.page == nil {
			continue
		}
		path := filepath.Join(s.cfg.Browser.ScreenshotDir,
			fmt.Sprintf("%s_%s_a%d_%s_%s.png", username, shot.name, attempt, shot.outcome.Kind, stamp))
		if err := shot.page.Screenshot(ctx, path); err != nil {
			s.logger.Debug("Screenshot failed.",
				zap.String("username", username),
				zap.String("platform", shot.name),
				zap.Error(err))
		}
	}
}

// discard disposes an attempt's browsing context when no session will be
// kept from it.
func (s *Service) discard(ctx context.Context, res attemptResult) {
	if res.bctx == nil {
		return
	}
	if err := res.bctx.Close(ctx); err != nil {
		s.logger.Debug("Failed to dispose attempt context.", zap.Error(err))
	}
}

// establishSession persists the outcome of a winning attempt, registers the
// live session and starts its background bookkeeping.
func (s *Service) establishSession(ctx context.Context, acct store.Account, res attemptResult) bool {
	log := s.logger.With(zap.String("username", acct.Username))
	now := time.Now()

	// A leftover session for the same account is stale; it must be torn
	// down before the new state is persisted, or its teardown would
	// overwrite browser_open and hide the account from the health monitor.
	s.EndSession(ctx, acct.Username)

	status := store.StatusSuccess
	message := "logged in on both platforms"
	if !res.portal.OK() {
		status = store.StatusPartialFailed
		message = "classroom only; portal failed: " + res.portal.Reason
	} else if !res.classroom.OK() {
		status = store.StatusPartialFailed
		message = "portal only; classroom failed: " + res.classroom.Reason
	}

	if err := s.store.UpdateAccount(ctx, acct.Username, store.AccountUpdate{
		Status:      store.StatusPtr(status),
		BrowserOpen: store.BoolPtr(true),
		LoginTime:   store.TimePtr(now),
		Message:     store.StringPtr(message),
	}); err != nil {
		log.Error("Failed to persist login result, tearing session down.", zap.Error(err))
		s.discard(ctx, res)
		return false
	}

	sessionID, err := s.store.CreateSession(ctx, acct.Username, now)
	if err != nil {
		log.Error("Failed to create session record, tearing session down.", zap.Error(err))
		s.discard(ctx, res)
		return false
	}

	ls := &liveSession{
		sessionID:     sessionID,
		username:      acct.Username,
		startTime:     now,
		bctx:          res.bctx,
		portalPage:    res.portalPage,
		classroomPage: res.classroomPage,
	}

	updCtx, stopUpdater := context.WithCancel(s.runCtx)
	ls.stopUpdater = stopUpdater
	go s.runDurationUpdater(updCtx, ls)

	ls.autoEnd = time.AfterFunc(s.cfg.Session.Duration, func() {
		log.Info("Session lifetime elapsed, ending session.",
			zap.Duration("lifetime", s.cfg.Session.Duration))
		endCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.EndSession(endCtx, acct.Username)
	})

	s.register(ls)

	log.Info("Session established.",
		zap.String("session_id", sessionID),
		zap.String("status", string(status)),
		zap.String("detail", message))

	if err := s.store.AppendLog(ctx, store.LogEntry{
		Username: acct.Username,
		Status:   string(status),
		Reason:   message,
		Details: map[string]any{
			"session_id": sessionID,
			"portal":     res.portal.Kind.String(),
			"classroom":  res.classroom.Kind.String(),
		},
	}); err != nil {
		log.Warn("Failed to append login audit record.", zap.Error(err))
	}
	return true
}

// runDurationUpdater refreshes the persisted session duration once a minute
// until the session ends.
func (s *Service) runDurationUpdater(ctx context.Context, ls *liveSession) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			minutes := int(time.Since(ls.startTime).Minutes())
			if err := s.store.UpdateSessionDuration(ctx, ls.sessionID, minutes); err != nil {
				s.logger.Warn("Failed to update session duration.",
					zap.String("username", ls.username),
					zap.String("session_id", ls.sessionID),
					zap.Error(err))
			}
		}
	}
}

// markFailed records a terminal login failure on the account and in the
// audit log.
func (s *Service) markFailed(ctx context.Context, username, reason string) {
	if err := s.store.UpdateAccount(ctx, username, store.AccountUpdate{
		Status:      store.StatusPtr(store.StatusFailed),
		BrowserOpen: store.BoolPtr(false),
		Message:     store.StringPtr(reason),
	}); err != nil {
		s.logger.Error("Failed to mark account failed.",
			zap.String("username", username), zap.Error(err))
	}
	if err := s.store.AppendLog(ctx, store.LogEntry{
		Username: username,
		Status:   string(store.StatusFailed),
		Reason:   reason,
	}); err != nil {
		s.logger.Warn("Failed to append failure audit record.",
			zap.String("username", username), zap.Error(err))
	}
}
