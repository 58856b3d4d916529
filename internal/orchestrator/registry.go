// File: internal/orchestrator/registry.go
package orchestrator

import (
	"time"

	"github.com/karacadev/portalkeeper/internal/platform"
)

// liveSession is the in-memory side of one logged-in account: its isolated
// browsing context, the two platform tabs and the background bookkeeping
// attached to them.
type liveSession struct {
	sessionID string
	username  string
	startTime time.Time

	bctx          browsingContext
	portalPage    platform.Page
	classroomPage platform.Page

	// stopUpdater cancels the per-minute duration writer.
	stopUpdater func()
	// autoEnd fires session teardown when the configured lifetime elapses.
	autoEnd *time.Timer
}

// register installs a live session under its username. If the account
// already holds a session the old one is returned so the caller can tear it
// down outside the lock.
func (s *Service) register(ls *liveSession) (prev *liveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.sessions[ls.username]
	s.sessions[ls.username] = ls
	return prev
}

// deregister removes and returns the live session for username. Removal
// under the lock is what makes EndSession idempotent: only one caller ever
// receives the entry, everyone else gets nil.
func (s *Service) deregister(username string) *liveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.sessions[username]
	delete(s.sessions, username)
	return ls
}
