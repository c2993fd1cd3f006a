package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"ArticlesConsolidator/internal/config"
	"ArticlesConsolidator/internal/domain"
	"ArticlesConsolidator/internal/progress"
)

// ErrSessionSuperseded is returned to a caller whose session was cleared or replaced while running.
var ErrSessionSuperseded = errors.New("query session was superseded")

// QueryRunner executes one consolidation session.
type QueryRunner interface {
	Run(ctx context.Context, req Request, cfg config.QueryConfig, observer Observer) (Result, error)
}

var _ QueryRunner = (*Consolidator)(nil)

// Sessions keeps at most one active query. Starting a new one or clearing cancels the previous session,
// and events from a superseded session never reach its observer.
//
// Events are delivered under a read lock and the active session is swapped under the write lock,
// so once Run or Clear has switched sessions no event of the old one is in flight.
// Observers must not call back into Sessions.
type Sessions struct {
	runner  QueryRunner
	onReset func()

	mu     sync.RWMutex
	active string
	cancel context.CancelFunc
}

// NewSessions wraps runner with session bookkeeping.
func NewSessions(runner QueryRunner) *Sessions {
	return &Sessions{runner: runner}
}

// OnReset registers fn to run, under the session lock, whenever a session starts or is cleared.
// It must be set before the first Run.
func (s *Sessions) OnReset(fn func()) {
	s.onReset = fn
}

func (s *Sessions) reset() {
	if s.onReset != nil {
		s.onReset()
	}
}

// Run starts a new session, superseding any running one.
func (s *Sessions) Run(ctx context.Context, req Request, cfg config.QueryConfig, observer Observer) (Result, error) {
	token := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.active = token
	s.cancel = cancel
	s.reset()
	s.mu.Unlock()

	if observer == nil {
		observer = NopObserver{}
	}
	req.SessionID = token
	res, err := s.runner.Run(ctx, req, cfg, &guardedObserver{sessions: s, token: token, next: observer})

	s.mu.Lock()
	current := s.active == token
	if current {
		s.active = ""
		s.cancel = nil
	}
	s.mu.Unlock()

	if !current {
		return Result{SessionID: token}, ErrSessionSuperseded
	}
	return res, err
}

// Clear cancels the active session. It reports whether one was running.
func (s *Sessions) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	if s.active == "" {
		return false
	}
	s.cancel()
	s.active = ""
	s.cancel = nil
	return true
}

// Active returns the running session token or "".
func (s *Sessions) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// deliver runs fn while token is the active session, holding the read lock for the whole call.
func (s *Sessions) deliver(token string, fn func()) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == token {
		fn()
	}
}

type guardedObserver struct {
	sessions *Sessions
	token    string
	next     Observer
}

func (g *guardedObserver) ProgressUpdated(snapshot *progress.Snapshot) {
	g.sessions.deliver(g.token, func() { g.next.ProgressUpdated(snapshot) })
}

func (g *guardedObserver) TokenUsageRecorded(record domain.TokenUsageRecord) {
	g.sessions.deliver(g.token, func() { g.next.TokenUsageRecorded(record) })
}

func (g *guardedObserver) TokenStatisticsUpdated(stats domain.TokenStatistics) {
	g.sessions.deliver(g.token, func() { g.next.TokenStatisticsUpdated(stats) })
}
