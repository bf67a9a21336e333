// Package session owns the bridge between connected clients and remote A2A
// agents. Each websocket connection maps to one session identified by an
// opaque sid; the manager runs every session through a small state machine
// (uninitialized, initializing, ready, error, closed) and guarantees strictly
// one in-flight send per sid while distinct sids proceed concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	avotel "github.com/agent-matrix/a2a-validator/internal/adapter/otel"
	"github.com/agent-matrix/a2a-validator/internal/config"
	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/resilience"
	"github.com/agent-matrix/a2a-validator/internal/resolver"
	"github.com/agent-matrix/a2a-validator/internal/transport"
)

// CardResolver resolves an agent URL into its card. Satisfied by
// *resolver.Resolver; faked in tests.
type CardResolver interface {
	Resolve(ctx context.Context, rawURL string, headers map[string]string) (*resolver.Resolved, error)
}

// ClientFactory builds the outbound message client for a resolved card.
type ClientFactory func(res *resolver.Resolved, headers http.Header) transport.MessageClient

// SendRequest is one message submission from the client.
type SendRequest struct {
	Text      string
	ID        string // correlation id for the debug log; generated when empty
	ContextID string
	Metadata  map[string]any
}

// Manager is the session registry. All session mutation goes through it.
type Manager struct {
	cfg        config.Session
	breakerCfg config.Breaker
	cards      CardResolver
	relay      *debuglog.Relay
	log        *slog.Logger
	stats      Stats
	newClient  ClientFactory

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClientFactory replaces the outbound client constructor, for tests.
func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) { m.newClient = f }
}

// WithStats attaches lifecycle counters.
func WithStats(s Stats) Option {
	return func(m *Manager) { m.stats = s }
}

// NewManager creates a session manager backed by the given resolver and
// debug log relay.
func NewManager(cfg config.Session, breakerCfg config.Breaker, cards CardResolver, relay *debuglog.Relay, log *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:        cfg,
		breakerCfg: breakerCfg,
		cards:      cards,
		relay:      relay,
		log:        log,
		sessions:   make(map[string]*session),
		newClient: func(res *resolver.Resolved, headers http.Header) transport.MessageClient {
			return transport.NewFromCard(res, headers)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open registers a new session for sid with its emitter. The session starts
// uninitialized; messages are rejected until Initialize succeeds.
func (m *Manager) Open(sid string, emitter Emitter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return &SessionError{SID: sid, Err: ErrClosed}
	}
	if _, exists := m.sessions[sid]; exists {
		return &SessionError{SID: sid, Err: fmt.Errorf("already open")}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.sessions[sid] = &session{
		sid:     sid,
		mgr:     m,
		emitter: emitter,
		breaker: resilience.NewBreaker(m.breakerCfg.MaxFailures, m.breakerCfg.Timeout),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateUninitialized,
	}
	if m.stats != nil {
		m.stats.SessionOpened()
	}
	m.log.Debug("session opened", "sid", sid)
	return nil
}

// Initialize resolves the agent card for url and binds the session to the
// agent. On failure the session enters the error state with a reason and
// stays addressable, so the client can retry with a corrected URL.
// Initializing a ready session tears the old binding down first; an
// Initialize overlapping one still in flight is rejected.
func (m *Manager) Initialize(ctx context.Context, sid, rawURL string, headers map[string]string) error {
	s, err := m.lookup(sid)
	if err != nil {
		return err
	}

	ctx, span := avotel.StartInitializeSpan(ctx, sid, rawURL)
	defer span.End()

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return &SessionError{SID: sid, Err: ErrClosed}
	case StateInitializing:
		s.mu.Unlock()
		s.emitter.ClientInitialized("error", ErrInitializing.Error())
		return &SessionError{SID: sid, Err: ErrInitializing}
	}
	s.teardownLocked()
	s.state = StateInitializing
	s.reason = ""
	s.url = rawURL
	s.mu.Unlock()

	ictx, cancel := context.WithTimeout(ctx, m.cfg.InitTimeout)
	defer cancel()

	res, rerr := m.cards.Resolve(ictx, rawURL, headers)
	if rerr != nil {
		if resolver.IsTimeout(rerr) || errors.Is(ictx.Err(), context.DeadlineExceeded) {
			rerr = fmt.Errorf("initialization %w after %s", ErrTimeout, m.cfg.InitTimeout)
		}
		s.mu.Lock()
		if s.state == StateInitializing {
			s.state = StateError
			s.reason = rerr.Error()
		}
		s.mu.Unlock()
		span.RecordError(rerr)
		s.emitter.ClientInitialized("error", rerr.Error())
		m.log.Warn("session initialization failed", "sid", sid, "url", rawURL, "error", rerr)
		return &SessionError{SID: sid, Err: rerr}
	}

	hdr := make(http.Header, len(headers))
	for name, value := range headers {
		hdr.Set(name, value)
	}
	client := m.newClient(res, hdr)

	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return &SessionError{SID: sid, Err: ErrClosed}
	}
	s.client = client
	s.state = StateReady
	s.startWorkerLocked()
	s.mu.Unlock()

	s.emitter.ClientInitialized("success", "")
	m.log.Info("session ready",
		"sid", sid, "card", res.Card["name"],
		"agent", client.Endpoint(), "streaming", client.Streaming())
	return nil
}

// SendMessage queues one message for dispatch. Only ready sessions accept
// messages; submissions to a not-ready session fail without touching it.
func (m *Manager) SendMessage(sid string, req SendRequest) error {
	s, err := m.lookup(sid)
	if err != nil {
		return err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateReady:
	case StateClosed:
		return &SessionError{SID: sid, Err: ErrClosed}
	default:
		return &SessionError{SID: sid, Err: ErrNotReady}
	}

	select {
	case s.queue <- sendJob{id: req.ID, text: req.Text, contextID: req.ContextID, metadata: req.Metadata}:
		return nil
	default:
		return &SessionError{SID: sid, Err: ErrQueueFull}
	}
}

// State reports a session's state and, for error state, its reason.
func (m *Manager) State(sid string) (State, string, bool) {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	m.mu.Unlock()
	if !ok {
		return StateClosed, "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.reason, true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears a session down and forgets it. In-flight dispatches are
// aborted; nothing is emitted for the sid afterwards.
func (m *Manager) Close(sid string) {
	m.mu.Lock()
	s, ok := m.sessions[sid]
	delete(m.sessions, sid)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.teardownLocked()
	s.state = StateClosed
	s.mu.Unlock()
	s.cancel()

	if m.stats != nil {
		m.stats.SessionClosed()
	}
	m.log.Debug("session closed", "sid", sid)
}

// Shutdown closes every session and rejects new ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sids := make([]string, 0, len(m.sessions))
	for sid := range m.sessions {
		sids = append(sids, sid)
	}
	m.mu.Unlock()

	for _, sid := range sids {
		m.Close(sid)
	}
}

func (m *Manager) lookup(sid string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return nil, &SessionError{SID: sid, Err: ErrUnknown}
	}
	return s, nil
}

func (m *Manager) report(elapsed time.Duration, failed bool) {
	if m.stats != nil {
		m.stats.MessageDispatched(elapsed, failed)
	}
}
