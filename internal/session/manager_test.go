package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agent-matrix/a2a-validator/internal/config"
	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/protocol"
	"github.com/agent-matrix/a2a-validator/internal/resolver"
	"github.com/agent-matrix/a2a-validator/internal/transport"
	"github.com/agent-matrix/a2a-validator/internal/validator"
)

type initSignal struct {
	status string
	reason string
}

type agentSignal struct {
	id     string
	event  map[string]any
	result validator.Result
}

type failSignal struct {
	id     string
	reason string
}

// recordEmitter captures emissions on channels so tests can wait for the
// asynchronous dispatch path without sleeping.
type recordEmitter struct {
	inits chan initSignal
	resps chan agentSignal
	fails chan failSignal

	mu   sync.Mutex
	logs []debuglog.Entry
}

func newRecordEmitter() *recordEmitter {
	return &recordEmitter{
		inits: make(chan initSignal, 8),
		resps: make(chan agentSignal, 64),
		fails: make(chan failSignal, 64),
	}
}

func (e *recordEmitter) ClientInitialized(status, reason string) {
	e.inits <- initSignal{status: status, reason: reason}
}

func (e *recordEmitter) AgentResponse(id string, event map[string]any, result validator.Result) {
	e.resps <- agentSignal{id: id, event: event, result: result}
}

func (e *recordEmitter) SendFailed(id, reason string) {
	e.fails <- failSignal{id: id, reason: reason}
}

func (e *recordEmitter) DebugLog(entry debuglog.Entry) {
	e.mu.Lock()
	e.logs = append(e.logs, entry)
	e.mu.Unlock()
}

func (e *recordEmitter) waitInit(t *testing.T) initSignal {
	t.Helper()
	select {
	case sig := <-e.inits:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initialization signal")
		return initSignal{}
	}
}

func (e *recordEmitter) waitResponse(t *testing.T) agentSignal {
	t.Helper()
	select {
	case sig := <-e.resps:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for agent response")
		return agentSignal{}
	}
}

func (e *recordEmitter) waitFail(t *testing.T) failSignal {
	t.Helper()
	select {
	case sig := <-e.fails:
		return sig
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for send failure")
		return failSignal{}
	}
}

// fakeCards is a canned CardResolver. With block set it waits for the
// context to expire, standing in for an unreachable agent.
type fakeCards struct {
	res   *resolver.Resolved
	err   error
	block bool
}

func (f *fakeCards) Resolve(ctx context.Context, _ string, _ map[string]string) (*resolver.Resolved, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

// fakeClient answers every request via reply and records requests in order.
type fakeClient struct {
	streaming bool
	delay     time.Duration
	reply     func(req protocol.Request) (protocol.Response, error)

	mu       sync.Mutex
	requests []protocol.Request
}

func (c *fakeClient) Send(_ context.Context, req protocol.Request) (*protocol.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	resp, err := c.reply(req)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *fakeClient) Stream(ctx context.Context, req protocol.Request, handle func(protocol.Response) error) error {
	resp, err := c.Send(ctx, req)
	if err != nil {
		return err
	}
	return handle(*resp)
}

func (c *fakeClient) Streaming() bool  { return c.streaming }
func (c *fakeClient) Endpoint() string { return "http://agent.test" }

func (c *fakeClient) sentParams(t *testing.T, i int) protocol.SendParams {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if i >= len(c.requests) {
		t.Fatalf("expected at least %d requests, got %d", i+1, len(c.requests))
	}
	params, ok := c.requests[i].Params.(protocol.SendParams)
	if !ok {
		t.Fatalf("request %d params have type %T", i, c.requests[i].Params)
	}
	return params
}

func messageReply(text string) func(protocol.Request) (protocol.Response, error) {
	return func(req protocol.Request) (protocol.Response, error) {
		result := fmt.Sprintf(`{"kind":"message","role":"agent","contextId":"ctx-1","parts":[{"kind":"text","text":%q}]}`, text)
		return protocol.Response{JSONRPC: "2.0", Result: json.RawMessage(result)}, nil
	}
}

func testSessionConfig() (config.Session, config.Breaker) {
	return config.Session{
			InitTimeout: time.Second,
			SendTimeout: time.Second,
			QueueSize:   16,
		}, config.Breaker{
			MaxFailures: 3,
			Timeout:     time.Second,
		}
}

func newTestManager(cards CardResolver, client transport.MessageClient, opts ...Option) *Manager {
	cfg, bcfg := testSessionConfig()
	opts = append(opts, WithClientFactory(func(*resolver.Resolved, http.Header) transport.MessageClient {
		return client
	}))
	return NewManager(cfg, bcfg, cards, debuglog.NewRelay(0), slog.New(slog.DiscardHandler), opts...)
}

func resolvedCard() *resolver.Resolved {
	return &resolver.Resolved{
		Card: map[string]any{"name": "Test Agent", "url": "http://agent.test"},
		URL:  "http://agent.test/.well-known/agent.json",
	}
}

func TestInitializeSuccess(t *testing.T) {
	emitter := newRecordEmitter()
	m := newTestManager(&fakeCards{res: resolvedCard()}, &fakeClient{reply: messageReply("hi")})
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if sig := emitter.waitInit(t); sig.status != "success" {
		t.Fatalf("expected success signal, got %+v", sig)
	}
	if state, _, ok := m.State("s1"); !ok || state != StateReady {
		t.Fatalf("expected ready state, got %v", state)
	}
}

func TestSendBeforeInitializeFails(t *testing.T) {
	emitter := newRecordEmitter()
	m := newTestManager(&fakeCards{res: resolvedCard()}, &fakeClient{reply: messageReply("hi")})
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := m.SendMessage("s1", SendRequest{Text: "hello"})
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	var serr *SessionError
	if !errors.As(err, &serr) || serr.SID != "s1" {
		t.Fatalf("expected SessionError for s1, got %v", err)
	}
}

func TestSendToUnknownSession(t *testing.T) {
	m := newTestManager(&fakeCards{res: resolvedCard()}, &fakeClient{reply: messageReply("hi")})
	defer m.Shutdown()

	if err := m.SendMessage("nope", SendRequest{Text: "hello"}); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
}

func TestInitializeFailureEntersErrorState(t *testing.T) {
	emitter := newRecordEmitter()
	m := newTestManager(&fakeCards{err: &resolver.ResolutionError{Reason: "no card found"}},
		&fakeClient{reply: messageReply("hi")})
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err == nil {
		t.Fatal("expected initialization error")
	}

	sig := emitter.waitInit(t)
	if sig.status != "error" || !strings.Contains(sig.reason, "no card found") {
		t.Fatalf("expected error signal with reason, got %+v", sig)
	}
	state, reason, ok := m.State("s1")
	if !ok || state != StateError || reason == "" {
		t.Fatalf("expected error state with reason, got %v %q", state, reason)
	}

	// The session stays addressable; a corrected retry succeeds.
	m.cards = &fakeCards{res: resolvedCard()}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("retry initialize: %v", err)
	}
	if sig := emitter.waitInit(t); sig.status != "success" {
		t.Fatalf("expected success on retry, got %+v", sig)
	}
}

func TestInitializeTimeout(t *testing.T) {
	emitter := newRecordEmitter()
	cfg, bcfg := testSessionConfig()
	cfg.InitTimeout = 30 * time.Millisecond
	m := NewManager(cfg, bcfg, &fakeCards{block: true}, debuglog.NewRelay(0), slog.New(slog.DiscardHandler))
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}

	err := m.Initialize(context.Background(), "s1", "agent.test", nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	sig := emitter.waitInit(t)
	if sig.status != "error" || !strings.Contains(sig.reason, "timed out") {
		t.Fatalf("expected timeout reason in signal, got %+v", sig)
	}
	if state, _, _ := m.State("s1"); state != StateError {
		t.Fatalf("expected error state, got %v", state)
	}
}

func TestInitializeOverlapRejected(t *testing.T) {
	emitter := newRecordEmitter()
	cfg, bcfg := testSessionConfig()
	cfg.InitTimeout = 200 * time.Millisecond
	m := NewManager(cfg, bcfg, &fakeCards{block: true}, debuglog.NewRelay(0), slog.New(slog.DiscardHandler))
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}

	first := make(chan error, 1)
	go func() {
		first <- m.Initialize(context.Background(), "s1", "agent.test", nil)
	}()

	deadline := time.Now().Add(time.Second)
	for {
		if state, _, _ := m.State("s1"); state == StateInitializing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never entered initializing")
		}
		time.Sleep(time.Millisecond)
	}

	err := m.Initialize(context.Background(), "s1", "agent.test", nil)
	if !errors.Is(err, ErrInitializing) {
		t.Fatalf("expected ErrInitializing, got %v", err)
	}
	sig := emitter.waitInit(t)
	if sig.status != "error" || !strings.Contains(sig.reason, "in progress") {
		t.Fatalf("expected duplicate-initialize rejection signal, got %+v", sig)
	}

	// The first attempt is untouched by the rejection and finishes on its
	// own terms, here by timing out against the blocked resolver.
	if err := <-first; !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected first attempt to time out, got %v", err)
	}
	if sig := emitter.waitInit(t); sig.status != "error" || !strings.Contains(sig.reason, "timed out") {
		t.Fatalf("expected timeout signal from first attempt, got %+v", sig)
	}
}

func TestSendOrderingPerSession(t *testing.T) {
	emitter := newRecordEmitter()
	client := &fakeClient{delay: 5 * time.Millisecond, reply: messageReply("ok")}
	m := newTestManager(&fakeCards{res: resolvedCard()}, client)
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	emitter.waitInit(t)

	const n = 5
	for i := range n {
		id := fmt.Sprintf("msg-%d", i)
		if err := m.SendMessage("s1", SendRequest{Text: "hello", ID: id}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	for i := range n {
		sig := emitter.waitResponse(t)
		want := fmt.Sprintf("msg-%d", i)
		if sig.id != want {
			t.Fatalf("response %d: expected id %s, got %s", i, want, sig.id)
		}
	}
}

func TestContextIDCapturedAndReused(t *testing.T) {
	emitter := newRecordEmitter()
	client := &fakeClient{reply: messageReply("ok")}
	m := newTestManager(&fakeCards{res: resolvedCard()}, client)
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	emitter.waitInit(t)

	if err := m.SendMessage("s1", SendRequest{Text: "first", ID: "m1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	emitter.waitResponse(t)
	if err := m.SendMessage("s1", SendRequest{Text: "second", ID: "m2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	emitter.waitResponse(t)

	if got := client.sentParams(t, 0).Message.ContextID; got != "" {
		t.Fatalf("first send should have no contextId, got %q", got)
	}
	if got := client.sentParams(t, 1).Message.ContextID; got != "ctx-1" {
		t.Fatalf("second send should reuse agent contextId, got %q", got)
	}
}

func TestReinitializeResetsContext(t *testing.T) {
	emitter := newRecordEmitter()
	client := &fakeClient{reply: messageReply("ok")}
	m := newTestManager(&fakeCards{res: resolvedCard()}, client)
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	emitter.waitInit(t)

	if err := m.SendMessage("s1", SendRequest{Text: "first", ID: "m1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	emitter.waitResponse(t)

	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}
	emitter.waitInit(t)

	if err := m.SendMessage("s1", SendRequest{Text: "fresh", ID: "m2"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	emitter.waitResponse(t)

	if got := client.sentParams(t, 1).Message.ContextID; got != "" {
		t.Fatalf("send after reinitialize should start a fresh context, got %q", got)
	}
}

func TestMalformedEventAnnotatedNotDropped(t *testing.T) {
	emitter := newRecordEmitter()
	client := &fakeClient{reply: func(protocol.Request) (protocol.Response, error) {
		return protocol.Response{JSONRPC: "2.0", Result: json.RawMessage(`{"kind":"task"}`)}, nil
	}}
	m := newTestManager(&fakeCards{res: resolvedCard()}, client)
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	emitter.waitInit(t)

	if err := m.SendMessage("s1", SendRequest{Text: "go", ID: "m1"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	sig := emitter.waitResponse(t)
	if sig.event["kind"] != "task" {
		t.Fatalf("malformed event must still be forwarded, got %v", sig.event)
	}
	if len(sig.result.Errors) == 0 {
		t.Fatal("expected validation errors on incomplete task event")
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	emitter := newRecordEmitter()
	client := &fakeClient{reply: func(protocol.Request) (protocol.Response, error) {
		return protocol.Response{}, errors.New("agent down")
	}}
	cfg, bcfg := testSessionConfig()
	bcfg.MaxFailures = 2
	m := NewManager(cfg, bcfg, &fakeCards{res: resolvedCard()}, debuglog.NewRelay(0),
		slog.New(slog.DiscardHandler),
		WithClientFactory(func(*resolver.Resolved, http.Header) transport.MessageClient { return client }))
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	emitter.waitInit(t)

	for i := range 3 {
		if err := m.SendMessage("s1", SendRequest{Text: "go", ID: fmt.Sprintf("m%d", i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	var reasons []string
	for range 3 {
		reasons = append(reasons, emitter.waitFail(t).reason)
	}
	if !strings.Contains(reasons[2], "circuit breaker") {
		t.Fatalf("expected third send rejected by open breaker, got %v", reasons)
	}
}

func TestRelayRecordsWireExchanges(t *testing.T) {
	emitter := newRecordEmitter()
	relay := debuglog.NewRelay(0)
	client := &fakeClient{reply: messageReply("ok")}
	cfg, bcfg := testSessionConfig()
	m := NewManager(cfg, bcfg, &fakeCards{res: resolvedCard()}, relay,
		slog.New(slog.DiscardHandler),
		WithClientFactory(func(*resolver.Resolved, http.Header) transport.MessageClient { return client }))
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := m.Initialize(context.Background(), "s1", "agent.test", nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	emitter.waitInit(t)

	if err := m.SendMessage("s1", SendRequest{Text: "go", ID: "corr-1"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	emitter.waitResponse(t)

	entries := relay.Get("corr-1")
	if len(entries) != 2 {
		t.Fatalf("expected request and response entries, got %d", len(entries))
	}
	if entries[0].Type != debuglog.TypeRequest || entries[1].Type != debuglog.TypeResponse {
		t.Fatalf("unexpected entry types: %v %v", entries[0].Type, entries[1].Type)
	}
}

func TestCloseForgetsSession(t *testing.T) {
	emitter := newRecordEmitter()
	m := newTestManager(&fakeCards{res: resolvedCard()}, &fakeClient{reply: messageReply("ok")})
	defer m.Shutdown()

	if err := m.Open("s1", emitter); err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Count())
	}

	m.Close("s1")
	if m.Count() != 0 {
		t.Fatalf("expected 0 sessions after close, got %d", m.Count())
	}
	if err := m.SendMessage("s1", SendRequest{Text: "go"}); !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown after close, got %v", err)
	}
}
