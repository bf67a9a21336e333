package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	avotel "github.com/agent-matrix/a2a-validator/internal/adapter/otel"
	"github.com/agent-matrix/a2a-validator/internal/debuglog"
	"github.com/agent-matrix/a2a-validator/internal/protocol"
	"github.com/agent-matrix/a2a-validator/internal/resilience"
	"github.com/agent-matrix/a2a-validator/internal/transport"
	"github.com/agent-matrix/a2a-validator/internal/validator"
)

// State is the lifecycle phase of one session.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateError         State = "error"
	StateClosed        State = "closed"
)

// sendJob is one queued message submission. Jobs are processed strictly in
// submission order by the session's single worker goroutine.
type sendJob struct {
	id        string
	text      string
	contextID string
	metadata  map[string]any
}

type session struct {
	sid     string
	mgr     *Manager
	emitter Emitter
	breaker *resilience.Breaker

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	reason    string
	url       string
	client    transport.MessageClient
	contextID string
	queue     chan sendJob
	runStop   context.CancelFunc
}

// startWorkerLocked creates a fresh queue and worker for a session that just
// became ready. Must be called with s.mu held.
func (s *session) startWorkerLocked() {
	s.queue = make(chan sendJob, s.mgr.cfg.QueueSize)
	runCtx, stop := context.WithCancel(s.ctx)
	s.runStop = stop
	go s.run(runCtx, s.queue)
}

// teardownLocked stops the worker and forgets the agent binding. In-flight
// dispatches are aborted via the worker context; queued jobs are dropped.
// Must be called with s.mu held.
func (s *session) teardownLocked() {
	if s.queue != nil {
		close(s.queue)
		s.runStop()
		s.queue = nil
		s.runStop = nil
	}
	s.client = nil
	s.contextID = ""
}

// run drains the queue one job at a time. Strict serialization per sid comes
// from this being the only goroutine touching the session's outbound path.
func (s *session) run(ctx context.Context, queue chan sendJob) {
	for job := range queue {
		if ctx.Err() != nil {
			continue
		}
		s.dispatch(ctx, job)
	}
}

func (s *session) dispatch(ctx context.Context, job sendJob) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.mgr.cfg.SendTimeout)
	defer cancel()

	s.mu.Lock()
	client := s.client
	contextID := job.contextID
	if contextID == "" {
		contextID = s.contextID
	}
	s.mu.Unlock()
	if client == nil {
		s.emitter.SendFailed(job.id, ErrNotReady.Error())
		return
	}

	msg := protocol.NewUserMessage(job.text, uuid.NewString(), contextID, job.metadata)
	method := protocol.MethodMessageSend
	if client.Streaming() {
		method = protocol.MethodMessageStream
	}
	ctx, span := avotel.StartDispatchSpan(ctx, s.sid, job.id, method)
	defer span.End()

	req := protocol.NewSendRequest(method, msg, nil)
	s.record(job.id, debuglog.TypeRequest, req)

	err := s.breaker.Execute(func() error {
		if client.Streaming() {
			return client.Stream(ctx, req, func(resp protocol.Response) error {
				s.deliver(job.id, resp)
				return nil
			})
		}
		resp, err := client.Send(ctx, req)
		if err != nil {
			return err
		}
		s.deliver(job.id, *resp)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("dispatch %w after %s", ErrTimeout, s.mgr.cfg.SendTimeout)
		}
		span.RecordError(err)
		s.record(job.id, debuglog.TypeError, map[string]any{"error": err.Error()})
		s.emitter.SendFailed(job.id, err.Error())
		s.mgr.log.Warn("message dispatch failed",
			"sid", s.sid, "id", job.id, "breaker", s.breaker.State(), "error", err)
	}
	s.mgr.report(time.Since(start), err != nil)
}

// deliver validates one agent response and hands it to the client. Events
// that fail validation are still forwarded, annotated with their findings.
func (s *session) deliver(id string, resp protocol.Response) {
	s.record(id, debuglog.TypeResponse, resp)

	if resp.Error != nil {
		s.emitter.SendFailed(id, resp.Error.Error())
		return
	}

	var event map[string]any
	if err := json.Unmarshal(resp.Result, &event); err != nil || event == nil {
		s.emitter.AgentResponse(id, map[string]any{}, validator.Result{
			Errors: []string{"response result is not a JSON object"},
		})
		return
	}

	// The agent assigns the conversation context on its first reply; keep it
	// so later sends land in the same context.
	if cid, ok := event["contextId"].(string); ok && cid != "" {
		s.mu.Lock()
		s.contextID = cid
		s.mu.Unlock()
	}

	s.emitter.AgentResponse(id, event, validator.ValidateEvent(protocol.EventKind(event), event))
}

// record stores one wire exchange in the relay and mirrors it to the client.
func (s *session) record(id string, typ debuglog.EntryType, payload any) {
	s.emitter.DebugLog(s.mgr.relay.Record(id, typ, payload))
}
