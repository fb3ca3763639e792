package imap

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/opentracing/opentracing-go"

	"github.com/oneboxhq/onebox/config"
	onebox_errors "github.com/oneboxhq/onebox/errors"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/tracing"
)

const (
	// The IDLE command is restarted before the 29 minute server limit.
	defaultIdleLogoutTimeout = 24 * time.Minute
	defaultIdlePollInterval  = time.Minute

	updatesBufferSize = 64
)

type sessionState int

const (
	stateDisconnected sessionState = iota
	stateConnected
	statePushMode
)

// ConnectionError reports a connect that failed after exhausting its
// retry budget.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("imap connect failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// idleHandle tracks one IDLE goroutine. The goroutine records the
// command result and closes stopped, so any number of waiters can
// observe termination without consuming each other's signal.
type idleHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
	err      error
}

func (h *idleHandle) requestStop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Session owns one IMAP connection to one account folder. A mutex
// serializes state transitions; the sync engine is its single logical
// owner and never overlaps push mode with fetches.
type Session struct {
	cfg  *config.IMAPConfig
	dial dialFunc

	mu     sync.Mutex
	conn   imapConn
	state  sessionState
	closed bool

	updates chan client.Update
	idle    *idleHandle
}

func NewSession(cfg *config.IMAPConfig) *Session {
	return &Session{
		cfg:  cfg,
		dial: dialMailbox,
	}
}

func newSessionWithDialer(cfg *config.IMAPConfig, dial dialFunc) *Session {
	return &Session{
		cfg:  cfg,
		dial: dial,
	}
}

// Connect dials and authenticates, retrying up to the configured limit
// with a fixed delay between attempts.
func (s *Session) Connect(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.Connect")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)
	tracing.TagFolder(span, s.cfg.Folder)

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.connectLocked(ctx, span)
}

func (s *Session) connectLocked(ctx context.Context, span opentracing.Span) error {
	if s.closed {
		return onebox_errors.ErrSessionClosed
	}

	s.teardownLocked()

	attempts := s.cfg.RetryLimit
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		conn, err := s.dial(s.cfg)
		if err == nil {
			if _, err = conn.Select(s.cfg.Folder, true); err == nil {
				s.conn = conn
				s.state = stateConnected
				log.Printf("[%s][%s] Connected on attempt %d", s.cfg.Username, s.cfg.Folder, attempt)
				return nil
			}
			conn.Logout()
		}

		lastErr = err
		log.Printf("[%s][%s] Connect attempt %d/%d failed: %v", s.cfg.Username, s.cfg.Folder, attempt, attempts, err)
		span.LogKV("attempt", attempt, "error", err.Error())

		if attempt < attempts {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				tracing.TraceErr(span, ctx.Err())
				return ctx.Err()
			}
		}
	}

	connErr := &ConnectionError{Attempts: attempts, Err: lastErr}
	tracing.TraceErr(span, connErr)
	return connErr
}

// EnsureConnected verifies the connection with a NOOP and reconnects
// when the check fails.
func (s *Session) EnsureConnected(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.EnsureConnected")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return onebox_errors.ErrSessionClosed
	}

	if s.conn != nil && s.state != stateDisconnected {
		err := s.conn.Noop()
		if err == nil {
			return nil
		}
		log.Printf("[%s][%s] Existing connection is broken: %v", s.cfg.Username, s.cfg.Folder, err)
		span.LogKV("noop_error", err.Error())
	}

	return s.connectLocked(ctx, span)
}

// EnterPushMode issues IDLE so the server can push mailbox changes.
// Calling it while already in push mode is a no-op.
func (s *Session) EnterPushMode(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Session.EnterPushMode")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return onebox_errors.ErrSessionClosed
	}
	if s.state == statePushMode {
		return nil
	}
	if s.conn == nil || s.state == stateDisconnected {
		tracing.TraceErr(span, onebox_errors.ErrNotConnected)
		return onebox_errors.ErrNotConnected
	}

	s.updates = make(chan client.Update, updatesBufferSize)
	s.idle = &idleHandle{
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.conn.SetUpdates(s.updates)

	conn := s.conn
	idle := s.idle
	go func() {
		idle.err = conn.Idle(idle.stop, &client.IdleOptions{
			LogoutTimeout: defaultIdleLogoutTimeout,
			PollInterval:  defaultIdlePollInterval,
		})
		close(idle.stopped)
	}()

	s.state = statePushMode
	log.Printf("[%s][%s] Entered push mode", s.cfg.Username, s.cfg.Folder)
	return nil
}

// WaitForPush blocks until the server pushes at least one update, the
// timeout elapses, or the context is cancelled. A timeout returns an
// empty slice and no error. A clean IDLE termination (including one
// triggered by a concurrent ExitPushMode) keeps the connection and
// returns empty; only a transport error tears down and reconnects.
// Either way the caller re-enters push mode on its next iteration.
func (s *Session) WaitForPush(ctx context.Context, timeout time.Duration) ([]interfaces.PushEvent, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Session.WaitForPush")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, onebox_errors.ErrSessionClosed
	}
	if s.state != statePushMode {
		s.mu.Unlock()
		tracing.TraceErr(span, onebox_errors.ErrNotConnected)
		return nil, onebox_errors.ErrNotConnected
	}
	updates := s.updates
	idle := s.idle
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case update := <-updates:
		events := []interfaces.PushEvent{toPushEvent(update)}
		events = append(events, drainUpdates(updates)...)
		span.LogKV("events", len(events))
		return events, nil

	case <-idle.stopped:
		s.mu.Lock()
		if s.state != statePushMode || s.idle != idle {
			// ExitPushMode or Close already handled the termination.
			s.mu.Unlock()
			return nil, nil
		}
		s.clearPushLocked()
		if idle.err == nil {
			s.mu.Unlock()
			return nil, nil
		}
		log.Printf("[%s][%s] IDLE ended with error: %v", s.cfg.Username, s.cfg.Folder, idle.err)
		tracing.TraceErr(span, idle.err)
		s.teardownLocked()
		reconnectErr := s.connectLocked(ctx, span)
		s.mu.Unlock()
		if reconnectErr != nil {
			return nil, reconnectErr
		}
		return nil, nil

	case <-timer.C:
		return nil, nil

	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ExitPushMode terminates the IDLE command and returns the session to
// plain connected state. Safe to call when not in push mode.
func (s *Session) ExitPushMode(ctx context.Context) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Session.ExitPushMode")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != statePushMode {
		return nil
	}

	s.idle.requestStop()

	select {
	case <-s.idle.stopped:
		if s.idle.err != nil {
			log.Printf("[%s][%s] IDLE terminated with error: %v", s.cfg.Username, s.cfg.Folder, s.idle.err)
			span.LogKV("idle_error", s.idle.err.Error())
		}
	case <-time.After(5 * time.Second):
		log.Printf("[%s][%s] Timed out waiting for IDLE to terminate", s.cfg.Username, s.cfg.Folder)
		span.LogKV("event", "idle_stop_timeout")
	}

	s.clearPushLocked()
	log.Printf("[%s][%s] Exited push mode", s.cfg.Username, s.cfg.Folder)
	return nil
}

// Close logs out and marks the session unusable. It never fails;
// logout errors are only logged.
func (s *Session) Close() {
	span := opentracing.StartSpan("Session.Close")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, s.cfg.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.teardownLocked()
	log.Printf("[%s][%s] Session closed", s.cfg.Username, s.cfg.Folder)
}

// clearPushLocked drops push-mode bookkeeping once the IDLE goroutine
// has exited, keeping the connection. Callers hold s.mu.
func (s *Session) clearPushLocked() {
	if s.conn != nil {
		s.conn.SetUpdates(nil)
	}
	s.updates = nil
	s.idle = nil
	s.state = stateConnected
}

// teardownLocked stops any running IDLE and drops the connection.
// Callers hold s.mu.
func (s *Session) teardownLocked() {
	if s.idle != nil {
		s.idle.requestStop()
		select {
		case <-s.idle.stopped:
		case <-time.After(5 * time.Second):
			log.Printf("[%s][%s] Timed out waiting for IDLE to terminate", s.cfg.Username, s.cfg.Folder)
		}
		s.idle = nil
	}
	s.updates = nil

	if s.conn != nil {
		if err := s.conn.Logout(); err != nil {
			log.Printf("[%s][%s] Error during logout: %v", s.cfg.Username, s.cfg.Folder, err)
		}
		s.conn = nil
	}
	s.state = stateDisconnected
}

func toPushEvent(update client.Update) interfaces.PushEvent {
	switch u := update.(type) {
	case *client.MailboxUpdate:
		return interfaces.PushEvent{Kind: interfaces.PushEventMailbox, Messages: u.Mailbox.Messages}
	case *client.ExpungeUpdate:
		return interfaces.PushEvent{Kind: interfaces.PushEventExpunge}
	case *client.MessageUpdate:
		return interfaces.PushEvent{Kind: interfaces.PushEventMessage}
	default:
		return interfaces.PushEvent{Kind: interfaces.PushEventOther}
	}
}

func drainUpdates(updates chan client.Update) []interfaces.PushEvent {
	var events []interfaces.PushEvent
	for {
		select {
		case update := <-updates:
			events = append(events, toPushEvent(update))
		default:
			return events
		}
	}
}
