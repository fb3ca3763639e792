package sync

import (
	"context"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/opentracing/opentracing-go"

	"github.com/oneboxhq/onebox/config"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/logger"
	"github.com/oneboxhq/onebox/internal/models"
	"github.com/oneboxhq/onebox/internal/tracing"
	"github.com/oneboxhq/onebox/internal/utils"
)

// Engine drives one mailbox session: an initial reconciliation sync,
// then a loop alternating push-mode waits with periodic full syncs.
type Engine struct {
	session interfaces.MailboxSession
	index   interfaces.EmailIndex
	cfg     *config.SyncConfig
	log     logger.Logger

	account string
	folder  string

	// mu serializes full syncs and guards seen and lastSync.
	mu       sync.Mutex
	seen     map[uint32]struct{}
	lastSync time.Time

	observerMu sync.RWMutex
	observer   interfaces.MessageObserver

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

func NewEngine(
	session interfaces.MailboxSession,
	index interfaces.EmailIndex,
	cfg *config.SyncConfig,
	account string,
	folder string,
	log logger.Logger,
) *Engine {
	return &Engine{
		session: session,
		index:   index,
		cfg:     cfg,
		log:     log,
		account: account,
		folder:  folder,
		seen:    make(map[uint32]struct{}),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

func (e *Engine) SetObserver(observer interfaces.MessageObserver) {
	e.observerMu.Lock()
	defer e.observerMu.Unlock()
	e.observer = observer
}

// Run connects, performs the initial sync and loops until the context
// is cancelled or Stop is called. The loop is the single owner of the
// session; every other entry point goes through FullSync, which
// serializes on the engine mutex.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.doneCh)

	runID := uuid.New().String()
	e.log.Infof("[sync][%s] starting run loop for %s/%s", runID, e.account, e.folder)

	// A failed initial connect is not fatal; the loop below keeps
	// retrying through EnsureConnected.
	if err := e.session.Connect(ctx); err != nil {
		e.log.Errorf("[sync][%s] initial connect failed: %v", runID, err)
	}

	if _, err := e.FullSync(ctx); err != nil {
		e.log.Errorf("[sync][%s] initial sync failed: %v", runID, err)
	}

	for {
		select {
		case <-ctx.Done():
			e.log.Infof("[sync][%s] context cancelled, exiting", runID)
			return ctx.Err()
		case <-e.stopCh:
			e.log.Infof("[sync][%s] stop requested, exiting", runID)
			return nil
		default:
		}

		if err := e.session.EnterPushMode(ctx); err != nil {
			e.log.Warnf("[sync][%s] enter push mode failed: %v", runID, err)
			if !e.sleep(ctx, e.cfg.RetryBackoff) {
				continue
			}
			if err := e.session.EnsureConnected(ctx); err != nil {
				e.log.Errorf("[sync][%s] reconnect failed: %v", runID, err)
			}
			continue
		}

		events, err := e.session.WaitForPush(ctx, e.cfg.IdleTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Warnf("[sync][%s] push wait failed: %v", runID, err)
			e.sleep(ctx, e.cfg.RetryBackoff)
			continue
		}

		if len(events) == 0 && !e.intervalElapsed() {
			continue
		}

		if len(events) > 0 {
			e.log.Infof("[sync][%s] received %d push event(s)", runID, len(events))
		}

		if _, err := e.FullSync(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.log.Errorf("[sync][%s] sync failed: %v", runID, err)
			e.sleep(ctx, e.cfg.RetryBackoff)
		}
	}
}

// Stop signals the run loop to exit and closes the session. Safe to
// call more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		e.session.Close()
	})
	select {
	case <-e.doneCh:
	case <-time.After(10 * time.Second):
		e.log.Warn("timed out waiting for sync loop to exit")
	}
}

// FullSync performs one reconciliation pass over the lookback window
// and returns the messages not seen before, already indexed.
func (e *Engine) FullSync(ctx context.Context) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Engine.FullSync")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagAccount(span, e.account)
	tracing.TagFolder(span, e.folder)

	e.mu.Lock()
	defer e.mu.Unlock()

	// FetchSince needs a plain connected session.
	if err := e.session.ExitPushMode(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if err := e.session.EnsureConnected(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	cutoff := utils.Now().AddDate(0, 0, -e.cfg.LookbackDays)
	raws, err := e.session.FetchSince(ctx, cutoff)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var newEmails []*models.Email
	for _, raw := range raws {
		if _, ok := e.seen[raw.UID]; ok {
			continue
		}
		newEmails = append(newEmails, e.normalize(raw))
	}

	span.LogKV("fetched", len(raws), "new", len(newEmails))

	if len(newEmails) > 0 {
		if err := e.index.BulkUpsert(ctx, newEmails); err != nil {
			tracing.TraceErr(span, err)
			return nil, err
		}
		for _, email := range newEmails {
			e.seen[email.UID] = struct{}{}
		}
		e.notify(ctx, newEmails)
		e.log.Infof("[sync] indexed %d new message(s) for %s/%s", len(newEmails), e.account, e.folder)
	}

	e.lastSync = utils.Now()
	return newEmails, nil
}

// normalize maps a fetched message to an index document, filling
// placeholders for blank fields and normalizing the timestamp to UTC.
func (e *Engine) normalize(raw interfaces.RawMessage) *models.Email {
	subject := strings.TrimSpace(raw.Subject)
	if subject == "" {
		subject = models.DefaultSubject
	}
	sender := strings.TrimSpace(raw.Sender)
	if sender == "" {
		sender = models.DefaultSender
	}
	content := strings.TrimSpace(raw.Content)
	if content == "" {
		content = models.DefaultContent
	}

	timestamp := utils.Now()
	if parsed, err := mail.ParseDate(strings.TrimSpace(raw.Date)); err == nil {
		timestamp = parsed.UTC()
	}

	return &models.Email{
		ID:         models.DocumentID(e.account, raw.UID),
		UID:        raw.UID,
		Account:    e.account,
		Folder:     e.folder,
		Subject:    subject,
		Sender:     sender,
		Recipient:  strings.TrimSpace(raw.Recipient),
		Content:    content,
		Timestamp:  timestamp,
		Categories: pq.StringArray{},
	}
}

// notify delivers each new message to the observer. Observer errors
// are logged and never interrupt the batch.
func (e *Engine) notify(ctx context.Context, emails []*models.Email) {
	e.observerMu.RLock()
	observer := e.observer
	e.observerMu.RUnlock()

	if observer == nil {
		return
	}
	for _, email := range emails {
		if err := observer.OnNewMessage(ctx, email); err != nil {
			e.log.Warnf("[sync] observer failed for %s: %v", email.ID, err)
		}
	}
}

func (e *Engine) intervalElapsed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync.IsZero() || time.Since(e.lastSync) >= e.cfg.Interval
}

// sleep waits for the backoff duration and reports false when the
// wait was interrupted by cancellation or stop.
func (e *Engine) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	case <-e.stopCh:
		return false
	}
}
