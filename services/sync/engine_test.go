package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneboxhq/onebox/config"
	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/logger"
	"github.com/oneboxhq/onebox/internal/models"
	"github.com/oneboxhq/onebox/internal/repository"
)

type fakeSession struct {
	messages   []interfaces.RawMessage
	fetchCalls int
	fetchErr   error
	connectErr error
	closed     bool
}

func (f *fakeSession) Connect(ctx context.Context) error          { return f.connectErr }
func (f *fakeSession) EnsureConnected(ctx context.Context) error  { return nil }
func (f *fakeSession) EnterPushMode(ctx context.Context) error    { return nil }
func (f *fakeSession) ExitPushMode(ctx context.Context) error     { return nil }
func (f *fakeSession) Close()                                     { f.closed = true }
func (f *fakeSession) WaitForPush(ctx context.Context, timeout time.Duration) ([]interfaces.PushEvent, error) {
	return nil, nil
}

func (f *fakeSession) FetchSince(ctx context.Context, cutoff time.Time) ([]interfaces.RawMessage, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.messages, nil
}

type recordingObserver struct {
	seen []string
	err  error
}

func (o *recordingObserver) OnNewMessage(ctx context.Context, email *models.Email) error {
	o.seen = append(o.seen, email.ID)
	return o.err
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestEngine(session interfaces.MailboxSession) (*Engine, interfaces.EmailIndex) {
	index := repository.NewInMemoryEmailIndex(50)
	engine := NewEngine(session, index, &config.SyncConfig{
		IdleTimeout:  time.Second,
		Interval:     time.Minute,
		LookbackDays: 30,
		RetryBackoff: time.Millisecond,
	}, "user@example.com", "INBOX", getLogger())
	return engine, index
}

func TestFullSyncIndexesNewMessages(t *testing.T) {
	session := &fakeSession{
		messages: []interfaces.RawMessage{
			{UID: 1, Subject: "First", Sender: "alice@example.com", Date: "Wed, 01 May 2024 10:00:00 +0200", Content: "hello"},
			{UID: 2, Subject: "Second", Sender: "bob@example.com", Date: "Wed, 01 May 2024 11:00:00 +0200", Content: "world"},
		},
	}
	engine, index := newTestEngine(session)

	emails, err := engine.FullSync(context.Background())

	require.NoError(t, err)
	require.Len(t, emails, 2)

	stored, err := index.GetByID(context.Background(), "user@example.com:1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "First", stored.Subject)
	assert.Equal(t, "INBOX", stored.Folder)
}

func TestFullSyncDeduplicatesAcrossRuns(t *testing.T) {
	session := &fakeSession{
		messages: []interfaces.RawMessage{
			{UID: 1, Subject: "First", Sender: "alice@example.com", Content: "hello"},
			{UID: 2, Subject: "Second", Sender: "bob@example.com", Content: "world"},
		},
	}
	engine, _ := newTestEngine(session)
	observer := &recordingObserver{}
	engine.SetObserver(observer)

	first, err := engine.FullSync(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := engine.FullSync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)

	// The observer fired once per message, not once per sync.
	assert.Len(t, observer.seen, 2)
	assert.Equal(t, 2, session.fetchCalls)
}

func TestFullSyncPropagatesFetchErrors(t *testing.T) {
	session := &fakeSession{fetchErr: errors.New("mailbox unavailable")}
	engine, _ := newTestEngine(session)

	_, err := engine.FullSync(context.Background())

	assert.Error(t, err)
}

func TestObserverErrorsDoNotFailSync(t *testing.T) {
	session := &fakeSession{
		messages: []interfaces.RawMessage{
			{UID: 1, Subject: "First", Sender: "alice@example.com", Content: "hello"},
		},
	}
	engine, index := newTestEngine(session)
	observer := &recordingObserver{err: errors.New("broker down")}
	engine.SetObserver(observer)

	emails, err := engine.FullSync(context.Background())

	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Len(t, observer.seen, 1)

	stored, err := index.GetByID(context.Background(), "user@example.com:1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestNormalizeFillsPlaceholders(t *testing.T) {
	engine, _ := newTestEngine(&fakeSession{})

	email := engine.normalize(interfaces.RawMessage{UID: 9, Subject: "  ", Sender: "", Content: "\n", Date: "not a date"})

	assert.Equal(t, models.DefaultSubject, email.Subject)
	assert.Equal(t, models.DefaultSender, email.Sender)
	assert.Equal(t, models.DefaultContent, email.Content)
	assert.Equal(t, "user@example.com:9", email.ID)
	assert.NotNil(t, email.Categories)
	assert.Empty(t, email.Categories)
	assert.False(t, email.IsRead)
	assert.False(t, email.IsInterested)
	// Unparseable dates fall back to ingestion time.
	assert.WithinDuration(t, time.Now().UTC(), email.Timestamp, 5*time.Second)
}

func TestNormalizeParsesDateToUTC(t *testing.T) {
	engine, _ := newTestEngine(&fakeSession{})

	email := engine.normalize(interfaces.RawMessage{UID: 3, Subject: "x", Date: "Wed, 01 May 2024 10:00:00 +0200"})

	expected := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	assert.True(t, email.Timestamp.Equal(expected))
	assert.Equal(t, time.UTC, email.Timestamp.Location())
}

func TestRunSurvivesInitialConnectFailure(t *testing.T) {
	session := &fakeSession{
		connectErr: errors.New("connection refused"),
		messages: []interfaces.RawMessage{
			{UID: 1, Subject: "First", Sender: "alice@example.com", Content: "hello"},
		},
	}
	engine, index := newTestEngine(session)

	done := make(chan struct{})
	go func() {
		_ = engine.Run(context.Background())
		close(done)
	}()

	// The loop recovers through EnsureConnected and still indexes mail.
	require.Eventually(t, func() bool {
		email, err := index.GetByID(context.Background(), "user@example.com:1")
		return err == nil && email != nil
	}, time.Second, 10*time.Millisecond)

	engine.Stop()
	<-done
}

func TestStopClosesSession(t *testing.T) {
	session := &fakeSession{}
	engine, _ := newTestEngine(session)

	go func() {
		// Run exits once Stop fires.
		_ = engine.Run(context.Background())
	}()

	// Give the loop a moment to start before stopping it.
	time.Sleep(10 * time.Millisecond)
	engine.Stop()

	assert.True(t, session.closed)
}
