package interfaces

import (
	"context"
	"time"
)

const (
	PushEventMailbox = "mailbox"
	PushEventExpunge = "expunge"
	PushEventMessage = "message"
	PushEventOther   = "other"
)

// PushEvent is one raw mailbox-change notification received while the
// session is in push (IDLE) mode.
type PushEvent struct {
	// Kind names the server update that triggered the event, e.g.
	// "mailbox", "expunge" or "message".
	Kind string
	// Messages is the message count reported by the server for mailbox
	// updates, zero otherwise.
	Messages uint32
}

// RawMessage is an undecoded message record as fetched from the server,
// before normalization. Date carries the raw Date header value.
type RawMessage struct {
	UID       uint32
	Subject   string
	Sender    string
	Recipient string
	Date      string
	Content   string
}

// MailboxSession owns one authenticated IMAP connection. Only one
// operation may be in flight at a time: push mode must be exited before
// FetchSince or any other command is issued.
type MailboxSession interface {
	// Connect authenticates against the remote endpoint, retrying up to
	// the configured limit with a fixed delay between attempts. After
	// exhausting the limit it returns an error carrying the attempt
	// count and the last underlying cause.
	Connect(ctx context.Context) error

	// EnsureConnected verifies the connection with a lightweight probe
	// and performs a full teardown-and-reconnect on any failure.
	EnsureConnected(ctx context.Context) error

	// EnterPushMode selects the working folder and starts listening for
	// server push notifications. It is a no-op when already in push mode.
	EnterPushMode(ctx context.Context) error

	// WaitForPush blocks up to timeout for mailbox-change notifications
	// and returns the (possibly empty) set of events. On transport error
	// it reconnects and returns an empty set; the caller must re-enter
	// push mode before waiting again.
	WaitForPush(ctx context.Context, timeout time.Duration) ([]PushEvent, error)

	// ExitPushMode leaves push mode so ordinary commands can be issued.
	// It is a no-op when not in push mode.
	ExitPushMode(ctx context.Context) error

	// FetchSince lists and retrieves all messages in the working folder
	// received at or after cutoff. Messages that fail to decode are
	// skipped and logged, never fatal to the batch.
	FetchSince(ctx context.Context, cutoff time.Time) ([]RawMessage, error)

	// Close logs out best-effort. It never fails.
	Close()
}
