package interfaces

import (
	"context"

	"github.com/oneboxhq/onebox/internal/models"
)

// MessageObserver is notified once per newly indexed message. Delivery
// is fire-and-forget: an observer error is logged by the engine and
// never affects sync progress.
type MessageObserver interface {
	OnNewMessage(ctx context.Context, email *models.Email) error
}

// SyncEngine orchestrates reconciliation syncs, the push-notification
// wait loop and the periodic sync over one MailboxSession.
type SyncEngine interface {
	// Run connects the session, performs an initial full sync and then
	// loops until the context is cancelled or Stop is called.
	Run(ctx context.Context) error

	// FullSync performs one reconciliation pass and returns the newly
	// seen, normalized messages. Concurrent invocations are serialized.
	FullSync(ctx context.Context) ([]*models.Email, error)

	// Stop signals the run loop to exit at its next checkpoint and
	// closes the session.
	Stop()

	// SetObserver registers the new-message observer.
	SetObserver(observer MessageObserver)
}
