package interfaces

import (
	"context"
	"time"

	"github.com/oneboxhq/onebox/internal/models"
)

// EmailFilter is a conjunction of search conditions; zero values mean
// "no condition". An empty filter matches all documents.
type EmailFilter struct {
	// Query is matched as free text against subject, content and sender.
	Query string
	// Categories matches documents carrying any of the given labels.
	Categories []string
	// Interested, when set, requires an exact is_interested match.
	Interested *bool
	// Account, when set, requires an exact account match.
	Account string
	// From/To bound the timestamp range inclusively; either may be nil.
	From *time.Time
	To   *time.Time
}

// EmailPage is one page of search results, sorted by timestamp
// descending. Pages is ceil(Total/Size).
type EmailPage struct {
	Emails []*models.Email `json:"emails"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Size   int             `json:"size"`
	Pages  int             `json:"pages"`
}

// EmailIndex is the searchable document store for normalized messages.
// Missing documents are a normal outcome (nil/false), never an error;
// storage failures are propagated unmodified.
type EmailIndex interface {
	// Upsert writes one document keyed by (account, uid), last write wins.
	Upsert(ctx context.Context, email *models.Email) error

	// BulkUpsert writes a batch with the same semantics; an empty batch
	// is a no-op and a partial failure surfaces as a single error.
	BulkUpsert(ctx context.Context, emails []*models.Email) error

	// GetByID returns the document, or (nil, nil) when it does not exist.
	GetByID(ctx context.Context, id string) (*models.Email, error)

	// Update merges the given fields into an existing document and
	// reports whether the document existed.
	Update(ctx context.Context, id string, fields map[string]interface{}) (bool, error)

	// Delete removes the document and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Search returns the page of documents matching all filter
	// conditions, newest first. Pagination is 1-indexed.
	Search(ctx context.Context, filter EmailFilter, page, size int) (*EmailPage, error)
}
