package repository

import (
	"context"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/models"
	"github.com/oneboxhq/onebox/internal/utils"
)

func seedEmail(uid uint32, subject string, timestamp time.Time) *models.Email {
	return &models.Email{
		UID:       uid,
		Account:   "user@example.com",
		Folder:    "INBOX",
		Subject:   subject,
		Sender:    "alice@example.com",
		Content:   "body of " + subject,
		Timestamp: timestamp,
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, index.Upsert(ctx, seedEmail(1, "first draft", base)))
	require.NoError(t, index.Upsert(ctx, seedEmail(1, "final version", base)))

	page, err := index.Search(ctx, interfaces.EmailFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, "final version", page.Emails[0].Subject)
}

func TestBulkUpsertEmptyBatchIsNoop(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()

	require.NoError(t, index.BulkUpsert(ctx, nil))

	page, err := index.Search(ctx, interfaces.EmailFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), page.Total)
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	index := NewInMemoryEmailIndex(50)

	email, err := index.GetByID(context.Background(), "user@example.com:999")

	require.NoError(t, err)
	assert.Nil(t, email)
}

func TestSearchSortsNewestFirstAndPaginates(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, index.BulkUpsert(ctx, []*models.Email{
		seedEmail(1, "oldest", base),
		seedEmail(2, "middle", base.Add(time.Hour)),
		seedEmail(3, "newest", base.Add(2*time.Hour)),
	}))

	first, err := index.Search(ctx, interfaces.EmailFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Total)
	assert.Equal(t, 2, first.Pages)
	require.Len(t, first.Emails, 2)
	assert.Equal(t, uint32(3), first.Emails[0].UID)
	assert.Equal(t, uint32(2), first.Emails[1].UID)

	second, err := index.Search(ctx, interfaces.EmailFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, second.Emails, 1)
	assert.Equal(t, uint32(1), second.Emails[0].UID)

	// Concatenated pages cover every match exactly once.
	assert.Equal(t, first.Total, int64(len(first.Emails)+len(second.Emails)))
}

func TestSearchBeyondLastPageIsEmpty(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, seedEmail(1, "only", time.Now().UTC())))

	page, err := index.Search(ctx, interfaces.EmailFilter{}, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Emails)
	assert.Equal(t, int64(1), page.Total)
}

func TestSearchFiltersCompose(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	invoice := seedEmail(1, "Invoice overdue", base)
	invoice.Categories = pq.StringArray{"billing"}
	invoice.IsInterested = true

	newsletter := seedEmail(2, "Weekly newsletter", base.Add(time.Hour))
	newsletter.Categories = pq.StringArray{"news"}

	other := seedEmail(3, "Invoice paid", base.Add(2*time.Hour))
	other.Account = "other@example.com"
	other.ID = models.DocumentID(other.Account, other.UID)

	require.NoError(t, index.BulkUpsert(ctx, []*models.Email{invoice, newsletter, other}))

	page, err := index.Search(ctx, interfaces.EmailFilter{
		Query:      "invoice",
		Categories: []string{"billing", "finance"},
		Interested: utils.Ptr(true),
		Account:    "user@example.com",
	}, 1, 10)

	require.NoError(t, err)
	require.Len(t, page.Emails, 1)
	assert.Equal(t, uint32(1), page.Emails[0].UID)
}

func TestSearchTimeRangeIsInclusive(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, index.BulkUpsert(ctx, []*models.Email{
		seedEmail(1, "before", base.Add(-time.Hour)),
		seedEmail(2, "boundary", base),
		seedEmail(3, "after", base.Add(time.Hour)),
	}))

	page, err := index.Search(ctx, interfaces.EmailFilter{From: utils.Ptr(base), To: utils.Ptr(base)}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Emails, 1)
	assert.Equal(t, uint32(2), page.Emails[0].UID)
}

func TestUpdateMergesFields(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, seedEmail(1, "subject", time.Now().UTC())))

	ok, err := index.Update(ctx, "user@example.com:1", map[string]interface{}{
		"is_interested": true,
		"categories":    []string{"billing"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	email, err := index.GetByID(ctx, "user@example.com:1")
	require.NoError(t, err)
	require.NotNil(t, email)
	assert.True(t, email.IsInterested)
	assert.Equal(t, pq.StringArray{"billing"}, email.Categories)
	// Untouched fields survive the merge.
	assert.Equal(t, "subject", email.Subject)
}

func TestUpdateMissingReturnsFalse(t *testing.T) {
	index := NewInMemoryEmailIndex(50)

	ok, err := index.Update(context.Background(), "user@example.com:404", map[string]interface{}{"is_read": true})

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteReportsExistence(t *testing.T) {
	index := NewInMemoryEmailIndex(50)
	ctx := context.Background()

	require.NoError(t, index.Upsert(ctx, seedEmail(1, "subject", time.Now().UTC())))

	ok, err := index.Delete(ctx, "user@example.com:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = index.Delete(ctx, "user@example.com:1")
	require.NoError(t, err)
	assert.False(t, ok)

	email, err := index.GetByID(ctx, "user@example.com:1")
	require.NoError(t, err)
	assert.Nil(t, email)
}
