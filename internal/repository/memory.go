package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/oneboxhq/onebox/interfaces"
	"github.com/oneboxhq/onebox/internal/models"
)

// inMemoryEmailIndex mirrors the postgres index semantics for tests and
// local runs without a database.
type inMemoryEmailIndex struct {
	mu              sync.RWMutex
	docs            map[string]*models.Email
	defaultPageSize int
}

func NewInMemoryEmailIndex(defaultPageSize int) interfaces.EmailIndex {
	if defaultPageSize <= 0 {
		defaultPageSize = 50
	}
	return &inMemoryEmailIndex{
		docs:            make(map[string]*models.Email),
		defaultPageSize: defaultPageSize,
	}
}

func (m *inMemoryEmailIndex) Upsert(ctx context.Context, email *models.Email) error {
	if email == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store(email)
	return nil
}

func (m *inMemoryEmailIndex) BulkUpsert(ctx context.Context, emails []*models.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, email := range emails {
		if email == nil {
			continue
		}
		m.store(email)
	}
	return nil
}

func (m *inMemoryEmailIndex) store(email *models.Email) {
	if email.ID == "" {
		email.ID = models.DocumentID(email.Account, email.UID)
	}
	copied := *email
	m.docs[copied.ID] = &copied
}

func (m *inMemoryEmailIndex) GetByID(ctx context.Context, id string) (*models.Email, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (m *inMemoryEmailIndex) Update(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return false, nil
	}
	for key, value := range fields {
		switch key {
		case "is_read":
			if v, ok := value.(bool); ok {
				doc.IsRead = v
			}
		case "is_flagged":
			if v, ok := value.(bool); ok {
				doc.IsFlagged = v
			}
		case "is_interested":
			if v, ok := value.(bool); ok {
				doc.IsInterested = v
			}
		case "categories":
			switch v := value.(type) {
			case []string:
				doc.Categories = append(doc.Categories[:0:0], v...)
			case pq.StringArray:
				doc.Categories = append(doc.Categories[:0:0], v...)
			}
		case "suggestions":
			if v, ok := value.(models.Suggestions); ok {
				doc.Suggestions = v
			}
		}
	}
	return true, nil
}

func (m *inMemoryEmailIndex) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return false, nil
	}
	delete(m.docs, id)
	return true, nil
}

func (m *inMemoryEmailIndex) Search(ctx context.Context, filter interfaces.EmailFilter, page, size int) (*interfaces.EmailPage, error) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = m.defaultPageSize
	}

	m.mu.RLock()
	matched := make([]*models.Email, 0, len(m.docs))
	for _, doc := range m.docs {
		if matches(doc, filter) {
			copied := *doc
			matched = append(matched, &copied)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := int64(len(matched))
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	return &interfaces.EmailPage{
		Emails: matched[start:end],
		Total:  total,
		Page:   page,
		Size:   size,
		Pages:  pageCount(total, size),
	}, nil
}

func matches(doc *models.Email, filter interfaces.EmailFilter) bool {
	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		if !strings.Contains(strings.ToLower(doc.Subject), q) &&
			!strings.Contains(strings.ToLower(doc.Content), q) &&
			!strings.Contains(strings.ToLower(doc.Sender), q) {
			return false
		}
	}
	if len(filter.Categories) > 0 && !overlaps(doc.Categories, filter.Categories) {
		return false
	}
	if filter.Interested != nil && doc.IsInterested != *filter.Interested {
		return false
	}
	if filter.Account != "" && doc.Account != filter.Account {
		return false
	}
	if filter.From != nil && doc.Timestamp.Before(filter.From.UTC()) {
		return false
	}
	if filter.To != nil && doc.Timestamp.After(filter.To.UTC()) {
		return false
	}
	return true
}

func overlaps(have []string, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
