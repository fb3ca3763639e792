package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Placeholder values used when a source header is absent or blank.
const (
	DefaultSubject = "(No Subject)"
	DefaultSender  = "(No Sender)"
	DefaultContent = "(No Content)"
)

// Email is a normalized message document stored in the index.
// The IMAP UID is the only stable cross-session key; (account, uid) is
// globally unique, so the document id is derived from both.
type Email struct {
	ID      string `gorm:"column:id;type:varchar(255);primaryKey" json:"id"`
	UID     uint32 `gorm:"column:uid;uniqueIndex:idx_emails_account_uid" json:"uid"`
	Account string `gorm:"column:account;type:varchar(255);uniqueIndex:idx_emails_account_uid" json:"account"`
	Folder  string `gorm:"column:folder;type:varchar(100)" json:"folder"`

	Subject   string `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Sender    string `gorm:"column:sender;type:varchar(500);index" json:"sender"`
	Recipient string `gorm:"column:recipient;type:varchar(500)" json:"recipient"`
	Content   string `gorm:"column:content;type:text" json:"content"`

	// Timestamp is always a UTC instant; normalization falls back to
	// ingestion time when the source date header is missing or malformed.
	Timestamp time.Time `gorm:"column:timestamp;type:timestamp;index" json:"timestamp"`

	// Categories is filled in by the external classification process
	// through the partial-update API, never by the sync engine.
	Categories pq.StringArray `gorm:"column:categories;type:text[]" json:"categories"`

	IsRead       bool `gorm:"column:is_read;default:false" json:"is_read"`
	IsFlagged    bool `gorm:"column:is_flagged;default:false" json:"is_flagged"`
	IsInterested bool `gorm:"column:is_interested;index;default:false" json:"is_interested"`

	Suggestions Suggestions `gorm:"column:suggestions;type:jsonb" json:"suggestions"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"-"`
}

func (Email) TableName() string {
	return "emails"
}

// DocumentID builds the index document key for a message.
func DocumentID(account string, uid uint32) string {
	return fmt.Sprintf("%s:%d", account, uid)
}
