package dto

import "github.com/oneboxhq/onebox/internal/models"

// UpdateEmailRequest carries the mutable fields of an indexed document.
// Nil fields are left untouched.
type UpdateEmailRequest struct {
	IsRead       *bool               `json:"is_read"`
	IsFlagged    *bool               `json:"is_flagged"`
	IsInterested *bool               `json:"is_interested"`
	Categories   []string            `json:"categories"`
	Suggestions  *models.Suggestions `json:"suggestions"`
}

// MarkInterestedRequest flags a document for follow-up. Interested
// defaults to true when omitted.
type MarkInterestedRequest struct {
	Interested *bool `json:"interested"`
}
