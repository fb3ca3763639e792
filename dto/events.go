package dto

import "github.com/oneboxhq/onebox/internal/models"

// Event is the envelope every published notification is wrapped in.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EmailReceived is emitted once per newly indexed message.
type EmailReceived struct {
	DocumentID string        `json:"documentId"`
	Account    string        `json:"account"`
	Folder     string        `json:"folder"`
	UID        uint32        `json:"uid"`
	Email      *models.Email `json:"email"`
}
