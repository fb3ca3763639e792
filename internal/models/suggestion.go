package models

import (
	"database/sql/driver"
	"encoding/json"
)

// Suggestion is one AI-generated reply suggestion, produced by an
// external collaborator and written back through the update API.
type Suggestion struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Suggestions is a JSONB-backed list of reply suggestions.
type Suggestions []Suggestion

// Value implements the driver.Valuer interface for Suggestions
func (s Suggestions) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal(Suggestions{})
	}
	return json.Marshal(s)
}

// Scan implements the sql.Scanner interface for Suggestions
func (s *Suggestions) Scan(value interface{}) error {
	if value == nil {
		*s = Suggestions{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, s)
}
