package utils

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// GenerateEventID creates a short unique id for outgoing notifications
func GenerateEventID() string {
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789"
	id, err := gonanoid.Generate(alphabet, 12)
	if err != nil {
		panic(err)
	}
	return id
}
