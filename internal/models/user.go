package models

import "github.com/google/uuid"

// User is the authenticated caller resolved from a bearer token.
type User struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
}
