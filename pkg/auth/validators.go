package auth

import (
	"time"

	"github.com/segmentio/encoding/json"
)

// LoginPayload represents the login request body.
type LoginPayload struct {
	Email    string `json:"email" mod:"trim" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignupPayload represents the signup request body.
type SignupPayload struct {
	Email    string `json:"email" mod:"trim" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// MeResponse represents the current operator.
type MeResponse struct {
	Email           string          `json:"email"`
	User            json.RawMessage `json:"user,omitempty"`
	LastValidatedAt *time.Time      `json:"last_validated_at,omitempty"`
}

// ValidateResponse reports whether the backend still accepts the session.
type ValidateResponse struct {
	Valid bool `json:"valid"`
}
