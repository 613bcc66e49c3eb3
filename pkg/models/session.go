package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Session is a console login. The browser only ever sees a signed reference
// to the ID, while the backend tokens stay on the server.
type Session struct {
	bun.BaseModel `bun:"table:sessions,alias:s"`

	ID              string     `bun:",pk" json:"id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	AccessToken     string     `bun:",nullzero" json:"-"`
	RefreshToken    string     `bun:",nullzero" json:"-"`
	UserEmail       string     `bun:",nullzero" json:"user_email"`
	User            string     `bun:",nullzero" json:"-"`
	LastValidatedAt *time.Time `json:"last_validated_at,omitempty"`
}
