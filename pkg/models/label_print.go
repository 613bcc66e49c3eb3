package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	LabelLayoutStandard = "standard"
	LabelLayoutReview   = "review"
)

type LabelPrint struct {
	bun.BaseModel `bun:"table:label_prints,alias:lp"`

	ID         string    `bun:",pk" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Code       string    `bun:",nullzero" json:"code"`
	Entity     string    `bun:",nullzero" json:"entity"`
	Layout     string    `bun:",nullzero" json:"layout"`
	FilePath   string    `bun:",nullzero" json:"-"`
	PageCount  int       `json:"page_count"`
	UserEmail  string    `bun:",nullzero" json:"user_email"`
	AuditSaved bool      `json:"audit_saved"`
	AuditError *string   `json:"audit_error,omitempty"`
}
