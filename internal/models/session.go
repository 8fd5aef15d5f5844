package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side state behind a session cookie.
type Session struct {
	Token        string        `json:"-"`
	Kind         PrincipalKind `json:"kind"`
	PrincipalID  uuid.UUID     `json:"principal_id"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// Subject returns the principal the session belongs to.
func (s Session) Subject() Subject {
	return Subject{Kind: s.Kind, ID: s.PrincipalID}
}
