// Package domain holds typed identifiers shared across bounded contexts.
//
// Every identifier is a distinct named type over uuid.UUID so a TenantID can
// never be passed where a UserID or APIKeyID is expected. Parse functions are
// the only sanctioned way to build IDs from untrusted input.
package domain

import (
	"github.com/google/uuid"

	dErrors "loyalgate/pkg/domain-errors"
)

type (
	TenantID  uuid.UUID
	UserID    uuid.UUID
	SessionID uuid.UUID
	APIKeyID  uuid.UUID
)

func (id TenantID) String() string  { return uuid.UUID(id).String() }
func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id SessionID) String() string { return uuid.UUID(id).String() }
func (id APIKeyID) String() string  { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id APIKeyID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func NewTenantID() TenantID   { return TenantID(uuid.New()) }
func NewUserID() UserID       { return UserID(uuid.New()) }
func NewSessionID() SessionID { return SessionID(uuid.New()) }
func NewAPIKeyID() APIKeyID   { return APIKeyID(uuid.New()) }

// maxIDLength bounds input before it reaches the UUID parser.
const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant id", s)
	return TenantID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID("session id", s)
	return SessionID(u), err
}

func ParseAPIKeyID(s string) (APIKeyID, error) {
	u, err := parseUUID("api key id", s)
	return APIKeyID(u), err
}
