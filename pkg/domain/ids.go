// Package domain holds identifier primitives shared across modules.
//
// Each identifier is a distinct named type over uuid.UUID so that a complaint
// id can never be passed where a user id is expected. Parsing happens once at
// trust boundaries (HTTP adapter, store scans); everything past that point
// works with the typed value.
package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"

	dErrors "civicdesk/pkg/domain-errors"
)

// UserID identifies a citizen or operator known to the external identity provider.
type UserID uuid.UUID

// ComplaintID identifies a complaint record. Assigned at creation, immutable.
type ComplaintID uuid.UUID

// NewComplaintID returns a fresh random complaint id.
func NewComplaintID() ComplaintID { return ComplaintID(uuid.New()) }

func (u UserID) String() string      { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool         { return uuid.UUID(u) == uuid.Nil }
func (c ComplaintID) String() string { return uuid.UUID(c).String() }
func (c ComplaintID) IsNil() bool    { return uuid.UUID(c) == uuid.Nil }

// Value lets typed ids be passed straight to database/sql.
func (c ComplaintID) Value() (driver.Value, error) { return uuid.UUID(c).String(), nil }

// Scan reads a uuid column into a ComplaintID.
func (c *ComplaintID) Scan(src any) error {
	var u uuid.UUID
	if err := u.Scan(src); err != nil {
		return err
	}
	*c = ComplaintID(u)
	return nil
}

func (u UserID) Value() (driver.Value, error) { return uuid.UUID(u).String(), nil }

func (u *UserID) Scan(src any) error {
	var v uuid.UUID
	if err := v.Scan(src); err != nil {
		return err
	}
	*u = UserID(v)
	return nil
}

// MarshalText renders ids as canonical UUID strings in JSON.
func (c ComplaintID) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (u UserID) MarshalText() ([]byte, error)      { return []byte(u.String()), nil }

func (c *ComplaintID) UnmarshalText(b []byte) error {
	v, err := ParseComplaintID(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func (u *UserID) UnmarshalText(b []byte) error {
	v, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

// ParseUserID parses and validates a user id.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

// ParseComplaintID parses and validates a complaint id.
func ParseComplaintID(s string) (ComplaintID, error) {
	u, err := parseUUID(s, "complaint")
	return ComplaintID(u), err
}

// parseUUID rejects empty, malformed and nil UUIDs with CodeInvalidInput.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s id is required", kind))
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, fmt.Sprintf("invalid %s id", kind))
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("%s id must not be nil", kind))
	}
	return u, nil
}
