// Package domain defines identifier primitives shared across modules.
package domain

import "github.com/google/uuid"

// DocumentID identifies a controlled document.
type DocumentID uuid.UUID

// TenantID identifies a tenant organization.
type TenantID uuid.UUID

// UserID identifies an actor account.
type UserID uuid.UUID

func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }

func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// ParseDocumentID parses a document ID from its string form.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(u), nil
}

// ParseTenantID parses a tenant ID from its string form.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseUserID parses a user ID from its string form.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// NewDocumentID returns a fresh random document ID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewTenantID returns a fresh random tenant ID.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// MarshalText implements encoding.TextMarshaler so IDs render as UUID strings in JSON.
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id TenantID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := ParseDocumentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *TenantID) UnmarshalText(b []byte) error {
	parsed, err := ParseTenantID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
