// Package domain holds identifier and actor primitives shared across modules.
//
// IDs are parsed at trust boundaries (handlers, token validation) so services
// never see malformed identifiers.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "aidledger/pkg/domain-errors"
)

// UserID identifies a citizen or administrator account.
type UserID uuid.UUID

// SchemeID is the slug of a welfare scheme, e.g. "education-support".
type SchemeID string

// ApplicationID is the human-readable application reference, e.g. "APP-01J...".
type ApplicationID string

const (
	applicationIDPrefix = "APP-"
	maxIDLength         = 64
)

var (
	schemeIDPattern      = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
	applicationIDPattern = regexp.MustCompile(`^APP-[0-9A-Z]+$`)
)

// NewUserID returns a random user identifier.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID parses a non-nil UUID.
func ParseUserID(s string) (UserID, error) {
	if s == "" || len(s) > maxIDLength {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id must be a valid uuid")
	}
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return UserID{}, dErrors.New(dErrors.CodeInvalidInput, "user id must be a valid uuid")
	}
	return UserID(u), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseSchemeID validates a lowercase slug.
func ParseSchemeID(s string) (SchemeID, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxIDLength || !schemeIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "scheme id must be a lowercase slug")
	}
	return SchemeID(s), nil
}

func (id SchemeID) String() string { return string(id) }

func (id SchemeID) IsNil() bool { return id == "" }

// NewApplicationID builds an application reference from a sortable suffix.
func NewApplicationID(suffix string) ApplicationID {
	return ApplicationID(applicationIDPrefix + suffix)
}

// ParseApplicationID validates an "APP-" prefixed reference.
func ParseApplicationID(s string) (ApplicationID, error) {
	if s == "" || len(s) > maxIDLength || !applicationIDPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "application id is malformed")
	}
	return ApplicationID(s), nil
}

func (id ApplicationID) String() string { return string(id) }

func (id ApplicationID) IsNil() bool { return id == "" }
