// Package adapters connects verification to the identity module.
package adapters

import (
	"context"
	"errors"

	identity "aidledger/internal/identity/models"
	"aidledger/internal/verification/models"
	id "aidledger/pkg/domain"
	dErrors "aidledger/pkg/domain-errors"
	"aidledger/pkg/platform/sentinel"
)

// UserLookup reads accounts straight from the user store so verification can
// be built before the identity service that notifies it.
type UserLookup interface {
	FindByID(ctx context.Context, userID id.UserID) (*identity.User, error)
}

// IdentityContacts reads destinations from the account record.
type IdentityContacts struct {
	users UserLookup
}

func NewIdentityContacts(users UserLookup) *IdentityContacts {
	return &IdentityContacts{users: users}
}

func (a *IdentityContacts) Contact(ctx context.Context, userID id.UserID, channel models.Channel) (string, error) {
	user, err := a.users.FindByID(ctx, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return "", dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	if channel == models.ChannelEmail {
		return user.Email, nil
	}
	return user.Phone, nil
}

type Resetter interface {
	Reset(ctx context.Context, userID id.UserID, channels ...models.Channel) error
}

// ProfileChanges forwards changed contact fields from identity to verification.
type ProfileChanges struct {
	verification Resetter
}

func NewProfileChanges(verification Resetter) *ProfileChanges {
	return &ProfileChanges{verification: verification}
}

func (p *ProfileChanges) ContactsChanged(ctx context.Context, userID id.UserID, channels []string) error {
	parsed := make([]models.Channel, 0, len(channels))
	for _, raw := range channels {
		ch, err := models.ParseChannel(raw)
		if err != nil {
			return err
		}
		parsed = append(parsed, ch)
	}
	return p.verification.Reset(ctx, userID, parsed...)
}
