// Package adapters connects the application lifecycle to the identity module.
package adapters

import (
	"context"

	identity "aidledger/internal/identity/models"
	id "aidledger/pkg/domain"
)

type ProfileReader interface {
	Profile(ctx context.Context, userID id.UserID) (*identity.User, error)
}

// IdentityApplicants reads applicant names from account profiles.
type IdentityApplicants struct {
	profiles ProfileReader
}

func NewIdentityApplicants(profiles ProfileReader) *IdentityApplicants {
	return &IdentityApplicants{profiles: profiles}
}

func (a *IdentityApplicants) DisplayName(ctx context.Context, userID id.UserID) (string, error) {
	user, err := a.profiles.Profile(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Name, nil
}
