package testutil

import (
	"net/http"

	id "aidledger/pkg/domain"
	"aidledger/pkg/requestcontext"
)

// WithActor simulates what the auth middleware does for an authenticated request.
func WithActor(req *http.Request, actor id.Actor) *http.Request {
	return req.WithContext(requestcontext.WithActor(req.Context(), actor))
}

// AsCitizen attaches a citizen actor with the given id.
func AsCitizen(req *http.Request, userID id.UserID) *http.Request {
	return WithActor(req, id.Actor{ID: userID, Role: id.RoleCitizen})
}

// AsAdmin attaches an admin actor with the given id.
func AsAdmin(req *http.Request, userID id.UserID) *http.Request {
	return WithActor(req, id.Actor{ID: userID, Role: id.RoleAdmin})
}
