package testutil

import (
	"net/http"

	id "civicdesk/pkg/domain"
	"civicdesk/pkg/requestcontext"
)

// WithActor sets the X-Actor-ID header the upstream identity provider would add.
func WithActor(req *http.Request, actor id.UserID) *http.Request {
	req.Header.Set("X-Actor-ID", actor.String())
	return req
}

// WithActorContext injects the actor straight into the request context,
// bypassing the header middleware.
func WithActorContext(req *http.Request, actor id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actor))
}
