package admission

import (
	ratelimitmodels "loyalgate/internal/ratelimit/models"
)

// Route is the admission metadata attached to a group of handlers.
type Route struct {
	// Name labels spans and logs, e.g. "api_keys.create".
	Name  string
	Class ratelimitmodels.EndpointClass
	// Public routes admit credential-less callers as anonymous principals, limited per client IP.
	// A credential that is present is still authenticated.
	Public bool
	// Scopes the principal must all hold. Anonymous principals hold none.
	Scopes []string
}

func (r Route) label() string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.Class)
}
