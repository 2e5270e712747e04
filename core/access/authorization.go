/*Package access provides utilities for access control
 */
package access

import (
	"context"
	"net/http"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

// the predefined context key
const (
	contextKeyAuthorization contextKey = "_authorization_"
)

/*Authorization is a context object which stores authorization information
for users and machines.

An authorization carries the identity of the requester and a list of roles.
Authorizations are added to a request context with

  ctx = ContextWithAuthorization(ctx, auth)

and retrieved with

  auth := AuthorizationFromContext(ctx)

The JWT middleware adds them for requests carrying a valid bearer token or a
Twinrelay-JWT cookie.
*/
type Authorization struct {
	Identity string   `json:"identity"`
	Roles    []string `json:"roles"`
}

// HasRole returns true if the authorization contains the requested role;
// otherwise it returns false.
func (a *Authorization) HasRole(role string) bool {
	if a == nil {
		return false
	}
	for _, hasRole := range a.Roles {
		if role == hasRole {
			return true
		}
	}
	return false
}

// ContextWithAuthorization returns a new context with the given authorization
func ContextWithAuthorization(ctx context.Context, auth *Authorization) context.Context {
	return context.WithValue(ctx, contextKeyAuthorization, auth)
}

// AuthorizationFromContext retrieves the authorization from the context, or nil
func AuthorizationFromContext(ctx context.Context) *Authorization {
	auth, _ := ctx.Value(contextKeyAuthorization).(*Authorization)
	return auth
}

// RequireRole returns a middleware which rejects requests whose authorization lacks role
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := AuthorizationFromContext(r.Context())
			if auth == nil {
				http.Error(w, "not authorized", http.StatusUnauthorized)
				return
			}
			if !auth.HasRole(role) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			h.ServeHTTP(w, r)
		})
	}
}
