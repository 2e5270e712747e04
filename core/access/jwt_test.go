package access

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef")

func newRouter(optional bool) *mux.Router {
	router := mux.NewRouter()
	router.Use(NewJwtMiddelware(&JwtMiddlewareBuilder{Secret: secret, Issuer: "twinrelay", Optional: optional}))
	router.Handle("/timeseries/temp", RequireRole("viewer")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(AuthorizationFromContext(r.Context()).Identity))
	})))
	router.HandleFunc("/public", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return router
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJwtMiddleware(t *testing.T) {
	router := newRouter(false)

	token, err := NewToken(secret, "twinrelay", "alice", []string{"viewer"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/timeseries/temp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(router, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/timeseries/temp", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	assert.Equal(t, http.StatusOK, serve(router, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/timeseries/temp", nil)
	assert.Equal(t, http.StatusUnauthorized, serve(router, req).Code)
}

func TestJwtMiddleware_Rejected(t *testing.T) {
	router := newRouter(false)

	noRole, err := NewToken(secret, "twinrelay", "bob", nil, time.Hour)
	require.NoError(t, err)
	wrongIssuer, err := NewToken(secret, "someone", "bob", []string{"viewer"}, time.Hour)
	require.NoError(t, err)
	expired, err := NewToken(secret, "twinrelay", "bob", []string{"viewer"}, -time.Minute)
	require.NoError(t, err)
	otherKey, err := NewToken([]byte("another secret!!"), "twinrelay", "bob", []string{"viewer"}, time.Hour)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "twinrelay", Subject: "bob"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		code  int
	}{
		{"missing role", noRole, http.StatusForbidden},
		{"wrong issuer", wrongIssuer, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong key", otherKey, http.StatusUnauthorized},
		{"unsigned", none, http.StatusUnauthorized},
		{"garbage", "abc.def.ghi", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/timeseries/temp", nil)
			req.Header.Set("Authorization", "bearer "+tt.token)
			assert.Equal(t, tt.code, serve(router, req).Code)
		})
	}
}

func TestJwtMiddleware_Optional(t *testing.T) {
	router := newRouter(true)
	rec := serve(router, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = serve(router, httptest.NewRequest(http.MethodGet, "/timeseries/temp", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestNewJwtMiddleware_Mandatory(t *testing.T) {
	assert.Panics(t, func() { NewJwtMiddelware(&JwtMiddlewareBuilder{Issuer: "twinrelay"}) })
	assert.Panics(t, func() { NewJwtMiddelware(&JwtMiddlewareBuilder{Secret: secret}) })
}

func TestHasRole(t *testing.T) {
	var auth *Authorization
	assert.False(t, auth.HasRole("viewer"))
	auth = &Authorization{Roles: []string{"admin", "viewer"}}
	assert.True(t, auth.HasRole("viewer"))
	assert.False(t, auth.HasRole("device"))
}
