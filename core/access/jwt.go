package access

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/relabs-tech/twinrelay/core/logger"
)

// CookieName is the name of the cookie which may carry the token instead of the
// Authorization header
const CookieName = "Twinrelay-JWT"

// Claims are the claims of a twinrelay token
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JwtMiddlewareBuilder is a helper builder for JwtMiddelware
type JwtMiddlewareBuilder struct {
	// Secret is the HMAC key tokens are signed with. Mandatory.
	Secret []byte
	// Issuer is the accepted issuer for the token. Mandatory.
	Issuer string
	// Optional makes requests without token pass unauthorized, instead of being rejected
	Optional bool
}

// NewJwtMiddelware returns a middleware handler to validate JWT bearer token.
//
// Tokens are accepted as "Authorization: Bearer" header or as "Twinrelay-JWT"-cookie.
// The token subject becomes the identity of the authorization, the "roles" claim its
// roles.
//
// This is a final handler with regards to the bearer token. It will return
// http.StatusUnauthorized when a token is available but invalid.
func NewJwtMiddelware(jmb *JwtMiddlewareBuilder) mux.MiddlewareFunc {
	if len(jmb.Secret) == 0 {
		panic("Secret is missing")
	}
	if jmb.Issuer == "" {
		panic("Issuer is missing")
	}

	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return jmb.Secret, nil
	}

	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if AuthorizationFromContext(r.Context()) != nil { // already authorized?
				h.ServeHTTP(w, r)
				return
			}
			rlog := logger.FromContext(r.Context())

			tokenString := tokenFromRequest(r)
			if len(tokenString) == 0 {
				if jmb.Optional {
					h.ServeHTTP(w, r)
					return
				}
				http.Error(w, "missing token", http.StatusUnauthorized)
				return
			}

			claims := Claims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, keyFunc)
			if err != nil || !token.Valid || claims.Issuer != jmb.Issuer {
				rlog.WithError(err).Infoln("rejected token")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			auth := &Authorization{Identity: claims.Subject, Roles: claims.Roles}
			ctx := ContextWithAuthorization(r.Context(), auth)
			rlog.Debugln("authorized", auth.Identity)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	bearer := r.Header.Get("Authorization")
	if len(bearer) > 0 && bearer != "null" {
		if len(bearer) >= 8 && strings.ToLower(bearer[:7]) == "bearer " {
			return bearer[7:]
		}
		return bearer
	}
	if cookie, _ := r.Cookie(CookieName); cookie != nil {
		return cookie.Value
	}
	return ""
}

// NewToken issues a signed token for subject with the given roles, valid for validFor
func NewToken(secret []byte, issuer, subject string, roles []string, validFor time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("secret is missing")
	}
	now := time.Now()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validFor)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
