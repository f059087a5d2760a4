// Package auth resolves one of three credential kinds carried by an inbound
// HTTP request — bearer token, session cookie, or share token — into an
// internal AuthContext.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gratheon/graphql-gateway/internal/apierr"
	"github.com/gratheon/graphql-gateway/internal/identity"
	"github.com/gratheon/graphql-gateway/internal/scope"
)

type kind int

const (
	kindAnonymous kind = iota
	kindIdentified
	kindShared
	kindFailed
)

// Context is a tagged-variant AuthContext: exactly one of Anonymous,
// Identified(userId), Shared(userId, scopes), or Failed(errorKind) — never
// a struct of independently-settable optional fields.
type Context struct {
	kind   kind
	userID string
	scopes scope.Set
	err    *apierr.Error
}

// Anonymous is the empty context: no credential was presented.
func Anonymous() Context { return Context{kind: kindAnonymous} }

// Identified carries a resolved user identity with no scope restriction
// (bearer token or session cookie).
func Identified(userID string) Context { return Context{kind: kindIdentified, userID: userID} }

// Shared carries a resolved user identity restricted to scopes (share
// token).
func Shared(userID string, scopes scope.Set) Context {
	return Context{kind: kindShared, userID: userID, scopes: scopes}
}

// Failed carries a credential-resolution error; the formatter maps it to
// an HTTP response without consulting any lower-priority credential.
func Failed(err *apierr.Error) Context { return Context{kind: kindFailed, err: err} }

// UserID returns the resolved identity, if any.
func (c Context) UserID() (string, bool) {
	if c.kind == kindIdentified || c.kind == kindShared {
		return c.userID, true
	}
	return "", false
}

// ShareScopes returns the share-token allow-list, if this context came from
// a share token.
func (c Context) ShareScopes() (scope.Set, bool) {
	if c.kind == kindShared {
		return c.scopes, true
	}
	return scope.Set{}, false
}

// Err returns the resolution error, if credential validation failed.
func (c Context) Err() (*apierr.Error, bool) {
	if c.kind == kindFailed {
		return c.err, true
	}
	return nil, false
}

// IsAnonymous reports whether no credential was presented.
func (c Context) IsAnonymous() bool { return c.kind == kindAnonymous }

// Pipeline resolves request credentials in strict priority order: bearer,
// then session, then share token, then anonymous.
type Pipeline struct {
	identity      *identity.Client
	sessionSecret []byte
	sessionCookie string
	sessionHeader string
	shareTokenHdr string
}

// New builds a Pipeline. sessionSecret verifies the session JWT's HMAC
// signature (the configured privateKey).
func New(identityClient *identity.Client, sessionSecret string) *Pipeline {
	return &Pipeline{
		identity:      identityClient,
		sessionSecret: []byte(sessionSecret),
		sessionCookie: "gratheon_session",
		sessionHeader: "token",
		shareTokenHdr: "X-Share-Token",
	}
}

// Resolve inspects r's credentials in priority order and returns the
// resulting AuthContext. It never attempts a lower-priority credential
// once a higher-priority one is present, even if that credential fails
// validation — an invalid bearer token fails the request outright rather
// than falling back to a session cookie or share token.
func (p *Pipeline) Resolve(r *http.Request) Context {
	ctx := r.Context()

	if bearer, ok := bearerToken(r); ok {
		return p.resolveBearer(ctx, bearer)
	}

	if session, ok := sessionToken(r, p.sessionCookie, p.sessionHeader); ok {
		return p.resolveSession(session)
	}

	if share, ok := headerToken(r, p.shareTokenHdr); ok {
		return p.resolveShareToken(ctx, share)
	}

	return Anonymous()
}

func (p *Pipeline) resolveBearer(ctx context.Context, token string) Context {
	user, ok, err := p.identity.ValidateApiToken(ctx, token)
	if err != nil {
		return Failed(apierr.Wrap(apierr.KindInternal, "identity service error validating bearer token", err))
	}
	if !ok {
		return Failed(apierr.New(apierr.KindUnauthenticated, "invalid bearer token"))
	}
	return Identified(user.ID)
}

func (p *Pipeline) resolveSession(token string) Context {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return p.sessionSecret, nil
	})
	if err != nil {
		return Failed(apierr.Wrap(apierr.KindUnauthenticated, "invalid session token", err))
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return Failed(apierr.New(apierr.KindUnauthenticated, "session token missing user_id"))
	}

	return Identified(userID)
}

func (p *Pipeline) resolveShareToken(ctx context.Context, token string) Context {
	details, ok, err := p.identity.ValidateShareToken(ctx, token)
	if err != nil {
		return Failed(apierr.Wrap(apierr.KindInternal, "identity service error validating share token", err))
	}
	if !ok {
		return Failed(apierr.New(apierr.KindUnauthenticated, "invalid share token"))
	}

	entries := make([]scope.Entry, 0, len(details.Scopes))
	for _, s := range details.Scopes {
		entries = append(entries, scope.Entry{QueryName: s.QueryName, RequiredArgs: s.RequiredArgs})
	}

	return Shared(details.UserID, scope.Set{AllowedQueries: entries})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func sessionToken(r *http.Request, cookieName, headerName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	if h := r.Header.Get(headerName); h != "" {
		return h, true
	}
	return "", false
}

func headerToken(r *http.Request, headerName string) (string, bool) {
	h := r.Header.Get(headerName)
	if h == "" {
		return "", false
	}
	return h, true
}
