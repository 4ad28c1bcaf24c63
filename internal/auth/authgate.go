package auth

import (
	"encoding/base64"
	"net"
	"net/http"
	"strings"

	"github.com/carbonlabs/carbon/internal/apperr"
)

// DefaultSessionTTLMs is the lifetime of a freshly created session; the
// login response reports it as expires_in seconds.
const DefaultSessionTTLMs = 3600 * 1000

// AuthResult is what a successful AuthGate.Authenticate call produces: the
// authenticated principal, plus (for the Basic-Auth path) the session
// token and whether it was reused, for the X-Session-Token and
// X-Session-Reused response headers.
type AuthResult struct {
	User     User
	Token    string
	Reused   bool
	NewLogin bool
	// Basic is true when this result came from the Basic-Auth path, the
	// only path that attaches the X-Session-Token and X-Session-Reused
	// response headers.
	Basic bool
}

// AuthGate resolves a request's Authorization header to a User: the
// Bearer-token fast path and the Basic-Auth slow path (password
// verification + session reuse), plus post-authentication permission
// checks against the union of the caller's roles' permissions.
type AuthGate struct {
	sessions     *SessionStore
	users        *UserStore
	roles        *RoleStore
	logins       *LoginLimiter
	sessionTTLMs int64
}

// NewAuthGate wires SessionStore, UserStore, and RoleStore together behind
// one authentication entry point. logins may be nil to disable login
// throttling.
func NewAuthGate(sessions *SessionStore, users *UserStore, roles *RoleStore, logins *LoginLimiter) *AuthGate {
	return &AuthGate{
		sessions:     sessions,
		users:        users,
		roles:        roles,
		logins:       logins,
		sessionTTLMs: DefaultSessionTTLMs,
	}
}

// Authenticate parses r's Authorization header and resolves it to a User:
//
//  1. Bearer <token>: SessionStore.Get; failure -> ErrInvalidCredentials.
//  2. Basic base64(user:pass): fast path via GetExistingFor (session
//     reuse), else slow path verifying the Argon2 hash and creating a new
//     session.
func (g *AuthGate) Authenticate(r *http.Request) (AuthResult, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}

	if token, ok := strings.CutPrefix(authz, "Bearer "); ok {
		return g.authenticateBearer(token)
	}
	if encoded, ok := strings.CutPrefix(authz, "Basic "); ok {
		return g.authenticateBasic(r, encoded)
	}
	return AuthResult{}, apperr.ErrInvalidCredentials
}

func (g *AuthGate) authenticateBearer(token string) (AuthResult, error) {
	sessUser, err := g.sessions.Get(token)
	if err != nil {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	full, err := g.users.GetByUsername(sessUser.Username)
	if err != nil {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	return AuthResult{User: full, Token: token, Reused: true}, nil
}

func (g *AuthGate) authenticateBasic(r *http.Request, encoded string) (AuthResult, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}

	// Fast path: reuse an existing valid session, avoiding the ~100ms
	// Argon2 verification.
	if sess := g.sessions.GetExistingFor(username); sess != nil {
		full, err := g.users.GetByUsername(username)
		if err != nil {
			return AuthResult{}, apperr.ErrInvalidCredentials
		}
		return AuthResult{User: full, Token: sess.Token, Reused: true, Basic: true}, nil
	}

	clientIP := ClientIP(r)
	if g.logins != nil && !g.logins.Allow(clientIP) {
		return AuthResult{}, apperr.ErrRateLimited
	}

	full, err := g.users.GetByUsername(username)
	if err != nil {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	if !VerifyPassword(password, full.PasswordHash) {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}

	sess, err := g.sessions.Create(username, g.sessionTTLMs, clientIP)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{User: full, Token: sess.Token, Reused: false, NewLogin: true, Basic: true}, nil
}

// Login verifies the password unconditionally, for POST /auth/login: a
// caller asking to log in expects a session either way, but still gets
// the existing one back if it is live.
func (g *AuthGate) Login(username, password, clientIP string) (*Session, error) {
	if g.logins != nil && !g.logins.Allow(clientIP) {
		return nil, apperr.ErrRateLimited
	}
	full, err := g.users.GetByUsername(username)
	if err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if !VerifyPassword(password, full.PasswordHash) {
		return nil, apperr.ErrInvalidCredentials
	}
	return g.sessions.GetOrCreateFor(username, g.sessionTTLMs, clientIP)
}

// Logout destroys the session named by token.
func (g *AuthGate) Logout(token string) bool {
	return g.sessions.Delete(token)
}

// Authorize reports whether the union of user's roles' permissions grants
// perm.
func (g *AuthGate) Authorize(user User, perm Permission) bool {
	perms := g.roles.PermissionsFor(user.Roles)
	_, ok := perms[perm]
	return ok
}

// ClientIP resolves the caller's address: the first X-Forwarded-For entry,
// else X-Real-IP, else the TCP peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
