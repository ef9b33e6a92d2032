package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/noaodatalab/datalab-go/internal/gateway"
	"github.com/noaodatalab/datalab-go/internal/tokenfile"
)

// Sentinel errors for session operations.
var (
	// ErrCredential means login was attempted without a password and no
	// usable cached token exists for the user. Not retried; the caller
	// must supply a password.
	ErrCredential = errors.New("auth: no password supplied and no usable cached token")

	// ErrAuth means a privileged call was made with an invalid or
	// expired token. The caller must re-login.
	ErrAuth = errors.New("auth: invalid token")
)

// Session holds the active token and username for one authenticated
// Data Lab session. It is the only writer of the token; every other
// component merely attaches a copy to outgoing requests. Sessions are
// not safe for concurrent mutation, matching the strictly synchronous
// client model.
type Session struct {
	gw       *gateway.Client
	profile  string
	tokenDir string
	logger   *slog.Logger

	username string
	token    Token
}

// NewSession creates a session against the auth service behind gw.
// tokenDir is the directory holding per-user token files, normally
// ~/.datalab.
func NewSession(gw *gateway.Client, profile, tokenDir string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		gw:       gw,
		profile:  profile,
		tokenDir: tokenDir,
		logger:   logger,
	}
}

// Token returns the active session token, or "" when logged out.
func (s *Session) Token() Token {
	return s.token
}

// Username returns the logged-in account name, or "" when logged out.
func (s *Session) Username() string {
	return s.username
}

// Adopt sets the active token without any service call. Used when the
// CLI resolves a token from a flag or a cached file for a command that
// does not go through Login.
func (s *Session) Adopt(tok Token) {
	s.token = tok
	s.username = tok.User()
}

// Login authenticates username and returns the session token.
//
// Well-known accounts (anonymous, dldemo, dltest) short-circuit to their
// fixed tokens. With an empty password, a previously cached token for
// the user is reused if it still validates; otherwise the stale file is
// removed and ErrCredential is returned. With a password, the login
// endpoint is called and the returned token is cached, overwriting any
// prior token for that user.
func (s *Session) Login(ctx context.Context, username, password string) (Token, error) {
	if tok, ok := WellKnownFor(username); ok {
		s.username = username
		s.token = tok

		return tok, nil
	}

	if password == "" {
		return s.loginCached(ctx, username)
	}

	q := url.Values{}
	q.Set("username", username)
	q.Set("password", password)
	q.Set("profile", s.profile)

	resp, err := s.gw.Get(ctx, "", "/login", q, nil)
	if err != nil {
		return "", fmt.Errorf("auth: login %s: %w", username, err)
	}

	tok := Token(resp.Text())

	if saveErr := tokenfile.Save(s.tokenDir, username, string(tok)); saveErr != nil {
		// A failed cache write does not invalidate the login itself.
		s.logger.Warn("could not cache token", slog.String("user", username), slog.String("error", saveErr.Error()))
	}

	s.username = username
	s.token = tok

	s.logger.Info("login successful", slog.String("user", username))

	return tok, nil
}

// loginCached attempts passwordless login from the on-disk token cache.
func (s *Session) loginCached(ctx context.Context, username string) (Token, error) {
	cached, err := tokenfile.Load(s.tokenDir, username)
	if err != nil {
		return "", fmt.Errorf("auth: login %s: %w", username, err)
	}

	if cached != "" && strings.HasPrefix(cached, username+".") && s.IsValidToken(ctx, Token(cached)) {
		s.username = username
		s.token = Token(cached)

		s.logger.Debug("reusing cached token", slog.String("user", username))

		return s.token, nil
	}

	if cached != "" {
		// Stale or foreign token; clear it so the next login starts clean.
		if rmErr := tokenfile.Remove(s.tokenDir, username); rmErr != nil {
			s.logger.Warn("could not remove stale token file", slog.String("error", rmErr.Error()))
		}
	}

	return "", fmt.Errorf("auth: login %s: %w", username, ErrCredential)
}

// Logout invalidates token with the auth service, removes the cached
// token file, and clears the active session fields. The token must pass
// validation first; logging out with a garbage token is ErrAuth.
func (s *Session) Logout(ctx context.Context, token Token) error {
	if !s.IsValidToken(ctx, token) {
		return fmt.Errorf("auth: logout: %w", ErrAuth)
	}

	q := url.Values{}
	q.Set("token", string(token))

	if _, err := s.gw.Get(ctx, string(token), "/logout", q, nil); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}

	if err := tokenfile.Remove(s.tokenDir, token.User()); err != nil {
		return fmt.Errorf("auth: logout: %w", err)
	}

	s.token = ""
	s.username = ""

	s.logger.Info("logout successful")

	return nil
}

// IsValidToken checks token structurally and, for all but the fixed
// well-known tokens, with a validation round trip. Malformed tokens
// never reach the network.
func (s *Session) IsValidToken(ctx context.Context, token Token) bool {
	if !token.Valid() {
		return false
	}

	if token.IsWellKnown() {
		// Explicit bypass for the fixed tokens, not a cache: the server
		// enforces their limited access on every call anyway.
		return true
	}

	q := url.Values{}
	q.Set("token", string(token))
	q.Set("profile", s.profile)

	resp, err := s.gw.Get(ctx, string(token), "/isValidToken", q, nil)
	if err != nil {
		s.logger.Debug("token validation call failed", slog.String("error", err.Error()))
		return false
	}

	return strings.EqualFold(resp.Text(), "true")
}
