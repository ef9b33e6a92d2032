// Package auth owns the Data Lab session token: login and logout against
// the authentication service, token validation, and per-user token
// caching on disk.
package auth

import "strings"

// Token is an opaque credential of the form user.uid.gid.hash. The hash
// segment may itself contain dots, so splitting stops after the third
// separator and the remainder is kept whole.
type Token string

// Fixed tokens that grant limited access to Data Lab services. Access for
// these identities is controlled server-side, so they are accepted on
// structure alone without a validation round trip.
const (
	AnonToken Token = "anonymous.0.0.anon_access"
	DemoToken Token = "dldemo.99999.99999.demo_access"
	TestToken Token = "dltest.99998.99998.test_access"
)

var wellKnownUsers = map[string]Token{
	"anonymous": AnonToken,
	"dldemo":    DemoToken,
	"dltest":    TestToken,
}

// WellKnownFor returns the fixed token for a well-known account name.
func WellKnownFor(username string) (Token, bool) {
	tok, ok := wellKnownUsers[username]
	return tok, ok
}

// Valid reports whether the token is structurally well formed: at least
// four dot-separated segments with a non-empty user segment.
func (t Token) Valid() bool {
	parts := strings.SplitN(strings.TrimSpace(string(t)), ".", 4)
	return len(parts) == 4 && parts[0] != ""
}

// User returns the account name segment, or "" for a malformed token.
func (t Token) User() string {
	if !t.Valid() {
		return ""
	}

	user, _, _ := strings.Cut(strings.TrimSpace(string(t)), ".")

	return user
}

// IsWellKnown reports whether t is one of the fixed anonymous/demo/test
// tokens. Only an exact match counts; a forged token for a well-known
// user still goes through remote validation.
func (t Token) IsWellKnown() bool {
	registered, ok := wellKnownUsers[t.User()]
	return ok && registered == Token(strings.TrimSpace(string(t)))
}
