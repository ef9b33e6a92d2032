package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noaodatalab/datalab-go/internal/gateway"
	"github.com/noaodatalab/datalab-go/internal/tokenfile"
)

const aliceToken = "alice.100.100.deadbeef"

func newTestSession(t *testing.T, handler http.HandlerFunc) (*Session, *httptest.Server, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	gw := gateway.NewClient(srv.URL, srv.Client(), nil)

	return NewSession(gw, "default", dir, nil), srv, dir
}

func TestLoginWithPassword(t *testing.T) {
	var gotUser, gotPass, gotProfile string

	sess, _, dir := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		gotUser = r.URL.Query().Get("username")
		gotPass = r.URL.Query().Get("password")
		gotProfile = r.URL.Query().Get("profile")

		fmt.Fprint(w, aliceToken)
	})

	tok, err := sess.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)

	assert.Equal(t, Token(aliceToken), tok)
	assert.Equal(t, "alice", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "default", gotProfile)

	assert.Equal(t, Token(aliceToken), sess.Token())
	assert.Equal(t, "alice", sess.Username())

	// Token is cached on disk for passwordless reuse.
	cached, err := tokenfile.Load(dir, "alice")
	require.NoError(t, err)
	assert.Equal(t, aliceToken, cached)
}

func TestLoginBadCredentials(t *testing.T) {
	sess, _, _ := newTestSession(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Error: Invalid password", http.StatusUnauthorized)
	})

	_, err := sess.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, gateway.IsStatus(err, http.StatusUnauthorized))
	assert.Empty(t, sess.Token())
}

func TestLoginWellKnownShortCircuits(t *testing.T) {
	// Any service call would fail the test.
	sess, _, _ := newTestSession(t, func(_ http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	tok, err := sess.Login(context.Background(), "anonymous", "")
	require.NoError(t, err)
	assert.Equal(t, AnonToken, tok)
	assert.Equal(t, "anonymous", sess.Username())
}

func TestLoginCachedTokenReuse(t *testing.T) {
	var validated bool

	sess, _, dir := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/isValidToken", r.URL.Path)
		validated = true

		fmt.Fprint(w, "True")
	})

	require.NoError(t, tokenfile.Save(dir, "alice", aliceToken))

	tok, err := sess.Login(context.Background(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, Token(aliceToken), tok)
	assert.True(t, validated)
}

func TestLoginNoPasswordNoCache(t *testing.T) {
	sess, _, _ := newTestSession(t, func(_ http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	_, err := sess.Login(context.Background(), "alice", "")
	require.ErrorIs(t, err, ErrCredential)
}

func TestLoginStaleCachedTokenRemoved(t *testing.T) {
	sess, _, dir := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/isValidToken", r.URL.Path)
		fmt.Fprint(w, "False")
	})

	require.NoError(t, tokenfile.Save(dir, "alice", aliceToken))

	_, err := sess.Login(context.Background(), "alice", "")
	require.ErrorIs(t, err, ErrCredential)

	_, statErr := os.Stat(tokenfile.Path(dir, "alice"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoginForeignCachedTokenRejected(t *testing.T) {
	// A cached token belonging to a different user never validates.
	sess, _, dir := newTestSession(t, func(_ http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	require.NoError(t, tokenfile.Save(dir, "alice", "bob.200.200.cafef00d"))

	_, err := sess.Login(context.Background(), "alice", "")
	require.ErrorIs(t, err, ErrCredential)
}

func TestLogout(t *testing.T) {
	var loggedOut bool

	sess, _, dir := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/isValidToken":
			fmt.Fprint(w, "True")
		case "/logout":
			loggedOut = true
			fmt.Fprint(w, "OK")
		default:
			t.Fatalf("unexpected request to %s", r.URL.Path)
		}
	})

	require.NoError(t, tokenfile.Save(dir, "alice", aliceToken))
	sess.Adopt(Token(aliceToken))

	err := sess.Logout(context.Background(), Token(aliceToken))
	require.NoError(t, err)

	assert.True(t, loggedOut)
	assert.Empty(t, sess.Token())
	assert.Empty(t, sess.Username())

	_, statErr := os.Stat(tokenfile.Path(dir, "alice"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLogoutMalformedToken(t *testing.T) {
	// Structural rejection happens before any service call.
	sess, _, _ := newTestSession(t, func(_ http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request to %s", r.URL.Path)
	})

	err := sess.Logout(context.Background(), "garbage")
	require.ErrorIs(t, err, ErrAuth)
}

func TestIsValidToken(t *testing.T) {
	sess, _, _ := newTestSession(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == aliceToken {
			fmt.Fprint(w, "True")
			return
		}

		fmt.Fprint(w, "False")
	})

	ctx := context.Background()

	assert.True(t, sess.IsValidToken(ctx, Token(aliceToken)))
	assert.False(t, sess.IsValidToken(ctx, "bob.200.200.cafef00d"))

	// Malformed tokens fail structurally, well-known ones bypass the call.
	assert.False(t, sess.IsValidToken(ctx, "garbage"))
	assert.True(t, sess.IsValidToken(ctx, AnonToken))
}

func TestIsValidTokenServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close()

	gw := gateway.NewClient(srv.URL, http.DefaultClient, nil)
	sess := NewSession(gw, "default", t.TempDir(), nil)

	assert.False(t, sess.IsValidToken(context.Background(), Token(aliceToken)))
}

func TestAdopt(t *testing.T) {
	sess := NewSession(nil, "default", t.TempDir(), nil)
	sess.Adopt(Token(aliceToken))

	assert.Equal(t, Token(aliceToken), sess.Token())
	assert.Equal(t, "alice", sess.Username())
}
