package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoneAcceptsAnyLogin(t *testing.T) {
	backend, err := New("none", nil)
	require.NoError(t, err)
	assert.Equal(t, "alice", backend.Login("alice", "whatever"))
	assert.Equal(t, "", backend.Login("", ""))
}

func TestDenyAll(t *testing.T) {
	backend, err := New("denyall", nil)
	require.NoError(t, err)
	assert.Equal(t, "", backend.Login("alice", "secret"))
}

func TestStatic(t *testing.T) {
	backend, err := New("static", map[string]string{"alice": "secret"})
	require.NoError(t, err)
	assert.Equal(t, "alice", backend.Login("alice", "secret"))
	assert.Equal(t, "", backend.Login("alice", "wrong"))
	assert.Equal(t, "", backend.Login("bob", "secret"))
}

func TestRemoteUser(t *testing.T) {
	backend, err := New("remote_user", nil)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	_, _, ok := backend.ExternalLogin(r)
	assert.False(t, ok)

	r.Header.Set("X-Remote-User", "alice")
	login, _, ok := backend.ExternalLogin(r)
	require.True(t, ok)
	assert.Equal(t, "alice", login)
}

func TestUnknownBackend(t *testing.T) {
	_, err := New("ldap", nil)
	assert.Error(t, err)
}
