package rights

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntersect(t *testing.T) {
	assert.Equal(t, "rw", Intersect("rwRW", "rw"))
	assert.Equal(t, "R", Intersect("R", "rR"))
	assert.Equal(t, "", Intersect("", "rw"))
	assert.Equal(t, "", Intersect("rw", ""))
}

func TestNewUnknownBackend(t *testing.T) {
	_, err := New("nope")
	assert.Error(t, err)
}

func TestAuthorized(t *testing.T) {
	tests := []struct {
		backend string
		user    string
		path    string
		ask     string
		want    string
	}{
		{"none", "", "/alice/work/", "rw", "rw"},
		{"none", "bob", "/alice/work/", "RW", "RW"},

		{"authenticated", "", "/alice/", "rw", ""},
		{"authenticated", "bob", "/alice/", "rw", "rw"},

		{"owner_only", "", "/alice/", "rw", ""},
		{"owner_only", "alice", "/alice/work/", "rwRW", "rwRW"},
		{"owner_only", "bob", "/alice/work/", "rw", ""},
		{"owner_only", "alice", "/", "rR", "R"},

		{"owner_write", "bob", "/alice/work/", "rwRW", "rR"},
		{"owner_write", "alice", "/alice/work/", "rwRW", "rwRW"},
		{"owner_write", "", "/alice/work/", "rw", ""},
	}
	for _, tt := range tests {
		backend, err := New(tt.backend)
		require.NoError(t, err)
		got := backend.Authorized(tt.user, tt.path, tt.ask)
		assert.Equal(t, tt.want, got,
			"%s: user=%q path=%q ask=%q", tt.backend, tt.user, tt.path, tt.ask)
	}
}
