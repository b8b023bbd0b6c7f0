package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnonymousDeniedGets401Challenge(t *testing.T) {
	cfg := testConfig()
	cfg.Rights.Type = "owner_only"
	app := newTestApp(t, cfg)

	w := do(app, testRequest{method: "PROPFIND", path: "/alice/"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), `Basic realm="test"`)
}

func TestAuthenticatedDeniedStays403(t *testing.T) {
	cfg := testConfig()
	cfg.Rights.Type = "owner_only"
	app := newTestApp(t, cfg)
	seedCalendar(t, app, "alice")

	w := do(app, testRequest{method: "PROPFIND", path: "/alice/work/", user: "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("WWW-Authenticate"))
}

func TestOwnerOnlyIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Rights.Type = "owner_only"
	app := newTestApp(t, cfg)
	seedCalendar(t, app, "alice")

	// The owner reads their own collection.
	w := do(app, testRequest{method: "GET", path: "/alice/work/", user: "alice"})
	assert.Equal(t, http.StatusOK, w.Code)

	// Another user cannot, not even read.
	w = do(app, testRequest{method: "GET", path: "/alice/work/", user: "bob"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOwnerWriteAllowsForeignReads(t *testing.T) {
	cfg := testConfig()
	cfg.Rights.Type = "owner_write"
	app := newTestApp(t, cfg)
	seedCalendar(t, app, "alice")

	w := do(app, testRequest{method: "GET", path: "/alice/work/", user: "bob"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(app, testRequest{
		method: "PUT",
		path:   "/alice/work/intruder.ics",
		body:   eventBody("uid-x", "not yours"),
		user:   "bob",
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnauthenticatedAccessWithOpenRights(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")
	w := do(app, testRequest{method: "GET", path: "/alice/work/"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/calendar")
}

func TestFailedLoginDelays(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Type = "static"
	cfg.Auth.Users = map[string]string{"alice": "secret"}
	cfg.Auth.Delay = 0.2
	app := newTestApp(t, cfg)

	begin := time.Now()
	w := do(app, testRequest{method: "PROPFIND", path: "/alice/", user: "alice"})
	elapsed := time.Since(begin)

	// do() sends the wrong password, so the attempt fails, is delayed
	// at least delay/2 and ends in an authentication challenge.
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestUnsafeUsernameRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Rights.Type = "owner_only"
	app := newTestApp(t, cfg)

	r := do(app, testRequest{method: "PROPFIND", path: "/alice/", user: "alice/../bob"})
	// The unsafe name is treated as anonymous and challenged.
	assert.Equal(t, http.StatusUnauthorized, r.Code)
}

func TestPrincipalCollectionBootstrap(t *testing.T) {
	cfg := testConfig()
	cfg.Rights.Type = "owner_only"
	app := newTestApp(t, cfg)

	// The first authenticated request creates the principal
	// collection on the fly.
	w := do(app, testRequest{method: "PROPFIND", path: "/alice/", user: "alice"})
	require.Equal(t, http.StatusMultiStatus, w.Code)
	assert.Contains(t, w.Body.String(), "<D:href>/alice/</D:href>")
}
