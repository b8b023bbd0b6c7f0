package server

import (
	"compress/gzip"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davrock/davrock/auth"
	"github.com/davrock/davrock/config"
	"github.com/davrock/davrock/rights"
	"github.com/davrock/davrock/storage/memory"
	"github.com/davrock/davrock/web"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:             ":0",
			MaxContentLength: 1 << 20,
			RequestTimeout:   time.Second,
		},
		Auth:     config.AuthConfig{Type: "none", Realm: "test"},
		Rights:   config.RightsConfig{Type: "none"},
		Storage:  config.StorageConfig{Type: "memory"},
		Web:      config.WebConfig{Type: "internal"},
		Logging:  config.LoggingConfig{Level: "debug", Format: "text", MaskPasswords: true},
		Encoding: "utf-8",
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	authBackend, err := auth.New(cfg.Auth.Type, cfg.Auth.Users)
	require.NoError(t, err)
	rightsBackend, err := rights.New(cfg.Rights.Type)
	require.NoError(t, err)
	webBackend, err := web.New(cfg.Web.Type)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(os.Stdout,
		&slog.HandlerOptions{Level: slog.LevelWarn}))
	return New(cfg, memory.New(logger), authBackend, rightsBackend, webBackend, logger)
}

type testRequest struct {
	method  string
	path    string
	body    string
	user    string
	headers map[string]string
}

func do(app *Application, req testRequest) *httptest.ResponseRecorder {
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.user != "" {
		r.SetBasicAuth(req.user, "password")
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	app.ServeHTTP(w, r)
	return w
}

const testEventTemplate = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:%UID%\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240105T100000Z\r\n" +
	"DTEND:20240105T110000Z\r\n" +
	"SUMMARY:%SUMMARY%\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func eventBody(uid, summary string) string {
	body := strings.ReplaceAll(testEventTemplate, "%UID%", uid)
	return strings.ReplaceAll(body, "%SUMMARY%", summary)
}

// seedCalendar creates a tagged collection and one event in it.
func seedCalendar(t *testing.T, app *Application, user string) {
	t.Helper()
	w := do(app, testRequest{method: "MKCALENDAR", path: "/" + user + "/work/", user: user})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(app, testRequest{
		method: "PUT",
		path:   "/" + user + "/work/event1.ics",
		body:   eventBody("uid-1", "initial"),
		user:   user,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotEmpty(t, w.Header().Get("ETag"))
}

func TestOptions(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "OPTIONS", path: "/"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Allow"), "PROPFIND")
	assert.Contains(t, w.Header().Get("Allow"), "MKCALENDAR")
	assert.Contains(t, w.Header().Get("DAV"), "calendar-access")
	assert.Contains(t, w.Header().Get("DAV"), "addressbook")
}

func TestWellKnownNotFound(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "GET", path: "/.well-known/caldav"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRootRedirectsToWeb(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "GET", path: "/"})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, ".web", w.Header().Get("Location"))
}

func TestWebInterface(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "GET", path: "/.web"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
}

func TestUnsupportedMethod(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "PATCH", path: "/alice/"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestGetItemAndCollection(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")

	w := do(app, testRequest{method: "GET", path: "/alice/work/event1.ics"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.NotEmpty(t, w.Header().Get("Last-Modified"))
	assert.Contains(t, w.Body.String(), "UID:uid-1")

	w = do(app, testRequest{method: "GET", path: "/alice/work/"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachement")
	assert.Contains(t, w.Body.String(), "BEGIN:VEVENT")

	// Plain directories have no listing.
	w = do(app, testRequest{method: "GET", path: "/alice/"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Directory listings are not supported.")
}

func TestHeadHasNoBody(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")
	w := do(app, testRequest{method: "HEAD", path: "/alice/work/event1.ics"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestGetMissing(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "GET", path: "/alice/nothing.ics"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGzipResponse(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")
	w := do(app, testRequest{
		method:  "GET",
		path:    "/alice/work/event1.ics",
		headers: map[string]string{"Accept-Encoding": "gzip"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	decoded, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "UID:uid-1")
}

func TestDelete(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")

	// A stale ETag must not delete anything.
	w := do(app, testRequest{
		method:  "DELETE",
		path:    "/alice/work/event1.ics",
		headers: map[string]string{"If-Match": `"stale"`},
	})
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	w = do(app, testRequest{method: "GET", path: "/alice/work/event1.ics"})
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")

	w = do(app, testRequest{
		method:  "DELETE",
		path:    "/alice/work/event1.ics",
		headers: map[string]string{"If-Match": etag},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "HTTP/1.1 200")

	w = do(app, testRequest{method: "GET", path: "/alice/work/event1.ics"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Deleting a whole collection works too.
	w = do(app, testRequest{method: "DELETE", path: "/alice/work/"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(app, testRequest{method: "GET", path: "/alice/work/"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteMissing(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "DELETE", path: "/alice/nothing.ics"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMkcol(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "MKCOL", path: "/alice/"})
	require.Equal(t, http.StatusCreated, w.Code)

	// Creating it again is not allowed.
	w = do(app, testRequest{method: "MKCOL", path: "/alice/"})
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMkcalendarUnderTaggedParent(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")
	w := do(app, testRequest{method: "MKCALENDAR", path: "/alice/work/sub/"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMkcalendarExisting(t *testing.T) {
	app := newTestApp(t, testConfig())
	seedCalendar(t, app, "alice")
	w := do(app, testRequest{method: "MKCALENDAR", path: "/alice/work/"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "resource-must-be-null")
}

func TestMkcalendarMissingParent(t *testing.T) {
	app := newTestApp(t, testConfig())
	w := do(app, testRequest{method: "MKCALENDAR", path: "/alice/deep/cal/"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMaxContentLength(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxContentLength = 16
	app := newTestApp(t, cfg)
	w := do(app, testRequest{
		method: "PUT",
		path:   "/alice/work/event1.ics",
		body:   eventBody("uid-1", "way too large for the configured limit"),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
