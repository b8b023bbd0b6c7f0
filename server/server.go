// Package server implements the WebDAV/CalDAV/CardDAV protocol engine:
// method dispatch, authentication, access control, conditional
// requests, locking around discover-then-mutate sequences and response
// finalization. Storage, rights, authentication, and the web UI are
// consumed through their interface packages.
package server

import (
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/davrock/davrock/auth"
	"github.com/davrock/davrock/config"
	"github.com/davrock/davrock/rights"
	"github.com/davrock/davrock/storage"
	"github.com/davrock/davrock/web"
)

// davCapabilities advertises the compliance classes of the server.
const davCapabilities = "1, 2, 3, calendar-access, addressbook, extended-mkcol"

type handlerFunc func(w http.ResponseWriter, r *http.Request, base, path, user string) response

// Application is the explicit per-process context of the protocol
// engine. It is constructed once at startup and handles requests
// concurrently.
type Application struct {
	storage      storage.Storage
	auth         auth.Authenticator
	rights       rights.Rights
	web          web.Web
	logger       *slog.Logger
	encoding     string
	realm        string
	authDelay    time.Duration
	maxContent   int64
	bodyTimeout  time.Duration
	basePrefix   string
	extraHeaders map[string]string
	maskSecrets  bool

	handlers map[string]handlerFunc
	methods  []string
}

// New wires an Application from its collaborators. cfg must already be
// validated.
func New(cfg *config.Config, st storage.Storage, authBackend auth.Authenticator,
	rightsBackend rights.Rights, webBackend web.Web, logger *slog.Logger) *Application {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Application{
		storage:      st,
		auth:         authBackend,
		rights:       rightsBackend,
		web:          webBackend,
		logger:       logger,
		encoding:     cfg.Encoding,
		realm:        cfg.Auth.Realm,
		authDelay:    time.Duration(cfg.Auth.Delay * float64(time.Second)),
		maxContent:   cfg.Server.MaxContentLength,
		bodyTimeout:  cfg.Server.RequestTimeout,
		basePrefix:   strings.TrimSuffix(storage.SanitizePath(cfg.Server.BasePrefix), "/"),
		extraHeaders: cfg.Headers,
		maskSecrets:  cfg.Logging.MaskPasswords,
	}
	a.handlers = map[string]handlerFunc{
		"DELETE":     a.doDelete,
		"GET":        a.doGet,
		"HEAD":       a.doHead,
		"MKCALENDAR": a.doMkcalendar,
		"MKCOL":      a.doMkcol,
		"MOVE":       a.doMove,
		"OPTIONS":    a.doOptions,
		"PROPFIND":   a.doPropfind,
		"PROPPATCH":  a.doProppatch,
		"PUT":        a.doPut,
		"REPORT":     a.doReport,
	}
	for method := range a.handlers {
		a.methods = append(a.methods, method)
	}
	sort.Strings(a.methods)
	return a
}

// ServeHTTP implements http.Handler. Unexpected panics are contained
// here and answered with a generic internal error.
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	begin := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("exception during request",
				"method", r.Method, "path", r.URL.Path, "panic", rec)
			body := []byte(msgInternalServerError)
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(body)
		}
	}()
	resp := a.handleRequest(w, r)
	a.finalize(w, r, resp, begin)
}

func (a *Application) handleRequest(w http.ResponseWriter, r *http.Request) response {
	a.logger.Info("request received",
		"method", r.Method,
		"path", r.URL.Path,
		"depth", r.Header.Get("Depth"),
		"remote", remoteHost(r),
		"user_agent", r.Header.Get("User-Agent"))
	if a.logger.Enabled(r.Context(), slog.LevelDebug) {
		a.logger.Debug("request headers", "headers", a.headersLog(r))
	}

	// Let reverse proxies overwrite the base prefix. The client must
	// have removed it from the request path already.
	basePrefix := a.basePrefix
	if scriptName := r.Header.Get("X-Script-Name"); scriptName != "" {
		basePrefix = strings.TrimSuffix(storage.SanitizePath(scriptName), "/")
		a.logger.Debug("base prefix overwritten by client", "base_prefix", basePrefix)
	}
	path := storage.SanitizePath(r.URL.Path)

	handler, known := a.handlers[strings.ToUpper(r.Method)]
	if !known {
		a.logger.Warn("unsupported method", "method", r.Method)
		return methodNotAllowed()
	}

	// If "/.well-known" is not available, clients fall back to "/".
	if path == "/.well-known" || strings.HasPrefix(path, "/.well-known/") {
		return notFound()
	}

	login, password, external := a.credentials(r)
	user := a.login(login, password)

	if user != "" && !storage.IsSafePathComponent(user) {
		// Prevent usernames like "user/calendar.ics".
		a.logger.Info("refused unsafe username", "user", user)
		user = ""
	}
	if user != "" {
		user = a.bootstrapPrincipal(user)
	}

	if a.maxContent > 0 && r.ContentLength > a.maxContent {
		a.logger.Info("request body too large", "length", r.ContentLength)
		return entityTooLarge()
	}

	var resp response
	if login == "" || user != "" {
		resp = handler(w, r, basePrefix, path, user)
		if resp.isNotAllowed() {
			who := "anonymous user"
			if user != "" {
				who = user
			}
			a.logger.Info("access denied", "path", path, "user", who)
		}
	} else {
		resp = notAllowed()
	}

	if resp.isNotAllowed() && user == "" && !external {
		// Unknown or unauthorized user: ask for credentials.
		a.logger.Debug("asking client for authentication")
		resp.status = http.StatusUnauthorized
		headers := map[string]string{}
		for k, v := range resp.headers {
			headers[k] = v
		}
		headers["WWW-Authenticate"] = `Basic realm="` + a.realm + `"`
		resp.headers = headers
	}
	return resp
}

// encodeText converts a text body to the configured charset. Unknown
// or failing encodings fall back to the UTF-8 bytes.
func (a *Application) encodeText(s string) []byte {
	if strings.EqualFold(a.encoding, "utf-8") || strings.EqualFold(a.encoding, "utf8") {
		return []byte(s)
	}
	enc, err := htmlindex.Get(a.encoding)
	if err != nil {
		return []byte(s)
	}
	out, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return out
}

// headersLog renders request headers with credentials masked.
func (a *Application) headersLog(r *http.Request) map[string]string {
	out := map[string]string{}
	for key := range r.Header {
		value := r.Header.Get(key)
		if a.maskSecrets {
			if key == "Authorization" && strings.HasPrefix(value, "Basic") {
				value = "Basic **masked**"
			}
			if key == "Cookie" {
				value = "**masked**"
			}
		}
		out[key] = value
	}
	return out
}

// remoteHost prefers the forwarded-for chain set by proxies.
func remoteHost(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd + " (forwarded by " + r.RemoteAddr + ")"
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
