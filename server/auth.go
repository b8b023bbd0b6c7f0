package server

import (
	"encoding/base64"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/davrock/davrock/storage"
)

// credentials extracts login and password from the request, preferring
// an external login mechanism (e.g. a trusted proxy header) over HTTP
// Basic.
func (a *Application) credentials(r *http.Request) (login, password string, external bool) {
	if login, password, ok := a.auth.ExternalLogin(r); ok {
		return login, password, true
	}
	authorization := r.Header.Get("Authorization")
	if !strings.HasPrefix(authorization, "Basic") {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(
		strings.TrimSpace(strings.TrimPrefix(authorization, "Basic")))
	if err != nil {
		a.logger.Warn("invalid authorization header", "error", err)
		return "", "", false
	}
	decoded, err := a.decode(r, raw)
	if err != nil {
		a.logger.Warn("invalid authorization header", "error", err)
		return "", "", false
	}
	login, password, _ = strings.Cut(decoded, ":")
	return login, password, false
}

// login verifies credentials against the authentication backend. A
// failed attempt sleeps a randomized delay to blunt timing oracles and
// brute forcing.
func (a *Application) login(login, password string) string {
	if login == "" {
		return ""
	}
	user := a.auth.Login(login, password)
	switch {
	case user == login:
		a.logger.Info("successful login", "user", user)
	case user != "":
		a.logger.Info("successful login", "login", login, "user", user)
	default:
		a.logger.Info("failed login attempt", "login", login)
		if a.authDelay > 0 {
			delay := time.Duration(float64(a.authDelay) * (0.5 + rand.Float64()))
			a.logger.Debug("sleeping after failed login", "delay", delay)
			time.Sleep(delay)
		}
	}
	return user
}

// bootstrapPrincipal makes sure the user's principal collection exists.
// Returns "" when the collection is needed but cannot be created.
func (a *Application) bootstrapPrincipal(user string) string {
	principalPath := "/" + user + "/"
	if a.rights.Authorized(user, principalPath, "W") == "" {
		a.logger.Warn("access to principal path denied by rights backend",
			"path", principalPath)
		return user
	}
	exists, err := a.principalExists(principalPath, user)
	if err != nil {
		a.logger.Warn("failed to check principal collection",
			"user", user, "error", err)
		return ""
	}
	if exists {
		return user
	}
	release, err := a.storage.AcquireLock(storage.LockWrite, user)
	if err != nil {
		a.logger.Warn("failed to lock storage", "error", err)
		return ""
	}
	defer release()
	if _, err := a.storage.CreateCollection(principalPath, nil, nil); err != nil {
		a.logger.Warn("failed to create principal collection",
			"user", user, "error", err)
		return ""
	}
	return user
}

func (a *Application) principalExists(principalPath, user string) (bool, error) {
	release, err := a.storage.AcquireLock(storage.LockRead, user)
	if err != nil {
		return false, err
	}
	defer release()
	resources, err := a.storage.Discover(principalPath, "1")
	if err != nil {
		return false, err
	}
	return len(resources) > 0, nil
}
