// Package auth verifies credentials and turns them into an opaque user
// identity. The protocol core treats "" as the anonymous user.
package auth

import (
	"fmt"
	"net/http"
)

// Authenticator is the authentication backend consumed by the
// protocol core.
type Authenticator interface {
	// Login verifies credentials and returns the user identity, or
	// "" when verification fails.
	Login(login, password string) string

	// ExternalLogin extracts credentials established by the
	// transport (e.g. a reverse proxy), bypassing HTTP Basic. ok is
	// false when no external login mechanism applies.
	ExternalLogin(r *http.Request) (login, password string, ok bool)
}

// New returns the built-in backend with the given name: "none" (accept
// any login), "denyall", "static" (verify against the users map) or
// "remote_user" (trust the X-Remote-User header set by a proxy).
func New(name string, users map[string]string) (Authenticator, error) {
	switch name {
	case "none":
		return noneAuth{}, nil
	case "denyall":
		return denyAllAuth{}, nil
	case "static":
		return staticAuth{users: users}, nil
	case "remote_user":
		return remoteUserAuth{}, nil
	}
	return nil, fmt.Errorf("unknown auth backend %q", name)
}

// noneAuth accepts any non-empty login without checking the password.
type noneAuth struct{}

func (noneAuth) Login(login, password string) string { return login }

func (noneAuth) ExternalLogin(r *http.Request) (string, string, bool) {
	return "", "", false
}

// denyAllAuth rejects everyone.
type denyAllAuth struct{}

func (denyAllAuth) Login(login, password string) string { return "" }

func (denyAllAuth) ExternalLogin(r *http.Request) (string, string, bool) {
	return "", "", false
}

// staticAuth verifies against a configured login/password map.
type staticAuth struct {
	users map[string]string
}

func (a staticAuth) Login(login, password string) string {
	if expected, ok := a.users[login]; ok && expected == password {
		return login
	}
	return ""
}

func (staticAuth) ExternalLogin(r *http.Request) (string, string, bool) {
	return "", "", false
}

// remoteUserAuth trusts the identity established by a fronting proxy.
type remoteUserAuth struct{}

func (remoteUserAuth) Login(login, password string) string { return login }

func (remoteUserAuth) ExternalLogin(r *http.Request) (string, string, bool) {
	if user := r.Header.Get("X-Remote-User"); user != "" {
		return user, "", true
	}
	return "", "", false
}
