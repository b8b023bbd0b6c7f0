// Package rights decides which permission letters a user holds on a
// path. Lowercase letters (r, w) apply to a resource itself, uppercase
// letters (R, W) apply to members governed by a parent collection.
package rights

import (
	"fmt"
	"strings"

	"github.com/davrock/davrock/storage"
)

// Rights is the authorization backend consumed by the protocol core.
type Rights interface {
	// Authorized returns the subset of the requested permission
	// letters granted to user on path. user is "" for anonymous.
	Authorized(user, path, permissions string) string
}

// Intersect returns the letters present in both permission sets.
func Intersect(granted, letters string) string {
	var b strings.Builder
	for _, l := range letters {
		if strings.ContainsRune(granted, l) {
			b.WriteRune(l)
		}
	}
	return b.String()
}

// New returns the built-in backend with the given name: "none" (grant
// everything to everyone), "authenticated", "owner_write" or
// "owner_only".
func New(name string) (Rights, error) {
	switch name {
	case "none":
		return allRights{}, nil
	case "authenticated":
		return authenticatedRights{}, nil
	case "owner_write":
		return ownerRights{writeOnly: true}, nil
	case "owner_only":
		return ownerRights{}, nil
	}
	return nil, fmt.Errorf("unknown rights backend %q", name)
}

// allRights grants every requested permission, including to anonymous
// users.
type allRights struct{}

func (allRights) Authorized(user, path, permissions string) string {
	return permissions
}

// authenticatedRights grants everything to any logged-in user.
type authenticatedRights struct{}

func (authenticatedRights) Authorized(user, path, permissions string) string {
	if user == "" {
		return ""
	}
	return permissions
}

// ownerRights restricts access to the user's own principal subtree.
// With writeOnly set, reading other users' collections stays allowed.
type ownerRights struct {
	writeOnly bool
}

func (o ownerRights) Authorized(user, path, permissions string) string {
	if user == "" {
		return ""
	}
	sanitized := storage.SanitizePath(path)
	if sanitized == "/" {
		// Everyone may traverse the root to reach their principal.
		return Intersect(permissions, "R")
	}
	owner := strings.SplitN(strings.Trim(sanitized, "/"), "/", 2)[0]
	if owner == user {
		return permissions
	}
	if o.writeOnly {
		return Intersect(permissions, "rR")
	}
	return ""
}
