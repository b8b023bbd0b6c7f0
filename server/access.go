package server

import (
	"strings"

	"github.com/davrock/davrock/internal/xmlutil"
	"github.com/davrock/davrock/rights"
	"github.com/davrock/davrock/storage"
)

// access reports whether user holds permission ("r" or "w") on path.
// With res unknown (nil) both interpretations are tried: the lowercase
// letter on the path itself and the uppercase letter on the path plus
// the lowercase letter on its parent. With res discovered the check
// narrows to the letters that actually apply to its kind.
func (a *Application) access(user, path, permission string, res storage.Resource) bool {
	var permissions, parentPermissions string
	switch r := res.(type) {
	case nil:
		permissions = permission + strings.ToUpper(permission)
		parentPermissions = permission
	case *storage.Collection:
		if r.Tag() != "" {
			permissions = permission
		} else {
			permissions = strings.ToUpper(permission)
		}
	case *storage.Item:
		parentPermissions = permission
	}
	if permissions != "" && a.rights.Authorized(user, path, permissions) != "" {
		return true
	}
	if parentPermissions != "" {
		parent := storage.ParentPath(path)
		if a.rights.Authorized(user, parent, parentPermissions) != "" {
			return true
		}
	}
	return false
}

// collectAllowedItems filters discovered resources down to those the
// user may see and annotates each with its effective permission.
func (a *Application) collectAllowedItems(resources []storage.Resource, user string) []xmlutil.AllowedItem {
	var allowed []xmlutil.AllowedItem
	for _, res := range resources {
		var permissions string
		switch r := res.(type) {
		case *storage.Collection:
			path := storage.SanitizePath("/" + r.Path + "/")
			if r.Tag() != "" {
				permissions = a.rights.Authorized(user, path, "rw")
			} else {
				permissions = a.rights.Authorized(user, path, "RW")
			}
		case *storage.Item:
			path := storage.SanitizePath("/" + r.Collection.Path + "/")
			permissions = a.rights.Authorized(user, path, "rw")
		}
		var permission string
		if rights.Intersect(permissions, "Ww") != "" {
			permission = "w"
		} else if rights.Intersect(permissions, "Rr") != "" {
			permission = "r"
		}
		if permission != "" {
			allowed = append(allowed, xmlutil.AllowedItem{
				Resource:   res,
				Permission: permission,
			})
		}
	}
	return allowed
}

// discoverOne resolves a path to the single resource at it, if any.
func (a *Application) discoverOne(path string) (storage.Resource, error) {
	resources, err := a.storage.Discover(path, "0")
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}
	return resources[0], nil
}
