package server

import (
	"net/http"

	"github.com/davrock/davrock/internal/xmlutil"
	"github.com/davrock/davrock/rights"
	"github.com/davrock/davrock/storage"
)

func (a *Application) doMkcol(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	permissions := a.rights.Authorized(user, reqPath, "Ww")
	if permissions == "" {
		return notAllowed()
	}
	doc, err := a.readXMLContent(w, r)
	if err != nil {
		return a.badRequestOrTimeout("MKCOL", reqPath, err)
	}
	// Prepare before locking.
	props := xmlutil.PropsFromRequest(doc)
	if err := storage.CheckAndSanitizeProps(props); err != nil {
		a.logger.Warn("bad MKCOL request", "path", reqPath, "error", err)
		return badRequest()
	}
	tagged := props[storage.MetaTag] != ""
	if tagged && rights.Intersect(permissions, "w") == "" ||
		!tagged && rights.Intersect(permissions, "W") == "" {
		return notAllowed()
	}

	release, err := a.storage.AcquireLock(storage.LockWrite, user)
	if err != nil {
		a.logger.Error("failed to lock storage", "error", err)
		return internalServerError()
	}
	defer release()
	if resp, ok := a.checkCollectionTarget(reqPath); !ok {
		return resp
	}
	if _, err := a.storage.CreateCollection(reqPath, nil, props); err != nil {
		a.logger.Warn("bad MKCOL request", "path", reqPath, "error", err)
		return badRequest()
	}
	return response{status: http.StatusCreated}
}

func (a *Application) doMkcalendar(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	if a.rights.Authorized(user, reqPath, "w") == "" {
		return notAllowed()
	}
	doc, err := a.readXMLContent(w, r)
	if err != nil {
		return a.badRequestOrTimeout("MKCALENDAR", reqPath, err)
	}
	// Prepare before locking.
	props := xmlutil.PropsFromRequest(doc)
	props[storage.MetaTag] = storage.TagCalendar
	if err := storage.CheckAndSanitizeProps(props); err != nil {
		a.logger.Warn("bad MKCALENDAR request", "path", reqPath, "error", err)
		return badRequest()
	}

	release, err := a.storage.AcquireLock(storage.LockWrite, user)
	if err != nil {
		a.logger.Error("failed to lock storage", "error", err)
		return internalServerError()
	}
	defer release()
	existing, err := a.discoverOne(reqPath)
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	if existing != nil {
		return a.webdavErrorResponse("D", "resource-must-be-null")
	}
	if resp, ok := a.checkParentTarget(reqPath); !ok {
		return resp
	}
	if _, err := a.storage.CreateCollection(reqPath, nil, props); err != nil {
		a.logger.Warn("bad MKCALENDAR request", "path", reqPath, "error", err)
		return badRequest()
	}
	return response{status: http.StatusCreated}
}

// checkCollectionTarget verifies that reqPath does not exist yet and
// that its parent is a plain directory.
func (a *Application) checkCollectionTarget(reqPath string) (response, bool) {
	existing, err := a.discoverOne(reqPath)
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError(), false
	}
	if existing != nil {
		return methodNotAllowed(), false
	}
	return a.checkParentTarget(reqPath)
}

// checkParentTarget verifies that the parent of reqPath is an existing
// untagged collection new collections may be created in.
func (a *Application) checkParentTarget(reqPath string) (response, bool) {
	parent, err := a.discoverOne(storage.ParentPath(reqPath))
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError(), false
	}
	if parent == nil {
		return conflict(), false
	}
	col, ok := parent.(*storage.Collection)
	if !ok || col.Tag() != "" {
		return forbidden(), false
	}
	return response{}, true
}
