package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/davrock/davrock/storage"
)

func (a *Application) doMove(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	rawDest := r.Header.Get("Destination")
	toURL, err := url.Parse(rawDest)
	if err != nil || toURL.Host != r.Host {
		a.logger.Info("unsupported destination address", "destination", rawDest)
		return remoteDestination()
	}
	if !a.access(user, reqPath, "w", nil) {
		return notAllowed()
	}
	toPath := storage.SanitizePath(toURL.Path)
	if !strings.HasPrefix(toPath+"/", base+"/") {
		a.logger.Warn("destination does not start with base prefix",
			"destination", toPath, "path", reqPath)
		return notAllowed()
	}
	toPath = toPath[len(base):]
	if !a.access(user, toPath, "w", nil) {
		return notAllowed()
	}

	release, err := a.storage.AcquireLock(storage.LockWrite, user)
	if err != nil {
		a.logger.Error("failed to lock storage", "error", err)
		return internalServerError()
	}
	defer release()
	res, err := a.discoverOne(reqPath)
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	if res == nil {
		return notFound()
	}
	if !a.access(user, reqPath, "w", res) || !a.access(user, toPath, "w", res) {
		return notAllowed()
	}
	item, ok := res.(*storage.Item)
	if !ok {
		// Moving whole collections is not supported.
		return methodNotAllowed()
	}

	toRes, err := a.discoverOne(toPath)
	if err != nil {
		a.logger.Error("discover failed", "path", toPath, "error", err)
		return internalServerError()
	}
	if _, isCol := toRes.(*storage.Collection); isCol {
		return forbidden()
	}
	toParent, err := a.discoverOne(storage.ParentPath(toPath))
	if err != nil {
		a.logger.Error("discover failed", "path", toPath, "error", err)
		return internalServerError()
	}
	toCollection, ok := toParent.(*storage.Collection)
	if !ok {
		return conflict()
	}
	tag := item.Collection.Tag()
	if tag == "" || tag != toCollection.Tag() {
		return forbidden()
	}
	toItem, _ := toRes.(*storage.Item)
	if toItem != nil && r.Header.Get("Overwrite") != "T" {
		return preconditionFailed()
	}
	uidConflict := toItem != nil && item.UID != toItem.UID
	if toItem == nil && toCollection.Path != item.Collection.Path {
		has, err := a.storage.HasUID(toCollection, item.UID)
		if err != nil {
			a.logger.Error("uid lookup failed", "path", toPath, "error", err)
			return internalServerError()
		}
		uidConflict = has
	}
	if uidConflict {
		prefix := "CR"
		if tag == storage.TagCalendar {
			prefix = "C"
		}
		return a.webdavErrorResponse(prefix, "no-uid-conflict")
	}
	if err := a.storage.Move(item, toCollection, storage.Href(toPath)); err != nil {
		a.logger.Warn("bad MOVE request", "path", reqPath, "error", err)
		return badRequest()
	}
	if toItem != nil {
		return response{status: http.StatusNoContent}
	}
	return response{status: http.StatusCreated}
}
