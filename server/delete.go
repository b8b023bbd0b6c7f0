package server

import (
	"net/http"

	"github.com/davrock/davrock/internal/xmlutil"
	"github.com/davrock/davrock/storage"
)

func (a *Application) doDelete(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	if !a.access(user, reqPath, "w", nil) {
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
	if !a.access(user, reqPath, "w", res) {
		return notAllowed()
	}
	ifMatch := r.Header.Get("If-Match")
	if ifMatch == "" {
		ifMatch = "*"
	}
	if ifMatch != "*" && ifMatch != resourceETag(res) {
		// ETag precondition not verified, do not delete.
		return preconditionFailed()
	}
	if err := a.storage.Delete(res); err != nil {
		a.logger.Error("delete failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	return a.xmlResponse(http.StatusOK, xmlutil.DeleteMultistatus(base+reqPath))
}

func resourceETag(res storage.Resource) string {
	switch r := res.(type) {
	case *storage.Collection:
		return r.ETag
	case *storage.Item:
		return r.ETag
	}
	return ""
}
