package server

import (
	"net/http"

	"github.com/davrock/davrock/internal/xmlutil"
	"github.com/davrock/davrock/storage"
)

func (a *Application) doPropfind(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	if !a.access(user, reqPath, "r", nil) {
		return notAllowed()
	}
	doc, err := a.readXMLContent(w, r)
	if err != nil {
		return a.badRequestOrTimeout("PROPFIND", reqPath, err)
	}
	release, err := a.storage.AcquireLock(storage.LockRead, user)
	if err != nil {
		a.logger.Error("failed to lock storage", "error", err)
		return internalServerError()
	}
	defer release()
	depth := r.Header.Get("Depth")
	if depth == "" {
		depth = "0"
	}
	resources, err := a.storage.Discover(reqPath, depth)
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	if len(resources) == 0 {
		return notFound()
	}
	// The first resource is the requested root itself.
	if !a.access(user, reqPath, "r", resources[0]) {
		return notAllowed()
	}
	allowed := a.collectAllowedItems(resources, user)
	status, answer := xmlutil.Propfind(base, reqPath, doc, allowed, user)
	if status == http.StatusForbidden {
		return notAllowed()
	}
	resp := a.xmlResponse(status, answer)
	resp.headers["DAV"] = davCapabilities
	return resp
}
