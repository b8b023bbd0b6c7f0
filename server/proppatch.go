package server

import (
	"net/http"

	"github.com/davrock/davrock/internal/xmlutil"
	"github.com/davrock/davrock/storage"
)

func (a *Application) doProppatch(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	if !a.access(user, reqPath, "w", nil) {
		return notAllowed()
	}
	doc, err := a.readXMLContent(w, r)
	if err != nil {
		return a.badRequestOrTimeout("PROPPATCH", reqPath, err)
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
	col, ok := res.(*storage.Collection)
	if !ok {
		return forbidden()
	}
	answer, err := xmlutil.Proppatch(base, reqPath, doc, col, a.storage)
	if err != nil {
		a.logger.Warn("bad PROPPATCH request", "path", reqPath, "error", err)
		return badRequest()
	}
	resp := a.xmlResponse(http.StatusMultiStatus, answer)
	resp.headers["DAV"] = davCapabilities
	return resp
}
