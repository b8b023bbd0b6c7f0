package server

import (
	"errors"
	"net/http"

	"github.com/davrock/davrock/internal/xmlutil"
	"github.com/davrock/davrock/storage"
)

func (a *Application) doReport(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	if !a.access(user, reqPath, "r", nil) {
		return notAllowed()
	}
	doc, err := a.readXMLContent(w, r)
	if err != nil {
		return a.badRequestOrTimeout("REPORT", reqPath, err)
	}
	release, err := a.storage.AcquireLock(storage.LockRead, user)
	if err != nil {
		a.logger.Error("failed to lock storage", "error", err)
		return internalServerError()
	}
	// The report builder releases the lock itself once all storage
	// reads are done, so large answers are assembled without it.
	released := false
	releaseOnce := func() {
		if !released {
			released = true
			release()
		}
	}
	defer releaseOnce()
	res, err := a.discoverOne(reqPath)
	if err != nil {
		a.logger.Error("discover failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	if res == nil {
		return notFound()
	}
	if !a.access(user, reqPath, "r", res) {
		return notAllowed()
	}
	var col *storage.Collection
	switch item := res.(type) {
	case *storage.Collection:
		col = item
	case *storage.Item:
		col = item.Collection
	}
	status, answer, err := xmlutil.Report(base, reqPath, doc, col, a.storage, releaseOnce)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidInput) {
			a.logger.Warn("bad REPORT request", "path", reqPath, "error", err)
			return badRequest()
		}
		a.logger.Error("report failed", "path", reqPath, "error", err)
		return internalServerError()
	}
	return a.xmlResponse(status, answer)
}
