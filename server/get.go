package server

import (
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/davrock/davrock/storage"
)

func (a *Application) doGet(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	// Redirect to the web interface if the root URL is requested.
	if strings.Trim(reqPath, "/") == "" {
		webPath := ".web"
		if r.URL.Path == "" {
			webPath = path.Join(path.Base(base), webPath)
		}
		return response{
			status: http.StatusFound,
			headers: map[string]string{
				"Location":     webPath,
				"Content-Type": "text/plain",
			},
			text: "Redirected to " + webPath,
		}
	}
	if reqPath == "/.web" || strings.HasPrefix(reqPath, "/.web/") {
		status, headers, body := a.web.Get(r, base, reqPath, user)
		return response{status: status, headers: headers, text: body}
	}
	if !a.access(user, reqPath, "r", nil) {
		return notAllowed()
	}

	release, err := a.storage.AcquireLock(storage.LockRead, user)
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
	if !a.access(user, reqPath, "r", res) {
		return notAllowed()
	}

	var contentType, contentDisposition, answer, etag string
	var lastModified string
	switch item := res.(type) {
	case *storage.Collection:
		tag := item.Tag()
		if tag == "" {
			return directoryListing()
		}
		contentType = storage.MIMETypes[tag]
		contentDisposition = a.contentDispositionAttachement(proposeFilename(item))
		answer, err = a.storage.Serialize(item)
		etag = item.ETag
		lastModified = item.LastModified.UTC().Format(http.TimeFormat)
	case *storage.Item:
		contentType = storage.ObjectMIMETypes[item.Name]
		answer, err = item.Serialize()
		etag = item.ETag
		lastModified = item.LastModified.UTC().Format(http.TimeFormat)
	}
	if err != nil {
		a.logger.Error("failed to serialize resource", "path", reqPath, "error", err)
		return internalServerError()
	}
	headers := map[string]string{
		"Content-Type":  contentType,
		"Last-Modified": lastModified,
		"ETag":          etag,
	}
	if contentDisposition != "" {
		headers["Content-Disposition"] = contentDisposition
	}
	return response{status: http.StatusOK, headers: headers, text: answer}
}

func (a *Application) doHead(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	resp := a.doGet(w, r, base, reqPath, user)
	resp.text = ""
	resp.body = nil
	return resp
}

// proposeFilename derives a download filename for a collection.
func proposeFilename(col *storage.Collection) string {
	var fallbackTitle, suffix string
	switch col.Tag() {
	case storage.TagAddressBook:
		fallbackTitle = "Address book"
		suffix = ".vcf"
	case storage.TagCalendar:
		fallbackTitle = "Calendar"
		suffix = ".ics"
	default:
		fallbackTitle = path.Base(col.Path)
	}
	title := col.Meta("D:displayname")
	if title == "" {
		title = fallbackTitle
	}
	if title != "" && !strings.HasSuffix(strings.ToLower(title), suffix) {
		title += suffix
	}
	return title
}

func (a *Application) contentDispositionAttachement(filename string) string {
	value := "attachement"
	if encoded := url.PathEscape(filename); encoded != "" {
		value += "; filename*=" + a.encoding + "''" + encoded
	}
	return value
}
