package server

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/davrock/davrock/internal/xmlutil"
)

// Fixed plain-text messages, one per terminal status.
const (
	msgNotAllowed          = "Access to the requested resource forbidden."
	msgForbidden           = "Action on the requested resource refused."
	msgBadRequest          = "Bad Request"
	msgNotFound            = "The requested resource could not be found."
	msgConflict            = "Conflict in the request."
	msgMethodNotAllowed    = "The method is not allowed on the requested resource."
	msgPreconditionFailed  = "Precondition failed."
	msgRequestTimeout      = "Connection timed out."
	msgEntityTooLarge      = "Request body too large."
	msgRemoteDestination   = "Remote destination not supported."
	msgDirectoryListing    = "Directory listings are not supported."
	msgInternalServerError = "A server error occurred.  Please contact the administrator."
)

// response is the (status, headers, body) triple every handler
// returns. text carries a body that still needs charset encoding; body
// carries already-encoded bytes (XML documents).
type response struct {
	status  int
	headers map[string]string
	text    string
	body    []byte
}

func plainText(status int, msg string) response {
	return response{
		status:  status,
		headers: map[string]string{"Content-Type": "text/plain"},
		text:    msg,
	}
}

func notAllowed() response   { return plainText(http.StatusForbidden, msgNotAllowed) }
func forbidden() response    { return plainText(http.StatusForbidden, msgForbidden) }
func badRequest() response   { return plainText(http.StatusBadRequest, msgBadRequest) }
func notFound() response     { return plainText(http.StatusNotFound, msgNotFound) }
func conflict() response     { return plainText(http.StatusConflict, msgConflict) }
func requestTimeout() response {
	return plainText(http.StatusRequestTimeout, msgRequestTimeout)
}
func entityTooLarge() response {
	return plainText(http.StatusRequestEntityTooLarge, msgEntityTooLarge)
}
func methodNotAllowed() response {
	return plainText(http.StatusMethodNotAllowed, msgMethodNotAllowed)
}
func preconditionFailed() response {
	return plainText(http.StatusPreconditionFailed, msgPreconditionFailed)
}
func remoteDestination() response {
	return plainText(http.StatusBadGateway, msgRemoteDestination)
}
func directoryListing() response {
	return plainText(http.StatusForbidden, msgDirectoryListing)
}
func internalServerError() response {
	return plainText(http.StatusInternalServerError, msgInternalServerError)
}

// isNotAllowed reports whether resp is the access-denied triple, which
// the dispatcher may escalate to an authentication challenge.
func (resp response) isNotAllowed() bool {
	return resp.status == http.StatusForbidden && resp.text == msgNotAllowed
}

// xmlResponse wraps a generated XML document. XML bodies are always
// UTF-8 regardless of the configured text encoding.
func (a *Application) xmlResponse(status int, doc *etree.Document) response {
	body, err := xmlutil.WriteDocument(doc)
	if err != nil {
		a.logger.Error("failed to serialize response document", "error", err)
		return internalServerError()
	}
	return response{
		status:  status,
		headers: map[string]string{"Content-Type": "text/xml; charset=utf-8"},
		body:    body,
	}
}

// webdavErrorResponse builds a structured precondition error body,
// e.g. no-uid-conflict or resource-must-be-null.
func (a *Application) webdavErrorResponse(prefix, condition string) response {
	return a.xmlResponse(http.StatusConflict, xmlutil.WebDAVError(prefix, condition))
}

// finalize encodes, compresses and writes a handler response, merges
// the configured extra headers and emits the timing access-log line.
func (a *Application) finalize(w http.ResponseWriter, r *http.Request, resp response, begin time.Time) {
	headers := map[string]string{}
	for k, v := range resp.headers {
		headers[k] = v
	}

	body := resp.body
	if resp.text != "" {
		if ct, ok := headers["Content-Type"]; ok {
			headers["Content-Type"] = ct + "; charset=" + a.encoding
		}
		body = a.encodeText(resp.text)
	}
	if len(body) > 0 && acceptsGzip(r) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(body); err == nil && zw.Close() == nil {
			body = buf.Bytes()
			headers["Content-Encoding"] = "gzip"
		}
	}
	if len(body) > 0 {
		headers["Content-Length"] = strconv.Itoa(len(body))
	}
	for k, v := range a.extraHeaders {
		headers[k] = v
	}

	for k, v := range headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.status)
	if len(body) > 0 && r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}

	logAttrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"status", fmt.Sprintf("%d %s", resp.status, http.StatusText(resp.status)),
		"duration", time.Since(begin).Round(time.Millisecond).String(),
	}
	if depth := r.Header.Get("Depth"); depth != "" {
		logAttrs = append(logAttrs, "depth", depth)
	}
	a.logger.Info("response", logAttrs...)
}

func acceptsGzip(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(enc) == "gzip" {
			return true
		}
	}
	return false
}
