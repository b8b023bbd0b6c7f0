package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/htmlindex"
)

// errRequestTimeout marks a body read that hit the configured deadline,
// so handlers can answer 408 instead of 400.
var errRequestTimeout = errors.New("request body read timed out")

// readRawContent drains the request body under the configured read
// deadline.
func (a *Application) readRawContent(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return nil, nil
	}
	if a.bodyTimeout > 0 {
		rc := http.NewResponseController(w)
		if err := rc.SetReadDeadline(time.Now().Add(a.bodyTimeout)); err == nil {
			defer func() { _ = rc.SetReadDeadline(time.Time{}) }()
		}
	}
	body := r.Body
	if a.maxContent > 0 {
		body = http.MaxBytesReader(w, body, a.maxContent)
	}
	content, err := io.ReadAll(body)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, errRequestTimeout
		}
		return nil, fmt.Errorf("read request body: %w", err)
	}
	return content, nil
}

// readContent reads the request body as text, trying the request
// charset, the configured encoding, UTF-8 and Latin-1 in that order.
func (a *Application) readContent(w http.ResponseWriter, r *http.Request) (string, error) {
	raw, err := a.readRawContent(w, r)
	if err != nil {
		return "", err
	}
	content, err := a.decode(r, raw)
	if err != nil {
		return "", err
	}
	a.logger.Debug("request content", "content", content)
	return content, nil
}

// readXMLContent reads and parses an XML request body. A missing body
// yields a nil document, not an error.
func (a *Application) readXMLContent(w http.ResponseWriter, r *http.Request) (*etree.Document, error) {
	content, err := a.readContent(w, r)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(content); err != nil {
		a.logger.Debug("request content is invalid XML", "content", content)
		return nil, fmt.Errorf("parse XML: %w", err)
	}
	return doc, nil
}

// decode converts request bytes to a string, walking a charset
// fallback chain.
func (a *Application) decode(r *http.Request, raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var charsets []string
	if _, params, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil {
		if cs := params["charset"]; cs != "" {
			charsets = append(charsets, cs)
		}
	}
	charsets = append(charsets, a.encoding, "utf-8", "iso8859-1")
	for _, charset := range charsets {
		if decoded, ok := decodeCharset(raw, charset); ok {
			return decoded, nil
		}
	}
	return "", errors.New("undecodable request body")
}

func decodeCharset(raw []byte, charset string) (string, bool) {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return "", false
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		// The UTF-8 decoder replaces invalid sequences instead of
		// failing, so validate explicitly to let the chain continue.
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	return string(decoded), true
}

// badRequestOrTimeout maps a body read error to its response, logging
// the method context.
func (a *Application) badRequestOrTimeout(method, path string, err error) response {
	if errors.Is(err, errRequestTimeout) {
		a.logger.Debug("client timed out", "method", method, "path", path)
		return requestTimeout()
	}
	a.logger.Warn("bad request", "method", method, "path", path,
		slog.Any("error", err))
	return badRequest()
}
