// Package web is the boundary to the static web UI. The protocol core
// only dispatches GET requests below /.web here.
package web

import (
	"fmt"
	"net/http"
)

// Web serves the UI namespace of the server.
type Web interface {
	// Get answers a GET request for a /.web path with a status,
	// response headers and a text body.
	Get(r *http.Request, basePrefix, path, user string) (status int, headers map[string]string, body string)
}

// New returns the built-in backend with the given name: "internal"
// (placeholder page) or "none" (the UI namespace does not exist).
func New(name string) (Web, error) {
	switch name {
	case "internal":
		return internalWeb{}, nil
	case "none":
		return noneWeb{}, nil
	}
	return nil, fmt.Errorf("unknown web backend %q", name)
}

type internalWeb struct{}

func (internalWeb) Get(r *http.Request, basePrefix, path, user string) (int, map[string]string, string) {
	if path != "/.web" && path != "/.web/" {
		return http.StatusNotFound, map[string]string{"Content-Type": "text/plain"},
			"The requested resource could not be found."
	}
	return http.StatusOK, map[string]string{"Content-Type": "text/html"},
		"<!DOCTYPE html>\n<html><head><title>davrock</title></head>" +
			"<body>davrock works. Point your calendar or contacts client at this URL.</body></html>\n"
}

type noneWeb struct{}

func (noneWeb) Get(r *http.Request, basePrefix, path, user string) (int, map[string]string, string) {
	return http.StatusNotFound, map[string]string{"Content-Type": "text/plain"},
		"The requested resource could not be found."
}
