package server

import (
	"net/http"
	"strings"
)

func (a *Application) doOptions(w http.ResponseWriter, r *http.Request, base, reqPath, user string) response {
	return response{
		status: http.StatusOK,
		headers: map[string]string{
			"Allow": strings.Join(a.methods, ", "),
			"DAV":   davCapabilities,
		},
	}
}
