package storage

import (
	"path"
	"strings"
)

// SanitizePath normalizes a raw URL path into a canonical absolute form.
// The result always starts with "/", contains no empty, "." or ".."
// segments, and keeps a trailing slash when the input had one (a
// trailing slash marks a collection-shaped path). Malformed input
// normalizes to "/".
func SanitizePath(p string) string {
	trailing := strings.HasSuffix(p, "/")
	sanitized := "/"
	for _, part := range strings.Split(path.Clean(p), "/") {
		if !IsSafePathComponent(part) {
			continue
		}
		sanitized = path.Join(sanitized, part)
	}
	if trailing && sanitized != "/" {
		sanitized += "/"
	}
	return sanitized
}

// IsSafePathComponent reports whether s can be used as a single path
// segment. Rejects empty strings, ".", ".." and anything containing a
// slash, so usernames like "alice/calendar.ics" never escape their
// principal collection.
func IsSafePathComponent(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.Contains(s, "/")
}

// ParentPath returns the sanitized collection path of the parent
// directory of p, always with a trailing slash.
func ParentPath(p string) string {
	trimmed := strings.Trim(p, "/")
	return SanitizePath("/" + path.Dir(trimmed) + "/")
}

// Href returns the last path segment of p, or "" for the root.
func Href(p string) string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return ""
	}
	return path.Base(trimmed)
}

// TrimPath converts a sanitized path into the internal collection key
// form without surrounding slashes ("" for the root).
func TrimPath(p string) string {
	return strings.Trim(SanitizePath(p), "/")
}
