package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", "/"},
		{"root", "/", "/"},
		{"plain", "/alice/work", "/alice/work"},
		{"trailing slash kept", "/alice/work/", "/alice/work/"},
		{"double slashes", "//alice///work", "/alice/work"},
		{"dot segments", "/alice/./work", "/alice/work"},
		{"parent traversal", "/alice/../bob", "/bob"},
		{"escape attempt", "/../../etc/passwd", "/etc/passwd"},
		{"relative", "alice/work", "/alice/work"},
		{"collapses to root", "/a/..", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePath(tt.in)
			assert.Equal(t, tt.want, got)
			// Sanitizing twice must not change the result.
			assert.Equal(t, got, SanitizePath(got))
			assert.False(t, strings.Contains(got, ".."))
		})
	}
}

func TestIsSafePathComponent(t *testing.T) {
	assert.True(t, IsSafePathComponent("calendar.ics"))
	assert.True(t, IsSafePathComponent("alice"))
	assert.False(t, IsSafePathComponent(""))
	assert.False(t, IsSafePathComponent("."))
	assert.False(t, IsSafePathComponent(".."))
	assert.False(t, IsSafePathComponent("alice/calendar.ics"))
}

func TestParentPath(t *testing.T) {
	assert.Equal(t, "/alice/", ParentPath("/alice/work/"))
	assert.Equal(t, "/alice/work/", ParentPath("/alice/work/event.ics"))
	assert.Equal(t, "/", ParentPath("/alice"))
	assert.Equal(t, "/", ParentPath("/"))
}

func TestHrefAndTrimPath(t *testing.T) {
	assert.Equal(t, "event.ics", Href("/alice/work/event.ics"))
	assert.Equal(t, "work", Href("/alice/work/"))
	assert.Equal(t, "", Href("/"))

	assert.Equal(t, "alice/work", TrimPath("/alice/work/"))
	assert.Equal(t, "", TrimPath("/"))
}
