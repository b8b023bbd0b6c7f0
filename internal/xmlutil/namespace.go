// Package xmlutil builds and parses the WebDAV XML bodies of the
// protocol: PROPFIND/PROPPATCH multistatus documents, REPORT
// responses and structured precondition error documents.
package xmlutil

import (
	"fmt"
	"net/http"

	"github.com/beevik/etree"
)

// XML namespaces used by WebDAV, CalDAV and CardDAV.
const (
	NSDav            = "DAV:"
	NSCalDAV         = "urn:ietf:params:xml:ns:caldav"
	NSCardDAV        = "urn:ietf:params:xml:ns:carddav"
	NSCalendarServer = "http://calendarserver.org/ns/"
)

// Namespace prefixes used in generated documents and in the flat
// "D:displayname" property-key form stored as collection metadata.
var prefixNS = map[string]string{
	"D":  NSDav,
	"C":  NSCalDAV,
	"CR": NSCardDAV,
	"CS": NSCalendarServer,
}

var nsPrefix = map[string]string{
	NSDav:            "D",
	NSCalDAV:         "C",
	NSCardDAV:        "CR",
	NSCalendarServer: "CS",
}

// name identifies an XML element by namespace and local name.
type name struct {
	Space string
	Local string
}

// key returns the flat metadata key for a property name, e.g.
// "D:displayname", or "" for names in unknown namespaces.
func (n name) key() string {
	prefix, ok := nsPrefix[n.Space]
	if !ok {
		return ""
	}
	return prefix + ":" + n.Local
}

// nameFromKey parses a flat metadata key back into an XML name.
func nameFromKey(key string) (name, bool) {
	for prefix, space := range prefixNS {
		if len(key) > len(prefix)+1 && key[:len(prefix)] == prefix && key[len(prefix)] == ':' {
			return name{Space: space, Local: key[len(prefix)+1:]}, true
		}
	}
	return name{}, false
}

func elementName(el *etree.Element) name {
	return name{Space: el.NamespaceURI(), Local: el.Tag}
}

// newMultistatus creates a D:multistatus document with all namespace
// declarations the response builders use.
func newMultistatus() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	ms := doc.CreateElement("D:multistatus")
	ms.CreateAttr("xmlns:D", NSDav)
	ms.CreateAttr("xmlns:C", NSCalDAV)
	ms.CreateAttr("xmlns:CR", NSCardDAV)
	ms.CreateAttr("xmlns:CS", NSCalendarServer)
	return doc, ms
}

// statusLine renders an HTTP status for use inside a D:status element.
func statusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

// WriteDocument serializes a document with the configured indentation
// disabled (DAV clients are strict about whitespace in some places).
func WriteDocument(doc *etree.Document) ([]byte, error) {
	return doc.WriteToBytes()
}
