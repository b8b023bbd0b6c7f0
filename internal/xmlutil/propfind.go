package xmlutil

import (
	"net/http"
	"path"
	"strings"

	"github.com/beevik/etree"

	"github.com/davrock/davrock/storage"
)

// AllowedItem is a discovered resource annotated with the permission
// letter ("r" or "w") the requesting user holds on it.
type AllowedItem struct {
	Resource   storage.Resource
	Permission string
}

// propRequest is the parsed body of a PROPFIND.
type propRequest struct {
	names    []name
	allProp  bool
	propName bool
}

var allPropNames = []name{
	{NSDav, "resourcetype"},
	{NSDav, "displayname"},
	{NSDav, "getetag"},
	{NSDav, "getlastmodified"},
	{NSDav, "getcontenttype"},
	{NSDav, "owner"},
}

func parsePropfind(doc *etree.Document) propRequest {
	if doc == nil || doc.Root() == nil {
		// An empty body is equivalent to allprop.
		return propRequest{allProp: true}
	}
	req := propRequest{}
	for _, el := range doc.Root().ChildElements() {
		switch elementName(el) {
		case name{NSDav, "prop"}:
			for _, p := range el.ChildElements() {
				req.names = append(req.names, elementName(p))
			}
		case name{NSDav, "allprop"}:
			req.allProp = true
		case name{NSDav, "propname"}:
			req.propName = true
		case name{NSDav, "include"}:
			for _, p := range el.ChildElements() {
				req.names = append(req.names, elementName(p))
			}
		}
	}
	return req
}

// Propfind builds the multistatus answer for a PROPFIND over the
// allowed items. Returns 403 when the result set is empty, meaning the
// requested root itself was filtered out.
func Propfind(basePrefix, reqPath string, doc *etree.Document, allowed []AllowedItem, user string) (int, *etree.Document) {
	if len(allowed) == 0 {
		return http.StatusForbidden, nil
	}
	req := parsePropfind(doc)
	names := req.names
	if req.allProp || req.propName {
		names = append([]name{}, allPropNames...)
		names = append(names, req.names...)
	}

	out, ms := newMultistatus()
	for _, item := range allowed {
		resp := ms.CreateElement("D:response")
		resp.CreateElement("D:href").SetText(resourceHref(basePrefix, item.Resource))
		found := resp.CreateElement("D:propstat")
		foundProp := found.CreateElement("D:prop")
		var missing []name
		for _, n := range names {
			value := resolveProp(n, item, basePrefix, user)
			if value == nil {
				missing = append(missing, n)
				continue
			}
			if req.propName {
				// propname answers with empty-valued elements.
				value = emptyElement(n)
			}
			foundProp.AddChild(value)
		}
		found.CreateElement("D:status").SetText(statusLine(200))
		if len(missing) > 0 {
			notFound := resp.CreateElement("D:propstat")
			nfProp := notFound.CreateElement("D:prop")
			for _, n := range missing {
				nfProp.AddChild(emptyElement(n))
			}
			notFound.CreateElement("D:status").SetText(statusLine(404))
		}
	}
	return http.StatusMultiStatus, out
}

// resourceHref renders the client-visible URL path of a resource.
func resourceHref(basePrefix string, res storage.Resource) string {
	switch r := res.(type) {
	case *storage.Collection:
		if r.Path == "" {
			return basePrefix + "/"
		}
		return basePrefix + "/" + r.Path + "/"
	case *storage.Item:
		return basePrefix + "/" + path.Join(r.Collection.Path, r.Href)
	}
	return basePrefix + "/"
}

// resolveProp renders one property of a resource, or nil when the
// property does not exist on it.
func resolveProp(n name, item AllowedItem, basePrefix, user string) *etree.Element {
	col, isCol := item.Resource.(*storage.Collection)
	it, _ := item.Resource.(*storage.Item)

	switch n {
	case name{NSDav, "resourcetype"}:
		el := emptyElement(n)
		if isCol {
			el.CreateElement("D:collection")
			switch col.Tag() {
			case storage.TagCalendar:
				el.CreateElement("C:calendar")
			case storage.TagAddressBook:
				el.CreateElement("CR:addressbook")
			}
		}
		return el
	case name{NSDav, "getetag"}:
		if isCol {
			if col.Tag() == "" {
				return nil
			}
			return textElement(n, col.ETag)
		}
		return textElement(n, it.ETag)
	case name{NSDav, "getlastmodified"}:
		if isCol {
			return textElement(n, col.LastModified.UTC().Format(http.TimeFormat))
		}
		return textElement(n, it.LastModified.UTC().Format(http.TimeFormat))
	case name{NSDav, "getcontenttype"}:
		if isCol {
			if mime, ok := storage.MIMETypes[col.Tag()]; ok {
				return textElement(n, mime)
			}
			return nil
		}
		return textElement(n, storage.ObjectMIMETypes[it.Name])
	case name{NSDav, "displayname"}:
		if isCol {
			if v := col.Meta("D:displayname"); v != "" {
				return textElement(n, v)
			}
		}
		return nil
	case name{NSDav, "owner"}:
		owner := resourceOwner(item.Resource)
		if owner == "" {
			return nil
		}
		el := emptyElement(n)
		el.CreateElement("D:href").SetText(basePrefix + "/" + owner + "/")
		return el
	case name{NSDav, "current-user-principal"}:
		if user == "" {
			return nil
		}
		el := emptyElement(n)
		el.CreateElement("D:href").SetText(basePrefix + "/" + user + "/")
		return el
	case name{NSDav, "current-user-privilege-set"}:
		el := emptyElement(n)
		read := el.CreateElement("D:privilege")
		read.CreateElement("D:read")
		if item.Permission == "w" {
			write := el.CreateElement("D:privilege")
			write.CreateElement("D:write")
		}
		return el
	case name{NSDav, "supported-report-set"}:
		if !isCol {
			return nil
		}
		el := emptyElement(n)
		reports := []string{"C:calendar-multiget", "C:calendar-query", "CR:addressbook-multiget"}
		for _, report := range reports {
			sr := el.CreateElement("D:supported-report")
			sr.CreateElement("D:report").CreateElement(report)
		}
		return el
	case name{NSDav, "sync-token"}:
		if isCol && col.Tag() != "" {
			return textElement(n, syncToken(col))
		}
		return nil
	case name{NSCalendarServer, "getctag"}:
		if isCol && col.Tag() != "" {
			return textElement(n, col.ETag)
		}
		return nil
	case name{NSCalDAV, "calendar-home-set"}:
		if user == "" {
			return nil
		}
		el := emptyElement(n)
		el.CreateElement("D:href").SetText(basePrefix + "/" + user + "/")
		return el
	case name{NSCardDAV, "addressbook-home-set"}:
		if user == "" {
			return nil
		}
		el := emptyElement(n)
		el.CreateElement("D:href").SetText(basePrefix + "/" + user + "/")
		return el
	}
	// Remaining properties come from collection metadata.
	if isCol {
		if key := n.key(); key != "" {
			if v := col.Meta(key); v != "" {
				return textElement(n, v)
			}
		}
	}
	return nil
}

// syncToken derives an opaque sync token from the collection state.
func syncToken(col *storage.Collection) string {
	return "http://davrock.org/ns/sync/" + strings.Trim(col.ETag, `"`)
}

func resourceOwner(res storage.Resource) string {
	var p string
	switch r := res.(type) {
	case *storage.Collection:
		p = r.Path
	case *storage.Item:
		p = r.Collection.Path
	}
	if p == "" {
		return ""
	}
	return strings.SplitN(p, "/", 2)[0]
}

func emptyElement(n name) *etree.Element {
	el := etree.NewElement(prefixedTag(n))
	return el
}

func textElement(n name, text string) *etree.Element {
	el := emptyElement(n)
	el.SetText(text)
	return el
}

// prefixedTag renders a name with the document-level prefix for its
// namespace, falling back to an inline declaration for foreign ones.
func prefixedTag(n name) string {
	if prefix, ok := nsPrefix[n.Space]; ok {
		return prefix + ":" + n.Local
	}
	return n.Local
}
