package xmlutil

import (
	"fmt"
	"net/http"
	"path"

	"github.com/beevik/etree"

	"github.com/davrock/davrock/storage"
)

// Report executes a REPORT request against a collection and builds the
// multistatus answer. release is called as soon as no further storage
// access is needed, so large responses can be assembled without
// holding the tree lock.
func Report(basePrefix, reqPath string, doc *etree.Document, col *storage.Collection, st storage.Storage, release func()) (int, *etree.Document, error) {
	if doc == nil || doc.Root() == nil {
		return 0, nil, fmt.Errorf("%w: empty report body", storage.ErrInvalidInput)
	}
	root := doc.Root()
	props := reportProps(root)

	switch elementName(root) {
	case name{NSCalDAV, "calendar-multiget"}, name{NSCardDAV, "addressbook-multiget"}:
		hrefs := collectHrefs(root)
		hits, misses, err := resolveHrefs(basePrefix, col, st, hrefs)
		if err != nil {
			return 0, nil, err
		}
		release()
		return http.StatusMultiStatus, buildReportResponse(basePrefix, props, hits, misses), nil

	case name{NSCalDAV, "calendar-query"}:
		items, err := st.Items(col)
		if err != nil {
			return 0, nil, err
		}
		filtered, err := applyCalendarFilter(root, items)
		if err != nil {
			return 0, nil, err
		}
		release()
		return http.StatusMultiStatus, buildReportResponse(basePrefix, props, filtered, nil), nil

	case name{NSDav, "sync-collection"}:
		// Collection synchronization is not supported; answer with a
		// structured error so clients fall back to multiget.
		release()
		return http.StatusConflict, WebDAVError("D", "valid-sync-token"), nil
	}
	return 0, nil, fmt.Errorf("%w: unsupported report %q", storage.ErrInvalidInput, root.Tag)
}

// reportProps extracts the requested property names of a report body.
func reportProps(root *etree.Element) []name {
	var names []name
	for _, prop := range childrenNamed(root, name{NSDav, "prop"}) {
		for _, el := range prop.ChildElements() {
			names = append(names, elementName(el))
		}
	}
	if len(names) == 0 {
		names = []name{{NSDav, "getetag"}}
	}
	return names
}

func collectHrefs(root *etree.Element) []string {
	var hrefs []string
	for _, el := range childrenNamed(root, name{NSDav, "href"}) {
		hrefs = append(hrefs, el.Text())
	}
	return hrefs
}

// resolveHrefs maps multiget hrefs to the collection's items. Hrefs
// outside the collection or naming unknown items are reported as
// misses.
func resolveHrefs(basePrefix string, col *storage.Collection, st storage.Storage, hrefs []string) (hits []*storage.Item, misses []string, err error) {
	items, err := st.Items(col)
	if err != nil {
		return nil, nil, err
	}
	byHref := make(map[string]*storage.Item, len(items))
	for _, item := range items {
		byHref[item.Href] = item
	}
	for _, raw := range hrefs {
		sanitized := storage.SanitizePath(raw)
		target := storage.TrimPath(sanitized)
		want := storage.TrimPath(basePrefix + "/" + col.Path)
		if storage.TrimPath(storage.ParentPath("/"+target+"/")) != want {
			misses = append(misses, raw)
			continue
		}
		if item, ok := byHref[path.Base(target)]; ok {
			hits = append(hits, item)
		} else {
			misses = append(misses, raw)
		}
	}
	return hits, misses, nil
}

// buildReportResponse assembles the multistatus document once all
// storage reads are done.
func buildReportResponse(basePrefix string, props []name, hits []*storage.Item, misses []string) *etree.Document {
	out, ms := newMultistatus()
	for _, item := range hits {
		resp := ms.CreateElement("D:response")
		resp.CreateElement("D:href").SetText(resourceHref(basePrefix, item))
		propstat := resp.CreateElement("D:propstat")
		prop := propstat.CreateElement("D:prop")
		var missing []name
		for _, n := range props {
			el := resolveReportProp(n, item)
			if el == nil {
				missing = append(missing, n)
				continue
			}
			prop.AddChild(el)
		}
		propstat.CreateElement("D:status").SetText(statusLine(200))
		if len(missing) > 0 {
			nf := resp.CreateElement("D:propstat")
			nfProp := nf.CreateElement("D:prop")
			for _, n := range missing {
				nfProp.AddChild(emptyElement(n))
			}
			nf.CreateElement("D:status").SetText(statusLine(404))
		}
	}
	for _, raw := range misses {
		resp := ms.CreateElement("D:response")
		resp.CreateElement("D:href").SetText(raw)
		resp.CreateElement("D:status").SetText(statusLine(404))
	}
	return out
}

func resolveReportProp(n name, item *storage.Item) *etree.Element {
	switch n {
	case name{NSDav, "getetag"}:
		return textElement(n, item.ETag)
	case name{NSDav, "getcontenttype"}:
		return textElement(n, storage.ObjectMIMETypes[item.Name])
	case name{NSCalDAV, "calendar-data"}:
		if item.Calendar == nil {
			return nil
		}
		text, err := item.Serialize()
		if err != nil {
			return nil
		}
		return textElement(n, text)
	case name{NSCardDAV, "address-data"}:
		if item.Card == nil {
			return nil
		}
		text, err := item.Serialize()
		if err != nil {
			return nil
		}
		return textElement(n, text)
	}
	return nil
}
