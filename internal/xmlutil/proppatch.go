package xmlutil

import (
	"github.com/beevik/etree"

	"github.com/davrock/davrock/storage"
)

// Proppatch applies a PROPPATCH body to a collection and builds the
// multistatus answer. Storage validation failures propagate as errors
// for the handler to map to Bad-Request.
func Proppatch(basePrefix, reqPath string, doc *etree.Document, col *storage.Collection, st storage.Storage) (*etree.Document, error) {
	set, remove, err := PropPatchFromRequest(doc)
	if err != nil {
		return nil, err
	}
	if err := st.SetProps(col, set, remove); err != nil {
		return nil, err
	}

	out, ms := newMultistatus()
	resp := ms.CreateElement("D:response")
	resp.CreateElement("D:href").SetText(resourceHref(basePrefix, col))
	propstat := resp.CreateElement("D:propstat")
	prop := propstat.CreateElement("D:prop")
	for key := range set {
		if n, ok := nameFromKey(key); ok {
			prop.AddChild(emptyElement(n))
		}
	}
	for _, key := range remove {
		if n, ok := nameFromKey(key); ok {
			prop.AddChild(emptyElement(n))
		}
	}
	propstat.CreateElement("D:status").SetText(statusLine(200))
	return out, nil
}
