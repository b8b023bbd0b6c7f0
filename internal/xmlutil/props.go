package xmlutil

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/davrock/davrock/storage"
)

// PropsFromRequest extracts the property set of an extended MKCOL or
// MKCALENDAR body into flat metadata keys ("D:displayname", ...). A
// D:resourcetype child of C:calendar or CR:addressbook maps to the
// collection tag. A nil document yields an empty set.
func PropsFromRequest(doc *etree.Document) map[string]string {
	props := map[string]string{}
	if doc == nil || doc.Root() == nil {
		return props
	}
	for _, set := range childrenNamed(doc.Root(), name{NSDav, "set"}) {
		for _, prop := range childrenNamed(set, name{NSDav, "prop"}) {
			collectProps(prop, props)
		}
	}
	return props
}

// PropPatchFromRequest extracts the set and remove operations of a
// PROPPATCH body.
func PropPatchFromRequest(doc *etree.Document) (set map[string]string, remove []string, err error) {
	set = map[string]string{}
	if doc == nil || doc.Root() == nil {
		return nil, nil, fmt.Errorf("%w: empty proppatch body", storage.ErrInvalidInput)
	}
	root := doc.Root()
	if (elementName(root) != name{NSDav, "propertyupdate"}) {
		return nil, nil, fmt.Errorf("%w: unexpected root element %q", storage.ErrInvalidInput, root.Tag)
	}
	for _, action := range root.ChildElements() {
		switch elementName(action) {
		case name{NSDav, "set"}:
			for _, prop := range childrenNamed(action, name{NSDav, "prop"}) {
				collectProps(prop, set)
			}
		case name{NSDav, "remove"}:
			for _, prop := range childrenNamed(action, name{NSDav, "prop"}) {
				for _, el := range prop.ChildElements() {
					if key := elementName(el).key(); key != "" {
						remove = append(remove, key)
					}
				}
			}
		}
	}
	return set, remove, nil
}

func collectProps(prop *etree.Element, out map[string]string) {
	for _, el := range prop.ChildElements() {
		n := elementName(el)
		if (n == name{NSDav, "resourcetype"}) {
			for _, rt := range el.ChildElements() {
				switch elementName(rt) {
				case name{NSCalDAV, "calendar"}:
					out[storage.MetaTag] = storage.TagCalendar
				case name{NSCardDAV, "addressbook"}:
					out[storage.MetaTag] = storage.TagAddressBook
				}
			}
			continue
		}
		if key := n.key(); key != "" {
			out[key] = el.Text()
		}
	}
}

func childrenNamed(el *etree.Element, n name) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if elementName(child) == n {
			out = append(out, child)
		}
	}
	return out
}
