package xmlutil

import "github.com/beevik/etree"

// WebDAVError builds a structured precondition error document, e.g.
//
//	<D:error xmlns:D="DAV:">
//	  <C:no-uid-conflict xmlns:C="urn:ietf:params:xml:ns:caldav"/>
//	</D:error>
//
// prefix selects the namespace of the condition element ("D", "C" or
// "CR").
func WebDAVError(prefix, condition string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement("D:error")
	root.CreateAttr("xmlns:D", NSDav)
	cond := root.CreateElement(prefix + ":" + condition)
	if ns, ok := prefixNS[prefix]; ok && prefix != "D" {
		cond.CreateAttr("xmlns:"+prefix, ns)
	}
	return doc
}

// DeleteMultistatus builds the answer body of a successful DELETE.
func DeleteMultistatus(href string) *etree.Document {
	doc, ms := newMultistatus()
	resp := ms.CreateElement("D:response")
	resp.CreateElement("D:href").SetText(href)
	resp.CreateElement("D:status").SetText(statusLine(200))
	return doc
}
