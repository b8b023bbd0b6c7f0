package storage

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
)

// Collection type tags.
const (
	TagCalendar    = "VCALENDAR"
	TagAddressBook = "VADDRESSBOOK"
)

// MetaTag is the metadata key holding a collection's type tag.
const MetaTag = "tag"

// MIMETypes maps a collection tag to the media type of its serialized
// form.
var MIMETypes = map[string]string{
	TagCalendar:    "text/calendar",
	TagAddressBook: "text/vcard",
}

// ObjectMIMETypes maps an item's component name to its media type.
var ObjectMIMETypes = map[string]string{
	ical.CompEvent:   "text/calendar",
	ical.CompToDo:    "text/calendar",
	ical.CompJournal: "text/calendar",
	"VCARD":          "text/vcard",
}

// Resource is the discovery result type: either a *Collection or an
// *Item. Handlers switch on the concrete type.
type Resource interface {
	isResource()
}

// Collection is a node of the resource tree. A tagged collection
// (VCALENDAR or VADDRESSBOOK) holds items; an untagged collection is a
// plain directory that may hold further collections.
type Collection struct {
	// Path is the sanitized path without surrounding slashes, ""
	// for the root. Example: "alice/work".
	Path string
	// Props holds the collection metadata, including MetaTag.
	Props map[string]string
	// ETag changes whenever the collection content changes.
	ETag string
	// LastModified is the time of the last content change.
	LastModified time.Time
}

func (c *Collection) isResource() {}

// Tag returns the collection's type tag, or "" for a plain directory.
func (c *Collection) Tag() string {
	if c.Props == nil {
		return ""
	}
	return c.Props[MetaTag]
}

// Meta returns the metadata value for key, or "".
func (c *Collection) Meta(key string) string {
	if c.Props == nil {
		return ""
	}
	return c.Props[key]
}

// Item is a single calendar object or contact inside a tagged
// collection.
type Item struct {
	// Collection is the owning collection, set by discovery.
	Collection *Collection
	// Href is the item's path segment within the collection.
	Href string
	// UID is the iCalendar/vCard unique identifier, distinct from
	// Href and unique within the collection.
	UID string
	// ETag changes on every content change.
	ETag string
	// LastModified is the time of the last content change.
	LastModified time.Time
	// Name is the component name: VEVENT, VTODO, VJOURNAL or VCARD.
	Name string

	// Calendar is set for calendar items; it wraps the item's
	// components in a full VCALENDAR document.
	Calendar *ical.Calendar
	// Card is set for address book items.
	Card vcard.Card
}

func (i *Item) isResource() {}

// Serialize returns the item's wire form (iCalendar or vCard).
func (i *Item) Serialize() (string, error) {
	var buf bytes.Buffer
	switch {
	case i.Calendar != nil:
		if err := ical.NewEncoder(&buf).Encode(i.Calendar); err != nil {
			return "", fmt.Errorf("encode calendar item %q: %w", i.Href, err)
		}
	case i.Card != nil:
		if err := vcard.NewEncoder(&buf).Encode(i.Card); err != nil {
			return "", fmt.Errorf("encode vcard item %q: %w", i.Href, err)
		}
	default:
		return "", fmt.Errorf("item %q has no content", i.Href)
	}
	return buf.String(), nil
}

// Prepare computes the item's Name, UID and ETag from its content.
// Must be called before the item is handed to the storage backend.
func (i *Item) Prepare() error {
	switch {
	case i.Calendar != nil:
		for _, child := range i.Calendar.Children {
			switch child.Name {
			case ical.CompEvent, ical.CompToDo, ical.CompJournal:
				i.Name = child.Name
				i.UID, _ = child.Props.Text(ical.PropUID)
			}
		}
		if i.Name == "" {
			return fmt.Errorf("%w: calendar object without component", ErrInvalidInput)
		}
	case i.Card != nil:
		i.Name = "VCARD"
		if f := i.Card.Get(vcard.FieldUID); f != nil {
			i.UID = f.Value
		}
	default:
		return fmt.Errorf("%w: empty item", ErrInvalidInput)
	}
	text, err := i.Serialize()
	if err != nil {
		return err
	}
	i.ETag = EntityTag(text)
	return nil
}

// EntityTag derives a quoted entity tag from serialized content.
func EntityTag(text string) string {
	return fmt.Sprintf("%q", fmt.Sprintf("%x", sha256.Sum256([]byte(text))))
}
