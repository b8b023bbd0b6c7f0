package storage

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
)

const prodID = "-//davrock//davrock//EN"

// Components holds the parsed top-level components of an upload body:
// zero or more iCalendar documents, or zero or more vCards.
type Components struct {
	Calendars []*ical.Calendar
	Cards     []vcard.Card
}

// Count returns the number of top-level components.
func (c *Components) Count() int {
	return len(c.Calendars) + len(c.Cards)
}

// ParseComponents reads all top-level components from an upload body.
// The format is detected from the first BEGIN line.
func ParseComponents(body string) (*Components, error) {
	comps := &Components{}
	trimmed := strings.TrimSpace(body)
	switch {
	case trimmed == "":
		return comps, nil
	case strings.HasPrefix(trimmed, "BEGIN:VCALENDAR"):
		dec := ical.NewDecoder(strings.NewReader(body))
		for {
			cal, err := dec.Decode()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			comps.Calendars = append(comps.Calendars, cal)
		}
	case strings.HasPrefix(trimmed, "BEGIN:VCARD"):
		dec := vcard.NewDecoder(strings.NewReader(body))
		for {
			card, err := dec.Decode()
			if err == io.EOF {
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			comps.Cards = append(comps.Cards, card)
		}
	default:
		return nil, fmt.Errorf("%w: unrecognized component stream", ErrInvalidInput)
	}
	return comps, nil
}

// PredictTagOfWholeCollection guesses the tag a whole-collection
// import would give the target collection, falling back to the tag
// derived from the request media type.
func PredictTagOfWholeCollection(c *Components, fallbackTag string) string {
	if len(c.Calendars) == 1 && len(c.Cards) == 0 {
		return TagCalendar
	}
	if len(c.Cards) > 0 && len(c.Calendars) == 0 {
		return TagAddressBook
	}
	return fallbackTag
}

// PredictTagOfParentCollection guesses the tag of the collection a
// single-item upload would land in.
func PredictTagOfParentCollection(c *Components) string {
	if c.Count() != 1 {
		return ""
	}
	if len(c.Calendars) == 1 {
		return TagCalendar
	}
	return TagAddressBook
}

// CheckAndSanitizeProps validates collection properties before they
// reach the backend.
func CheckAndSanitizeProps(props map[string]string) error {
	switch props[MetaTag] {
	case "", TagCalendar, TagAddressBook:
		return nil
	}
	return fmt.Errorf("%w: unsupported collection tag %q", ErrInvalidInput, props[MetaTag])
}

// SplitCollectionItems converts a whole-collection upload body into
// the stored items of the collection. For a calendar the top-level
// document's events, to-dos and journals are regrouped by UID, each
// UID becoming one item; for an address book each card becomes one
// item. Cards without a UID get a generated one.
func SplitCollectionItems(c *Components, tag string) ([]*Item, error) {
	var items []*Item
	switch tag {
	case TagCalendar:
		if len(c.Calendars) != 1 || len(c.Cards) != 0 {
			return nil, fmt.Errorf("%w: expected a single calendar document", ErrInvalidInput)
		}
		src := c.Calendars[0]
		var timezones, comps []*ical.Component
		for _, child := range src.Children {
			switch child.Name {
			case ical.CompTimezone:
				timezones = append(timezones, child)
			case ical.CompEvent, ical.CompToDo, ical.CompJournal:
				comps = append(comps, child)
			}
		}
		byUID := make(map[string][]*ical.Component)
		var order []string
		for _, comp := range comps {
			uid, err := comp.Props.Text(ical.PropUID)
			if err != nil || uid == "" {
				return nil, fmt.Errorf("%w: %s without UID", ErrInvalidInput, comp.Name)
			}
			if _, seen := byUID[uid]; !seen {
				order = append(order, uid)
			}
			byUID[uid] = append(byUID[uid], comp)
		}
		sort.Strings(order)
		for _, uid := range order {
			cal := newCalendarDocument()
			cal.Children = append(cal.Children, timezones...)
			cal.Children = append(cal.Children, byUID[uid]...)
			item := &Item{Calendar: cal}
			if err := item.Prepare(); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	case TagAddressBook:
		if len(c.Calendars) != 0 {
			return nil, fmt.Errorf("%w: calendar data in address book import", ErrInvalidInput)
		}
		for _, card := range c.Cards {
			if card.Get(vcard.FieldUID) == nil {
				card.SetValue(vcard.FieldUID, uuid.NewString())
			}
			item := &Item{Card: card}
			if err := item.Prepare(); err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported collection tag %q", ErrInvalidInput, tag)
	}
	return items, nil
}

// SingleItem converts a single-item upload body into the item to
// store. Exactly one top-level component is expected.
func SingleItem(c *Components, tag string) (*Item, error) {
	if c.Count() != 1 {
		return nil, fmt.Errorf("%w: expected exactly one component, got %d", ErrInvalidInput, c.Count())
	}
	var item *Item
	switch tag {
	case TagCalendar:
		if len(c.Calendars) != 1 {
			return nil, fmt.Errorf("%w: calendar collection expects calendar data", ErrInvalidInput)
		}
		item = &Item{Calendar: c.Calendars[0]}
	case TagAddressBook:
		if len(c.Cards) != 1 {
			return nil, fmt.Errorf("%w: address book expects vcard data", ErrInvalidInput)
		}
		item = &Item{Card: c.Cards[0]}
	default:
		return nil, fmt.Errorf("%w: unsupported collection tag %q", ErrInvalidInput, tag)
	}
	if err := item.Prepare(); err != nil {
		return nil, err
	}
	if item.UID == "" {
		return nil, fmt.Errorf("%w: component without UID", ErrInvalidInput)
	}
	return item, nil
}

// CollectionPropsFromCalendar fills displayname and description
// properties from a calendar document's own metadata, if present.
func CollectionPropsFromCalendar(cal *ical.Calendar, props map[string]string) {
	if name, err := cal.Props.Text("X-WR-CALNAME"); err == nil && name != "" {
		props["D:displayname"] = name
	}
	if desc, err := cal.Props.Text("X-WR-CALDESC"); err == nil && desc != "" {
		props["C:calendar-description"] = desc
	}
}

func newCalendarDocument() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)
	return cal
}
