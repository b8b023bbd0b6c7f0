package xmlutil

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/davrock/davrock/storage"
)

// timeRangeFormat is the UTC format of C:time-range attributes.
const timeRangeFormat = "20060102T150405Z"

// calendarFilter is the parsed C:filter of a calendar-query.
type calendarFilter struct {
	component string // VEVENT, VTODO, VJOURNAL or "" for any
	start     time.Time
	end       time.Time
}

// applyCalendarFilter evaluates a calendar-query's comp-filter chain
// over the collection items.
func applyCalendarFilter(root *etree.Element, items []*storage.Item) ([]*storage.Item, error) {
	filter, err := parseCalendarFilter(root)
	if err != nil {
		return nil, err
	}
	var out []*storage.Item
	for _, item := range items {
		if item.Calendar == nil {
			continue
		}
		if filter.component != "" && item.Name != filter.component {
			continue
		}
		if !filter.start.IsZero() || !filter.end.IsZero() {
			match, err := itemInRange(item, filter.start, filter.end)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func parseCalendarFilter(root *etree.Element) (calendarFilter, error) {
	filter := calendarFilter{}
	for _, f := range childrenNamed(root, name{NSCalDAV, "filter"}) {
		for _, outer := range childrenNamed(f, name{NSCalDAV, "comp-filter"}) {
			if outer.SelectAttrValue("name", "") != ical.CompCalendar {
				return filter, fmt.Errorf("%w: outer comp-filter must target VCALENDAR", storage.ErrInvalidInput)
			}
			for _, inner := range childrenNamed(outer, name{NSCalDAV, "comp-filter"}) {
				filter.component = inner.SelectAttrValue("name", "")
				for _, tr := range childrenNamed(inner, name{NSCalDAV, "time-range"}) {
					var err error
					if v := tr.SelectAttrValue("start", ""); v != "" {
						if filter.start, err = time.Parse(timeRangeFormat, v); err != nil {
							return filter, fmt.Errorf("%w: bad time-range start %q", storage.ErrInvalidInput, v)
						}
					}
					if v := tr.SelectAttrValue("end", ""); v != "" {
						if filter.end, err = time.Parse(timeRangeFormat, v); err != nil {
							return filter, fmt.Errorf("%w: bad time-range end %q", storage.ErrInvalidInput, v)
						}
					}
				}
			}
		}
	}
	return filter, nil
}

// itemInRange reports whether any occurrence of the item overlaps the
// interval, expanding recurrence rules when present.
func itemInRange(item *storage.Item, start, end time.Time) (bool, error) {
	if start.IsZero() {
		start = time.Unix(0, 0).UTC()
	}
	if end.IsZero() {
		end = start.AddDate(100, 0, 0)
	}
	for _, comp := range item.Calendar.Children {
		switch comp.Name {
		case ical.CompEvent, ical.CompToDo, ical.CompJournal:
		default:
			continue
		}
		dtstart, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC)
		if err != nil || dtstart.IsZero() {
			// Components without a start always match (the client
			// cannot be given less than it asked for).
			return true, nil
		}
		duration := componentDuration(comp)

		if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
			opt, err := rrule.StrToROption(prop.Value)
			if err != nil {
				return false, fmt.Errorf("%w: bad RRULE %q", storage.ErrInvalidInput, prop.Value)
			}
			opt.Dtstart = dtstart
			rule, err := rrule.NewRRule(*opt)
			if err != nil {
				return false, fmt.Errorf("%w: bad RRULE %q", storage.ErrInvalidInput, prop.Value)
			}
			// An occurrence overlaps if it starts before the range
			// ends and ends after the range starts. The range is
			// half-open, so an occurrence starting exactly at end is
			// out.
			occurrences := rule.Between(start.Add(-duration), end.Add(-time.Nanosecond), true)
			if len(occurrences) > 0 {
				return true, nil
			}
			continue
		}

		dtend := dtstart.Add(duration)
		if dtstart.Before(end) && dtend.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func componentDuration(comp *ical.Component) time.Duration {
	if dtend, err := comp.Props.DateTime(ical.PropDateTimeEnd, time.UTC); err == nil && !dtend.IsZero() {
		if dtstart, err := comp.Props.DateTime(ical.PropDateTimeStart, time.UTC); err == nil {
			if d := dtend.Sub(dtstart); d > 0 {
				return d
			}
		}
	}
	if prop := comp.Props.Get(ical.PropDuration); prop != nil {
		if d, err := prop.Duration(); err == nil && d > 0 {
			return d
		}
	}
	return time.Hour
}
