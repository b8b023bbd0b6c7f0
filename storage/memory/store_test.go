package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davrock/davrock/storage"
)

const testEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:%s\r\n" +
	"DTSTAMP:20240101T000000Z\r\n" +
	"DTSTART:20240105T100000Z\r\n" +
	"SUMMARY:test event\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func calendarItem(t *testing.T, uid string) *storage.Item {
	t.Helper()
	comps, err := storage.ParseComponents(strings.ReplaceAll(testEvent, "%s", uid))
	require.NoError(t, err)
	item, err := storage.SingleItem(comps, storage.TagCalendar)
	require.NoError(t, err)
	return item
}

func newCalendar(t *testing.T, s *Store, path string, items ...*storage.Item) *storage.Collection {
	t.Helper()
	col, err := s.CreateCollection(path, items,
		map[string]string{storage.MetaTag: storage.TagCalendar})
	require.NoError(t, err)
	return col
}

func TestDiscover(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/", calendarItem(t, "uid-1"))

	// Depth 0 yields only the collection itself.
	res, err := s.Discover("/alice/work/", "0")
	require.NoError(t, err)
	require.Len(t, res, 1)
	got, ok := res[0].(*storage.Collection)
	require.True(t, ok)
	assert.Equal(t, "alice/work", got.Path)
	assert.Equal(t, col.ETag, got.ETag)

	// Depth 1 adds the members.
	res, err = s.Discover("/alice/work/", "1")
	require.NoError(t, err)
	require.Len(t, res, 2)
	item, ok := res[1].(*storage.Item)
	require.True(t, ok)
	assert.Equal(t, "uid-1.ics", item.Href)
	assert.Equal(t, "uid-1", item.UID)

	// An item path resolves to the item.
	res, err = s.Discover("/alice/work/uid-1.ics", "0")
	require.NoError(t, err)
	require.Len(t, res, 1)
	_, ok = res[0].(*storage.Item)
	assert.True(t, ok)

	// Missing parents were created as plain directories.
	res, err = s.Discover("/alice/", "0")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "", res[0].(*storage.Collection).Tag())

	// Unknown paths yield nothing.
	res, err = s.Discover("/bob/", "0")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestUploadChangesCollectionETag(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/")
	before := col.ETag

	stored, err := s.Upload(col, "event.ics", calendarItem(t, "uid-1"))
	require.NoError(t, err)
	assert.Equal(t, "event.ics", stored.Href)
	assert.NotEmpty(t, stored.ETag)

	res, err := s.Discover("/alice/work/", "0")
	require.NoError(t, err)
	assert.NotEqual(t, before, res[0].(*storage.Collection).ETag)
}

func TestUploadRejectsUnsafeHref(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/")
	_, err := s.Upload(col, "../escape.ics", calendarItem(t, "uid-1"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestMove(t *testing.T) {
	s := New(nil)
	from := newCalendar(t, s, "/alice/work/", calendarItem(t, "uid-1"))
	to := newCalendar(t, s, "/alice/home/")

	res, err := s.Discover("/alice/work/uid-1.ics", "0")
	require.NoError(t, err)
	item := res[0].(*storage.Item)

	require.NoError(t, s.Move(item, to, "moved.ics"))

	res, err = s.Discover("/alice/work/uid-1.ics", "0")
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = s.Discover("/alice/home/moved.ics", "0")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "moved.ics", res[0].(*storage.Item).Href)
	_ = from
}

func TestDelete(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/", calendarItem(t, "uid-1"))

	res, err := s.Discover("/alice/work/uid-1.ics", "0")
	require.NoError(t, err)
	require.NoError(t, s.Delete(res[0]))
	res, err = s.Discover("/alice/work/uid-1.ics", "0")
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, s.Delete(col))
	res, err = s.Discover("/alice/work/", "0")
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestHasUID(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/", calendarItem(t, "uid-1"))

	has, err := s.HasUID(col, "uid-1")
	require.NoError(t, err)
	assert.True(t, has)
	has, err = s.HasUID(col, "uid-2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSetPropsKeepsTag(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/")

	require.NoError(t, s.SetProps(col,
		map[string]string{"D:displayname": "Work"}, nil))
	res, err := s.Discover("/alice/work/", "0")
	require.NoError(t, err)
	got := res[0].(*storage.Collection)
	assert.Equal(t, "Work", got.Meta("D:displayname"))
	assert.Equal(t, storage.TagCalendar, got.Tag())

	err = s.SetProps(col, nil, []string{storage.MetaTag})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestSerializeMergesCalendars(t *testing.T) {
	s := New(nil)
	col := newCalendar(t, s, "/alice/work/",
		calendarItem(t, "uid-1"), calendarItem(t, "uid-2"))

	text, err := s.Serialize(col)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(text, "BEGIN:VCALENDAR"))
	assert.Equal(t, 2, strings.Count(text, "BEGIN:VEVENT"))
	assert.Contains(t, text, "UID:uid-1")
	assert.Contains(t, text, "UID:uid-2")

	// Untagged collections have no serialized form.
	plain, err := s.CreateCollection("/alice/misc/", nil, nil)
	require.NoError(t, err)
	_, err = s.Serialize(plain)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
