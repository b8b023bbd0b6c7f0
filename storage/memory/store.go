// Package memory provides the reference in-memory storage backend.
// The whole resource tree is guarded by one reader/writer lock handed
// out through AcquireLock; mutation methods assume the caller holds a
// write lock.
package memory

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"

	"github.com/davrock/davrock/storage"
)

type node struct {
	col   *storage.Collection
	items map[string]*storage.Item // keyed by href
}

// Store implements storage.Storage backed by process memory.
type Store struct {
	mu     sync.RWMutex
	nodes  map[string]*node // keyed by trimmed path, "" is the root
	logger *slog.Logger
}

// New creates an empty store containing only the root collection.
func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{nodes: make(map[string]*node), logger: logger}
	s.nodes[""] = &node{
		col:   &storage.Collection{Path: "", Props: map[string]string{}},
		items: make(map[string]*storage.Item),
	}
	return s
}

// AcquireLock implements storage.Storage.
func (s *Store) AcquireLock(mode storage.LockMode, user string) (func(), error) {
	switch mode {
	case storage.LockRead:
		s.mu.RLock()
		return s.mu.RUnlock, nil
	case storage.LockWrite:
		s.mu.Lock()
		return s.mu.Unlock, nil
	}
	return nil, fmt.Errorf("%w: unknown lock mode %q", storage.ErrInvalidInput, mode)
}

// Discover implements storage.Storage.
func (s *Store) Discover(path string, depth string) ([]storage.Resource, error) {
	key := storage.TrimPath(path)
	if n, ok := s.nodes[key]; ok {
		results := []storage.Resource{n.col}
		if depth != "0" && depth != "" {
			for _, href := range sortedHrefs(n.items) {
				results = append(results, s.itemView(n, href))
			}
			for _, child := range s.childCollections(key) {
				results = append(results, child)
			}
		}
		return results, nil
	}
	// Not a collection: try an item of the parent collection.
	parent, href := storage.TrimPath(storage.ParentPath(path)), storage.Href(path)
	if n, ok := s.nodes[parent]; ok && href != "" {
		if _, ok := n.items[href]; ok {
			return []storage.Resource{s.itemView(n, href)}, nil
		}
	}
	return nil, nil
}

// CreateCollection implements storage.Storage.
func (s *Store) CreateCollection(path string, items []*storage.Item, props map[string]string) (*storage.Collection, error) {
	if err := storage.CheckAndSanitizeProps(props); err != nil {
		return nil, err
	}
	key := storage.TrimPath(path)
	// Create missing parents as plain directories.
	for parent := parentKey(key); parent != ""; parent = parentKey(parent) {
		if _, ok := s.nodes[parent]; !ok {
			s.nodes[parent] = newNode(parent, nil)
		}
	}
	if props == nil {
		props = map[string]string{}
	}
	n := newNode(key, props)
	for _, item := range items {
		href := item.UID + ".ics"
		if item.Card != nil {
			href = item.UID + ".vcf"
		}
		stored := *item
		stored.Href = href
		stored.Collection = n.col
		stored.LastModified = time.Now()
		n.items[href] = &stored
	}
	s.nodes[key] = n
	s.refresh(n)
	s.logger.Debug("collection created", "path", key, "tag", n.col.Tag(), "items", len(items))
	return n.col, nil
}

// Upload implements storage.Storage.
func (s *Store) Upload(col *storage.Collection, href string, item *storage.Item) (*storage.Item, error) {
	n, ok := s.nodes[col.Path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !storage.IsSafePathComponent(href) {
		return nil, fmt.Errorf("%w: unsafe href %q", storage.ErrInvalidInput, href)
	}
	stored := *item
	stored.Href = href
	stored.Collection = n.col
	stored.LastModified = time.Now()
	n.items[href] = &stored
	s.refresh(n)
	return &stored, nil
}

// Move implements storage.Storage.
func (s *Store) Move(item *storage.Item, col *storage.Collection, toHref string) error {
	from, ok := s.nodes[item.Collection.Path]
	if !ok {
		return storage.ErrNotFound
	}
	to, ok := s.nodes[col.Path]
	if !ok {
		return storage.ErrNotFound
	}
	if !storage.IsSafePathComponent(toHref) {
		return fmt.Errorf("%w: unsafe href %q", storage.ErrInvalidInput, toHref)
	}
	moved, ok := from.items[item.Href]
	if !ok {
		return storage.ErrNotFound
	}
	delete(from.items, item.Href)
	stored := *moved
	stored.Href = toHref
	stored.Collection = to.col
	stored.LastModified = time.Now()
	to.items[toHref] = &stored
	s.refresh(from)
	s.refresh(to)
	return nil
}

// Delete implements storage.Storage.
func (s *Store) Delete(res storage.Resource) error {
	switch r := res.(type) {
	case *storage.Collection:
		if _, ok := s.nodes[r.Path]; !ok {
			return storage.ErrNotFound
		}
		prefix := r.Path + "/"
		for key := range s.nodes {
			if key == r.Path || strings.HasPrefix(key, prefix) {
				delete(s.nodes, key)
			}
		}
		if r.Path == "" {
			// The root itself always exists.
			s.nodes[""] = newNode("", nil)
		}
		return nil
	case *storage.Item:
		n, ok := s.nodes[r.Collection.Path]
		if !ok {
			return storage.ErrNotFound
		}
		if _, ok := n.items[r.Href]; !ok {
			return storage.ErrNotFound
		}
		delete(n.items, r.Href)
		s.refresh(n)
		return nil
	}
	return fmt.Errorf("%w: unknown resource", storage.ErrInvalidInput)
}

// HasUID implements storage.Storage.
func (s *Store) HasUID(col *storage.Collection, uid string) (bool, error) {
	n, ok := s.nodes[col.Path]
	if !ok {
		return false, storage.ErrNotFound
	}
	for _, item := range n.items {
		if item.UID == uid {
			return true, nil
		}
	}
	return false, nil
}

// SetProps implements storage.Storage.
func (s *Store) SetProps(col *storage.Collection, set map[string]string, remove []string) error {
	n, ok := s.nodes[col.Path]
	if !ok {
		return storage.ErrNotFound
	}
	next := map[string]string{}
	for k, v := range n.col.Props {
		next[k] = v
	}
	for k, v := range set {
		next[k] = v
	}
	for _, k := range remove {
		if k == storage.MetaTag {
			return fmt.Errorf("%w: cannot remove collection tag", storage.ErrInvalidInput)
		}
		delete(next, k)
	}
	if err := storage.CheckAndSanitizeProps(next); err != nil {
		return err
	}
	n.col.Props = next
	s.refresh(n)
	return nil
}

// Items implements storage.Storage.
func (s *Store) Items(col *storage.Collection) ([]*storage.Item, error) {
	n, ok := s.nodes[col.Path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	items := make([]*storage.Item, 0, len(n.items))
	for _, href := range sortedHrefs(n.items) {
		items = append(items, s.itemView(n, href))
	}
	return items, nil
}

// Serialize implements storage.Storage.
func (s *Store) Serialize(col *storage.Collection) (string, error) {
	items, err := s.Items(col)
	if err != nil {
		return "", err
	}
	switch col.Tag() {
	case storage.TagCalendar:
		cal := ical.NewCalendar()
		cal.Props.SetText(ical.PropVersion, "2.0")
		cal.Props.SetText(ical.PropProductID, "-//davrock//davrock//EN")
		for _, item := range items {
			if item.Calendar == nil {
				continue
			}
			for _, child := range item.Calendar.Children {
				if child.Name != ical.CompTimezone || !hasComponent(cal, child) {
					cal.Children = append(cal.Children, child)
				}
			}
		}
		var b strings.Builder
		if err := ical.NewEncoder(&b).Encode(cal); err != nil {
			return "", fmt.Errorf("serialize collection %q: %w", col.Path, err)
		}
		return b.String(), nil
	case storage.TagAddressBook:
		var b strings.Builder
		for _, item := range items {
			text, err := item.Serialize()
			if err != nil {
				return "", err
			}
			b.WriteString(text)
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("%w: collection %q has no tag", storage.ErrInvalidInput, col.Path)
}

func newNode(key string, props map[string]string) *node {
	if props == nil {
		props = map[string]string{}
	}
	return &node{
		col:   &storage.Collection{Path: key, Props: props, LastModified: time.Now()},
		items: make(map[string]*storage.Item),
	}
}

// refresh recomputes the collection entity tag after a mutation.
func (s *Store) refresh(n *node) {
	var b strings.Builder
	for _, href := range sortedHrefs(n.items) {
		b.WriteString(href)
		b.WriteString(n.items[href].ETag)
	}
	keys := make([]string, 0, len(n.col.Props))
	for k := range n.col.Props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(k + "=" + n.col.Props[k] + ";")
	}
	n.col.ETag = storage.EntityTag(b.String())
	n.col.LastModified = time.Now()
}

// itemView returns a copy of the stored item bound to its collection,
// so callers cannot mutate backing state outside the lock.
func (s *Store) itemView(n *node, href string) *storage.Item {
	view := *n.items[href]
	view.Collection = n.col
	return &view
}

func (s *Store) childCollections(key string) []*storage.Collection {
	var children []*storage.Collection
	var keys []string
	for candidate := range s.nodes {
		if candidate != "" && parentKey(candidate) == key && candidate != key {
			keys = append(keys, candidate)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		children = append(children, s.nodes[k].col)
	}
	return children
}

func parentKey(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[:i]
	}
	return ""
}

func sortedHrefs(items map[string]*storage.Item) []string {
	hrefs := make([]string, 0, len(items))
	for href := range items {
		hrefs = append(hrefs, href)
	}
	sort.Strings(hrefs)
	return hrefs
}

func hasComponent(cal *ical.Calendar, comp *ical.Component) bool {
	id, _ := comp.Props.Text(ical.PropTimezoneID)
	for _, child := range cal.Children {
		if child.Name != ical.CompTimezone {
			continue
		}
		existing, _ := child.Props.Text(ical.PropTimezoneID)
		if existing == id {
			return true
		}
	}
	return false
}
