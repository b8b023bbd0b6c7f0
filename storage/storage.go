package storage

import "errors"

var (
	// ErrNotFound is returned when a requested resource doesn't exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidInput is returned when a mutation is asked to store
	// malformed content or properties.
	ErrInvalidInput = errors.New("invalid input")
)

// LockMode selects the scope of a tree lock.
type LockMode string

const (
	// LockRead is shared with other readers.
	LockRead LockMode = "r"
	// LockWrite excludes all other readers and writers.
	LockWrite LockMode = "w"
)

// Storage is the hierarchical backend consumed by the protocol core.
// The core never persists resources itself; it discovers, inspects and
// mutates them through this interface.
//
// Every discover-then-mutate sequence must run under one continuously
// held lock from AcquireLock. The mutation methods do not lock on
// their own.
type Storage interface {
	// AcquireLock blocks until a lock of the given mode is held and
	// returns its release function. Write locks are exclusive
	// against all other locks, read locks only against writers.
	AcquireLock(mode LockMode, user string) (release func(), err error)

	// Discover resolves path to resources. The first result, if any,
	// is the resource at path itself (a *Collection for
	// collection-shaped paths, an *Item otherwise). With depth other
	// than "0" the direct members of a collection follow. An unknown
	// path yields an empty slice, not an error.
	Discover(path string, depth string) ([]Resource, error)

	// CreateCollection creates or atomically replaces the collection
	// at path with the given items and properties. Missing parent
	// collections are created as plain directories.
	CreateCollection(path string, items []*Item, props map[string]string) (*Collection, error)

	// Upload stores item under href inside col, replacing any
	// existing item with that href, and returns the stored item with
	// its new entity tag.
	Upload(col *Collection, href string, item *Item) (*Item, error)

	// Move transfers item into col under toHref, replacing any
	// existing item with that href.
	Move(item *Item, col *Collection, toHref string) error

	// Delete removes a collection (including all members) or a
	// single item.
	Delete(res Resource) error

	// HasUID reports whether col contains an item with the given
	// UID.
	HasUID(col *Collection, uid string) (bool, error)

	// SetProps applies property changes to a collection.
	SetProps(col *Collection, set map[string]string, remove []string) error

	// Items returns all items of a tagged collection.
	Items(col *Collection) ([]*Item, error)

	// Serialize returns the whole-collection wire form of a tagged
	// collection (a single iCalendar document or concatenated
	// vCards).
	Serialize(col *Collection) (string, error)
}
