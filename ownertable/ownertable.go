// Package ownertable implements the owner table (spec.md §4.2): a partial
// inverse of the bus's unique-name → well-known-name mapping, used to
// attribute InterfacesAdded/InterfacesRemoved signals (which identify their
// sender by unique name) back to the well-known service name the rest of
// the daemon indexes by.
package ownertable

// Table maps a transient unique name (e.g. ":1.42") to the well-known
// service name it currently owns. Like objectmap.Map, it is owned by the
// single event-loop goroutine and takes no locks (spec.md §5).
type Table struct {
	owners map[string]string // unique name -> well-known name
}

// New returns an empty Table.
func New() *Table {
	return &Table{owners: map[string]string{}}
}

// Remember records that unique owns service, e.g. on first sighting or when
// NameOwnerChanged delivers a non-empty newOwner for service.
func (t *Table) Remember(unique, service string) {
	t.owners[unique] = service
}

// Forget removes unique's entry, e.g. when NameOwnerChanged delivers unique
// as oldOwner with an empty newOwner.
func (t *Table) Forget(unique string) {
	delete(t.owners, unique)
}

// Resolve returns the well-known name owned by unique, and whether it is
// tracked at all. Signal handlers that can't resolve their sender must drop
// the signal (spec.md §4.2).
func (t *Table) Resolve(unique string) (string, bool) {
	name, ok := t.owners[unique]
	return name, ok
}
