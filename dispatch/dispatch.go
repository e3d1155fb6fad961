// Package dispatch implements the signal dispatcher (spec.md §4.5): the
// three inbound signal handlers that keep the interface map, owner table,
// and association engine current at steady state, after the introspection
// engine's initial scan has populated them.
package dispatch

import (
	"github.com/openbmc-project/mapperd/assoc"
	"github.com/openbmc-project/mapperd/introspect"
	"github.com/openbmc-project/mapperd/namefilter"
	"github.com/openbmc-project/mapperd/objectmap"
	"github.com/openbmc-project/mapperd/ownertable"
)

// Introspector starts (re-)introspecting a peer in the background; this is
// spec.md §4.3's incremental entrypoint, triggered here by a name-owner
// change rather than by the initial scan.
type Introspector interface {
	Introspect(service string)
}

// InterfaceProps is one element of an InterfacesAdded payload: an interface
// name together with the properties it was added with (spec.md §4.5).
type InterfaceProps struct {
	Name       string
	Properties map[string]interface{}
}

// Dispatcher wires the owner table, interface map, and association engine
// together. It implements introspect.Sink directly, so the same
// AddInterface/Associations code paths that apply introspection results
// also apply InterfacesAdded payloads — spec.md §5 calls this out
// explicitly: "Both paths are idempotent inserts/deletes... so concurrent
// application converges." Like the state it wraps, Dispatcher takes no
// locks; it is owned and called only from the single event-loop goroutine.
type Dispatcher struct {
	owners       *ownertable.Table
	objects      *objectmap.Map
	assoc        *assoc.Engine
	filter       *namefilter.Filter
	introspector Introspector
}

// New returns a Dispatcher over the given state and collaborators.
func New(owners *ownertable.Table, objects *objectmap.Map, assocEngine *assoc.Engine, filter *namefilter.Filter, introspector Introspector) *Dispatcher {
	return &Dispatcher{
		owners:       owners,
		objects:      objects,
		assoc:        assocEngine,
		filter:       filter,
		introspector: introspector,
	}
}

// AddInterface implements introspect.Sink. It is also called directly by
// OnInterfacesAdded, after that handler applies the same ignore list
// introspection uses (introspect.Ignored).
func (d *Dispatcher) AddInterface(path, service, iface string) {
	existed := d.objects.Has(path)
	d.objects.Add(path, service, iface)
	if !existed {
		d.assoc.ResolvePending(path)
	}
}

// Associations implements introspect.Sink: it forwards a source path's raw
// associations property to the association engine, exactly as spec.md
// §4.3 step 3 and §4.5's InterfacesAdded handling both require.
func (d *Dispatcher) Associations(path, service string, triples []introspect.Triple) {
	d.assoc.AssociationChanged(path, service, convertTriples(triples))
}

// OnNameOwnerChanged implements spec.md §4.5's OnNameOwnerChanged.
func (d *Dispatcher) OnNameOwnerChanged(name, oldOwner, newOwner string) {
	if oldOwner != "" {
		d.owners.Forget(oldOwner)
		for _, path := range d.objects.RemoveService(name) {
			// Harmless if name never asserted associations at path: PurgeOwner
			// no-ops when there is no AssociationOwners entry to remove.
			d.assoc.PurgeOwner(path, name)
		}
	}
	if newOwner != "" && d.filter.Allows(name) {
		d.owners.Remember(newOwner, name)
		d.introspector.Introspect(name)
	}
}

// OnInterfacesAdded implements spec.md §4.5's OnInterfacesAdded. sender is
// the signal's sending unique name; payload is the interface/property list
// InterfacesAdded carries.
func (d *Dispatcher) OnInterfacesAdded(sender string, objPath string, payload []InterfaceProps) {
	service, ok := d.resolveSender(sender)
	if !ok {
		return
	}
	for _, ip := range payload {
		if ip.Name == "" || introspect.Ignored(ip.Name) {
			continue
		}
		d.AddInterface(objPath, service, ip.Name)
		if ip.Name != introspect.AssociationsInterface {
			continue
		}
		raw, ok := ip.Properties[introspect.AssociationsProperty]
		if !ok {
			continue
		}
		triples, err := introspect.DecodeTriples(raw)
		if err != nil {
			continue // malformed input from a peer: drop per spec.md §7
		}
		d.Associations(objPath, service, triples)
	}
}

// OnInterfacesRemoved implements spec.md §4.5's OnInterfacesRemoved.
func (d *Dispatcher) OnInterfacesRemoved(sender string, objPath string, interfaces []string) {
	service, ok := d.resolveSender(sender)
	if !ok {
		return
	}
	for _, iface := range interfaces {
		d.objects.Remove(objPath, service, iface)
		if iface == introspect.AssociationsInterface {
			d.assoc.PurgeOwner(objPath, service)
		}
	}
}

// resolveSender maps a signal's sender to the well-known name the rest of
// the daemon indexes by. A unique (":"-prefixed) sender is resolved through
// the owner table (spec.md §4.2); if that fails, the signal is dropped, since
// the sender isn't a tracked peer. Any other non-empty sender is taken as a
// well-known name and used as-is.
func (d *Dispatcher) resolveSender(sender string) (string, bool) {
	if sender == "" {
		return "", false
	}
	if sender[0] != ':' {
		return sender, true
	}
	return d.owners.Resolve(sender)
}

func convertTriples(in []introspect.Triple) []assoc.Triple {
	out := make([]assoc.Triple, len(in))
	for i, t := range in {
		out[i] = assoc.Triple{Forward: t.Forward, Reverse: t.Reverse, Endpoint: t.Endpoint}
	}
	return out
}
