// Package assoc implements the association engine (spec.md §3.2/§4.6): it
// mirrors each owner's asserted (forward, reverse, endpoint) triples into a
// pair of derived, bus-visible endpoint lists and reconciles them whenever a
// triple set changes, an owner disappears, or a previously-unknown endpoint
// path is introspected.
package assoc

import "github.com/scylladb/go-set/strset"

// Triple is one raw (forward, reverse, endpoint) association as asserted by
// an owner on a source path, before empty/invalid entries are dropped (I6).
type Triple struct {
	Forward  string
	Reverse  string
	Endpoint string
}

// Exporter creates, updates, and tears down the bus-visible Association
// object behind one derived path. The association engine owns the handle
// conceptually (spec.md §9's "shared/mutable handles to exported objects");
// Exporter is how it reaches the actual bus-side resource without this
// package knowing about *dbus.Conn.
type Exporter interface {
	// Publish creates the object on first call for path, or updates its
	// endpoints property on every subsequent call.
	Publish(path string, endpoints []string)
	// Unpublish tears down the object. Called exactly once, after the last
	// endpoint has been removed from path.
	Unpublish(path string)
}

// endpointList is an ordered, duplicate-free sequence of endpoint paths:
// order for stable property output, the set for O(1) uniqueness checks on
// insert (spec.md §4.6's "endpoint-list semantics").
type endpointList struct {
	order []string
	set   *strset.Set
}

func newEndpointList() *endpointList {
	return &endpointList{set: strset.New()}
}

func (l *endpointList) add(ep string) bool {
	if l.set.Has(ep) {
		return false
	}
	l.set.Add(ep)
	l.order = append(l.order, ep)
	return true
}

func (l *endpointList) remove(ep string) bool {
	if !l.set.Has(ep) {
		return false
	}
	l.set.Remove(ep)
	for i, e := range l.order {
		if e == ep {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return true
}

func (l *endpointList) empty() bool { return len(l.order) == 0 }

// Engine implements the association engine. Like objectmap.Map and
// ownertable.Table it takes no locks; it is mutated and read only from the
// single event-loop goroutine (spec.md §5).
type Engine struct {
	exporter Exporter
	hasPath  func(path string) bool

	// Psrc -> owner -> Pda -> set<endpoint>: the layout each owner last
	// asserted (spec.md §3.1 AssociationOwners).
	owners map[string]map[string]map[string]*strset.Set

	// Pda -> ordered endpoint list (spec.md §3.1 AssociationInterfaces).
	ifaces map[string]*endpointList

	// endpoint (not yet present in InterfaceMap) -> derived paths waiting to
	// add it (spec.md §3.1 PendingAssociations).
	pending map[string][]string
}

// New returns an empty Engine. hasPath reports whether a path currently has
// any InterfaceMap entry (objectmap.Map.Has); it is how the engine answers
// "is the endpoint path known to exist" (spec.md §4.6 step 3).
func New(exporter Exporter, hasPath func(path string) bool) *Engine {
	return &Engine{
		exporter: exporter,
		hasPath:  hasPath,
		owners:   map[string]map[string]map[string]*strset.Set{},
		ifaces:   map[string]*endpointList{},
		pending:  map[string][]string{},
	}
}

// AssociationChanged implements spec.md §4.6's associationChanged: owner has
// republished its complete associations list on sourcePath (possibly
// empty), superseding whatever it asserted there before.
func (e *Engine) AssociationChanged(sourcePath, owner string, raw []Triple) {
	layout := map[string]*strset.Set{} // new Pda -> set<endpoint>
	for _, t := range raw {
		if t.Forward == "" || t.Reverse == "" || t.Endpoint == "" {
			continue // I6
		}
		addToLayout(layout, sourcePath+"/"+t.Forward, t.Endpoint)
		addToLayout(layout, t.Endpoint+"/"+t.Reverse, sourcePath)
	}

	old := e.owners[sourcePath][owner]
	for pda, eps := range old {
		newEps := layout[pda]
		for _, ep := range eps.List() {
			if newEps == nil || !newEps.Has(ep) {
				e.removeEndpoint(pda, ep)
			}
		}
	}
	for pda, eps := range layout {
		for _, ep := range eps.List() {
			e.addEndpoint(pda, ep)
		}
	}

	if len(layout) == 0 {
		e.dropOwner(sourcePath, owner)
		return
	}
	bySrc, ok := e.owners[sourcePath]
	if !ok {
		bySrc = map[string]map[string]*strset.Set{}
		e.owners[sourcePath] = bySrc
	}
	bySrc[owner] = layout
}

// PurgeOwner implements spec.md §4.6's purgeOwner: removes every
// contribution owner made on sourcePath, used when a service vanishes or
// its associations interface is removed.
func (e *Engine) PurgeOwner(sourcePath, owner string) {
	layout := e.owners[sourcePath][owner]
	if layout == nil {
		return
	}
	for pda, eps := range layout {
		for _, ep := range eps.List() {
			e.removeEndpoint(pda, ep)
		}
	}
	e.dropOwner(sourcePath, owner)
}

// ResolvePending implements spec.md §4.6's resolvePending: called whenever
// newPath transitions from absent to present in InterfaceMap, flushing any
// associations that were waiting on it as an endpoint.
func (e *Engine) ResolvePending(newPath string) {
	waiting := e.pending[newPath]
	if len(waiting) == 0 {
		return
	}
	delete(e.pending, newPath)
	for _, pda := range waiting {
		e.publish(pda, newPath)
	}
}

// Endpoints returns the current endpoint list for a derived association
// path, used by the query service's association-filtered variants (spec.md
// §4.7). ok is false if the path has no live association object.
func (e *Engine) Endpoints(path string) (endpoints []string, ok bool) {
	list, ok := e.ifaces[path]
	if !ok {
		return nil, false
	}
	return append([]string(nil), list.order...), true
}

func (e *Engine) dropOwner(sourcePath, owner string) {
	bySrc := e.owners[sourcePath]
	if bySrc == nil {
		return
	}
	delete(bySrc, owner)
	if len(bySrc) == 0 {
		delete(e.owners, sourcePath)
	}
}

// addEndpoint implements the "add" half of spec.md §4.6 step 3 for one
// (Pda, Ep) pair: publish immediately if Ep is a known path, otherwise defer
// until ResolvePending sees it appear.
func (e *Engine) addEndpoint(pda, ep string) {
	if !e.hasPath(ep) {
		if !containsString(e.pending[ep], pda) {
			e.pending[ep] = append(e.pending[ep], pda)
		}
		return
	}
	e.publish(pda, ep)
}

func (e *Engine) publish(pda, ep string) {
	list, ok := e.ifaces[pda]
	if !ok {
		list = newEndpointList()
		e.ifaces[pda] = list
	}
	if !list.add(ep) {
		return
	}
	e.exporter.Publish(pda, append([]string(nil), list.order...))
}

// removeEndpoint implements the "subtract" half of spec.md §4.6 step 3 for
// one (Pda, Ep) pair, whether Ep was already published or still pending.
// Callers invoke it while the withdrawing owner's layout is still recorded,
// so the pair stays in place if any other recorded layout also asserts it (I1).
func (e *Engine) removeEndpoint(pda, ep string) {
	contributors := 0
	for _, byOwner := range e.owners {
		for _, layout := range byOwner {
			if eps := layout[pda]; eps != nil && eps.Has(ep) {
				contributors++
			}
		}
	}
	if contributors > 1 {
		return
	}
	e.unqueuePending(pda, ep)
	list, ok := e.ifaces[pda]
	if !ok {
		return
	}
	if !list.remove(ep) {
		return
	}
	if list.empty() {
		delete(e.ifaces, pda)
		e.exporter.Unpublish(pda)
		return
	}
	e.exporter.Publish(pda, append([]string(nil), list.order...))
}

func (e *Engine) unqueuePending(pda, ep string) {
	waiting := e.pending[ep]
	if len(waiting) == 0 {
		return
	}
	for i, p := range waiting {
		if p == pda {
			waiting = append(waiting[:i], waiting[i+1:]...)
			break
		}
	}
	if len(waiting) == 0 {
		delete(e.pending, ep)
	} else {
		e.pending[ep] = waiting
	}
}

func addToLayout(layout map[string]*strset.Set, pda, ep string) {
	set, ok := layout[pda]
	if !ok {
		set = strset.New()
		layout[pda] = set
	}
	set.Add(ep)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
