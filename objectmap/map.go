// Package objectmap implements the core interface map — path → service →
// set of interfaces (spec.md §3.1) — and the read-only query algorithms
// layered over it (spec.md §4.4). It owns no goroutines and takes no locks:
// per spec.md §5 it is mutated and read exclusively from the single event
// loop goroutine that owns the daemon's state.
package objectmap

import (
	"sort"

	"github.com/scylladb/go-set/strset"
)

// Map is the path → service → interfaces index. The zero value is not
// usable; use New.
type Map struct {
	paths map[string]map[string]*strset.Set
}

// New returns an empty Map.
func New() *Map {
	return &Map{paths: map[string]map[string]*strset.Set{}}
}

// Add records that service implements iface at path. It returns true if
// this is new information (the map changed).
func (m *Map) Add(path, service, iface string) bool {
	services, ok := m.paths[path]
	if !ok {
		services = map[string]*strset.Set{}
		m.paths[path] = services
	}
	ifaces, ok := services[service]
	if !ok {
		ifaces = strset.New()
		services[service] = ifaces
	}
	if ifaces.Has(iface) {
		return false
	}
	ifaces.Add(iface)
	return true
}

// Remove deletes iface from service at path, cascading per I4: an empty
// interface set removes the service entry, and an empty path entry removes
// the path itself. It returns true if anything was removed.
func (m *Map) Remove(path, service, iface string) bool {
	services, ok := m.paths[path]
	if !ok {
		return false
	}
	ifaces, ok := services[service]
	if !ok || !ifaces.Has(iface) {
		return false
	}
	ifaces.Remove(iface)
	if ifaces.IsEmpty() {
		delete(services, service)
		if len(services) == 0 {
			delete(m.paths, path)
		}
	}
	return true
}

// RemoveService deletes every interface belonging to service, at every
// path. It returns the sorted paths at which service was present (before
// removal), which the caller needs to prune the association engine.
func (m *Map) RemoveService(service string) []string {
	var touched []string
	for path, services := range m.paths {
		if _, ok := services[service]; !ok {
			continue
		}
		touched = append(touched, path)
		delete(services, service)
		if len(services) == 0 {
			delete(m.paths, path)
		}
	}
	sort.Strings(touched)
	return touched
}

// Has reports whether path has any entry at all (any service, any
// interface).
func (m *Map) Has(path string) bool {
	_, ok := m.paths[path]
	return ok
}

// Interfaces returns the set of interfaces service implements at path, or
// nil if there is no such entry.
func (m *Map) Interfaces(path, service string) *strset.Set {
	services, ok := m.paths[path]
	if !ok {
		return nil
	}
	return services[service]
}

// Services returns the service → interfaces map stored at path, or nil.
// Callers must not mutate the returned map or sets.
func (m *Map) Services(path string) map[string]*strset.Set {
	return m.paths[path]
}

// Entry pairs a stored path with its service → interfaces map, used as the
// common building block for Ancestors/SubTree results.
type Entry struct {
	Path     string
	Services map[string][]string
}

// matches reports whether ifaces intersects filter; an empty filter matches
// everything (spec.md §4.4).
func matches(ifaces *strset.Set, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if ifaces.Has(f) {
			return true
		}
	}
	return false
}

// filterEntry builds the filtered service → interfaces view for one stored
// path, or returns ok=false if nothing there matches.
func filterEntry(services map[string]*strset.Set, filter []string) (map[string][]string, bool) {
	out := map[string][]string{}
	for svc, ifaces := range services {
		if !matches(ifaces, filter) {
			continue
		}
		list := ifaces.List()
		sort.Strings(list)
		out[svc] = list
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// sortedFilter returns a sorted copy of filter, since the intersection test
// in matches() only needs set membership but callers of this package may
// rely on a stable, sorted filter for reproducible logging/tests.
func sortedFilter(filter []string) []string {
	if len(filter) == 0 {
		return nil
	}
	out := append([]string(nil), filter...)
	sort.Strings(out)
	return out
}

// GetObject implements spec.md's GetObject: the filtered service →
// interfaces map at exactly path. ok is false if path is absent or no
// service matches the filter.
func (m *Map) GetObject(path string, filter []string) (map[string][]string, bool) {
	path = normalize(path)
	filter = sortedFilter(filter)
	services, ok := m.paths[path]
	if !ok {
		return nil, false
	}
	return filterEntry(services, filter)
}

// GetAncestors implements spec.md's GetAncestors: every stored path that is
// a strict proper prefix of path, in lexicographic order. present reports
// whether path itself exists in the map (required because an absent
// requested path is a not-found condition even if it has no ancestors);
// the empty/root path is always considered present.
func (m *Map) GetAncestors(path string, filter []string) (entries []Entry, present bool) {
	path = normalize(path)
	filter = sortedFilter(filter)
	present = path == "" || path == "/" || m.Has(path)
	if !present {
		return nil, false
	}
	var paths []string
	for p := range m.paths {
		if isAncestor(p, path) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		if svc, ok := filterEntry(m.paths[p], filter); ok {
			entries = append(entries, Entry{Path: p, Services: svc})
		}
	}
	return entries, true
}

// GetSubTree implements spec.md's GetSubTree: every stored path strictly
// under path with relative depth in [1, depth] (depth<=0 meaning
// unbounded), in lexicographic order.
func (m *Map) GetSubTree(path string, depth int, filter []string) (entries []Entry, present bool) {
	paths, present := m.subTreePaths(path, depth)
	if !present {
		return nil, false
	}
	filter = sortedFilter(filter)
	for _, p := range paths {
		if svc, ok := filterEntry(m.paths[p], filter); ok {
			entries = append(entries, Entry{Path: p, Services: svc})
		}
	}
	return entries, true
}

// GetSubTreePaths implements spec.md's GetSubTreePaths: the paths selected
// by GetSubTree, without their interface maps.
func (m *Map) GetSubTreePaths(path string, depth int, filter []string) (paths []string, present bool) {
	candidates, present := m.subTreePaths(path, depth)
	if !present {
		return nil, false
	}
	filter = sortedFilter(filter)
	for _, p := range candidates {
		if _, ok := filterEntry(m.paths[p], filter); ok {
			paths = append(paths, p)
		}
	}
	return paths, true
}

// subTreePaths returns every stored path under path within depth (unfiltered
// by interface), sorted, along with whether path itself is present.
func (m *Map) subTreePaths(path string, depth int) (paths []string, present bool) {
	path = normalize(path)
	present = path == "" || path == "/" || m.Has(path)
	if !present {
		return nil, false
	}
	base := path
	if base == "" {
		base = "/"
	}
	for p := range m.paths {
		if !isAncestor(base, p) {
			continue
		}
		if depth > 0 && relativeDepth(base, p) > depth {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, true
}
