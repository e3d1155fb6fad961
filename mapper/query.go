package mapper

import (
	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/internal/apierr"
	"github.com/openbmc-project/mapperd/objectmap"
)

// SubTreeEntry is the (path, service→interfaces) pair GetAncestors,
// GetSubTree, and GetAssociatedSubTree return (spec.md §6.1's
// list<(ObjectPath, map<String, list<String>>)>). godbus encodes an
// exported Go struct as the matching D-Bus struct by field order.
type SubTreeEntry struct {
	Path       dbus.ObjectPath
	Interfaces map[string][]string
}

// queryObject is exported at ObjectMapperPath under ObjectMapperInterface
// (spec.md §6.1). Every method blocks on Loop.submit so it runs inside the
// single event-loop goroutine alongside signal and introspection handling,
// never touching owners/objects/assocEngine from godbus's own goroutine.
type queryObject struct {
	loop *Loop
}

func (q *queryObject) GetObject(path dbus.ObjectPath, filter []string) (result map[string][]string, dbusErr *dbus.Error) {
	var found bool
	q.loop.submit(func() {
		result, found = q.loop.objects.GetObject(string(path), filter)
	})
	if !found {
		return nil, apierr.AsDBusError(apierr.NewNotFound(string(path)))
	}
	return result, nil
}

func (q *queryObject) GetAncestors(path dbus.ObjectPath, filter []string) (entries []SubTreeEntry, dbusErr *dbus.Error) {
	var raw []objectmap.Entry
	var present bool
	q.loop.submit(func() {
		raw, present = q.loop.objects.GetAncestors(string(path), filter)
	})
	if !present {
		return nil, apierr.AsDBusError(apierr.NewNotFound(string(path)))
	}
	return toSubTreeEntries(raw), nil
}

func (q *queryObject) GetSubTree(path dbus.ObjectPath, depth int32, filter []string) (entries []SubTreeEntry, dbusErr *dbus.Error) {
	var raw []objectmap.Entry
	var present bool
	q.loop.submit(func() {
		raw, present = q.loop.objects.GetSubTree(string(path), int(depth), filter)
	})
	if !present {
		return nil, apierr.AsDBusError(apierr.NewNotFound(string(path)))
	}
	return toSubTreeEntries(raw), nil
}

func (q *queryObject) GetSubTreePaths(path dbus.ObjectPath, depth int32, filter []string) (paths []dbus.ObjectPath, dbusErr *dbus.Error) {
	var raw []string
	var present bool
	q.loop.submit(func() {
		raw, present = q.loop.objects.GetSubTreePaths(string(path), int(depth), filter)
	})
	if !present {
		return nil, apierr.AsDBusError(apierr.NewNotFound(string(path)))
	}
	return toObjectPaths(raw), nil
}

func (q *queryObject) GetAssociatedSubTree(associationPath, path dbus.ObjectPath, depth int32, filter []string) (entries []SubTreeEntry, dbusErr *dbus.Error) {
	var raw []objectmap.Entry
	var present bool
	q.loop.submit(func() {
		raw, present = q.loop.objects.GetSubTree(string(path), int(depth), filter)
		if !present {
			return
		}
		endpoints, ok := q.loop.assocEngine.Endpoints(string(associationPath))
		if !ok {
			raw = nil
			return
		}
		raw = filterByEndpoints(raw, endpoints)
	})
	if !present {
		return nil, apierr.AsDBusError(apierr.NewNotFound(string(path)))
	}
	return toSubTreeEntries(raw), nil
}

func (q *queryObject) GetAssociatedSubTreePaths(associationPath, path dbus.ObjectPath, depth int32, filter []string) (paths []dbus.ObjectPath, dbusErr *dbus.Error) {
	var raw []string
	var present bool
	q.loop.submit(func() {
		var entries []objectmap.Entry
		entries, present = q.loop.objects.GetSubTree(string(path), int(depth), filter)
		if !present {
			return
		}
		endpoints, ok := q.loop.assocEngine.Endpoints(string(associationPath))
		if !ok {
			return
		}
		for _, e := range filterByEndpoints(entries, endpoints) {
			raw = append(raw, e.Path)
		}
	})
	if !present {
		return nil, apierr.AsDBusError(apierr.NewNotFound(string(path)))
	}
	return toObjectPaths(raw), nil
}

// filterByEndpoints keeps only entries whose path is one of endpoints
// (spec.md §4.7's association-filtered variants). A plain map is enough
// here: the set is built and consumed once, entirely inside a single
// submit closure, with no sharing or reuse that would justify strset.
func filterByEndpoints(entries []objectmap.Entry, endpoints []string) []objectmap.Entry {
	set := make(map[string]bool, len(endpoints))
	for _, e := range endpoints {
		set[e] = true
	}
	var out []objectmap.Entry
	for _, e := range entries {
		if set[e.Path] {
			out = append(out, e)
		}
	}
	return out
}

func toSubTreeEntries(raw []objectmap.Entry) []SubTreeEntry {
	out := make([]SubTreeEntry, len(raw))
	for i, e := range raw {
		out[i] = SubTreeEntry{Path: dbus.ObjectPath(e.Path), Interfaces: e.Services}
	}
	return out
}

func toObjectPaths(raw []string) []dbus.ObjectPath {
	out := make([]dbus.ObjectPath, len(raw))
	for i, p := range raw {
		out[i] = dbus.ObjectPath(p)
	}
	return out
}
