package objectmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbmc-project/mapperd/objectmap"
)

func populateHierarchy(t *testing.T) *objectmap.Map {
	t.Helper()
	m := objectmap.New()
	for _, p := range []struct{ path, iface string }{
		{"/a", "a"},
		{"/a/b", "b"},
		{"/a/b/c", "c"},
		{"/a/b/c/d", "d"},
	} {
		m.Add(p.path, "svc", p.iface)
	}
	return m
}

func paths(entries []objectmap.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func TestBasicHierarchy(t *testing.T) {
	// spec.md §8.2 scenario 1.
	m := populateHierarchy(t)

	ancestors, present := m.GetAncestors("/a/b/c", nil)
	require.True(t, present)
	require.Equal(t, []string{"/a", "/a/b"}, paths(ancestors))

	unbounded, present := m.GetSubTreePaths("/a", 0, nil)
	require.True(t, present)
	require.Equal(t, []string{"/a/b", "/a/b/c", "/a/b/c/d"}, unbounded)

	depth1, present := m.GetSubTreePaths("/a", 1, nil)
	require.True(t, present)
	require.Equal(t, []string{"/a/b"}, depth1)
}

func TestInterfaceFilterIntersection(t *testing.T) {
	// spec.md §8.2 scenario 2.
	m := populateHierarchy(t)

	got, present := m.GetSubTreePaths("/a", 0, []string{"b", "d"})
	require.True(t, present)
	require.Equal(t, []string{"/a/b", "/a/b/c/d"}, got)
}

func TestTrailingSlashNormalization(t *testing.T) {
	// spec.md §8.2 scenario 3.
	m := populateHierarchy(t)

	withSlash, present1 := m.GetSubTree("/a/", 0, nil)
	without, present2 := m.GetSubTree("/a", 0, nil)
	require.Equal(t, present1, present2)
	require.Equal(t, without, withSlash)
}

func TestGetObjectMissingPathIsNotFound(t *testing.T) {
	m := objectmap.New()
	m.Add("/a", "svc", "iface")

	_, ok := m.GetObject("/b", nil)
	require.False(t, ok)
}

func TestGetObjectFiltersByInterfaceAcrossServices(t *testing.T) {
	m := objectmap.New()
	m.Add("/a", "svc1", "xyz.A")
	m.Add("/a", "svc2", "xyz.B")

	result, ok := m.GetObject("/a", []string{"xyz.B"})
	require.True(t, ok)
	require.Equal(t, map[string][]string{"svc2": {"xyz.B"}}, result)
}

func TestRemoveCascadesEmptyServiceAndPath(t *testing.T) {
	// I4: an empty interface set removes the service; an empty service set
	// removes the path.
	m := objectmap.New()
	m.Add("/a", "svc", "iface")
	require.True(t, m.Has("/a"))

	require.True(t, m.Remove("/a", "svc", "iface"))
	require.False(t, m.Has("/a"))
	require.False(t, m.Remove("/a", "svc", "iface"))
}

func TestRemoveServiceReturnsTouchedPathsSorted(t *testing.T) {
	m := objectmap.New()
	m.Add("/z", "svc", "iface")
	m.Add("/a", "svc", "iface")
	m.Add("/a", "other", "iface")

	touched := m.RemoveService("svc")
	require.Equal(t, []string{"/a", "/z"}, touched)
	require.False(t, m.Has("/z"))
	require.True(t, m.Has("/a")) // "other" still has an entry there
}

func TestAncestorsRequirePathPresence(t *testing.T) {
	// spec.md's GetAncestors: requesting path must itself exist (root excepted).
	m := objectmap.New()
	m.Add("/a/b", "svc", "iface")

	_, ok := m.GetAncestors("/a/b/c", nil)
	require.False(t, ok)

	entries, ok := m.GetAncestors("/", nil)
	require.True(t, ok)
	require.Empty(t, entries)
}
