package dispatch_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbmc-project/mapperd/assoc"
	"github.com/openbmc-project/mapperd/dispatch"
	"github.com/openbmc-project/mapperd/introspect"
	"github.com/openbmc-project/mapperd/namefilter"
	"github.com/openbmc-project/mapperd/objectmap"
	"github.com/openbmc-project/mapperd/ownertable"
)

type fakeExporter struct {
	published map[string][]string
}

func newFakeExporter() *fakeExporter {
	return &fakeExporter{published: map[string][]string{}}
}

func (f *fakeExporter) Publish(path string, endpoints []string) {
	f.published[path] = append([]string(nil), endpoints...)
}

func (f *fakeExporter) Unpublish(path string) { delete(f.published, path) }

type fakeIntrospector struct {
	started []string
}

func (f *fakeIntrospector) Introspect(service string) {
	f.started = append(f.started, service)
}

func newHarness() (*dispatch.Dispatcher, *objectmap.Map, *ownertable.Table, *fakeIntrospector, *fakeExporter) {
	owners := ownertable.New()
	objects := objectmap.New()
	exp := newFakeExporter()
	assocEngine := assoc.New(exp, objects.Has)
	filter := namefilter.New("mapperd", []string{"xyz.openbmc_project."}, nil)
	intro := &fakeIntrospector{}
	d := dispatch.New(owners, objects, assocEngine, filter, intro)
	return d, objects, owners, intro, exp
}

func TestNameOwnerChangedStartsIntrospectionForAllowedName(t *testing.T) {
	d, _, owners, intro, _ := newHarness()

	d.OnNameOwnerChanged("xyz.openbmc_project.Inventory", "", ":1.5")

	require.Equal(t, []string{"xyz.openbmc_project.Inventory"}, intro.started)
	owner, ok := owners.Resolve(":1.5")
	require.True(t, ok)
	require.Equal(t, "xyz.openbmc_project.Inventory", owner)
}

func TestNameOwnerChangedIgnoresDisallowedName(t *testing.T) {
	d, _, _, intro, _ := newHarness()

	d.OnNameOwnerChanged("com.other.Thing", "", ":1.5")

	require.Empty(t, intro.started)
}

func TestOwnerLostPrunesInterfaceMapAndAssociations(t *testing.T) {
	// spec.md §8.2 scenario 5.
	d, objects, owners, _, exp := newHarness()

	d.OnNameOwnerChanged("xyz.openbmc_project.Logger", "", ":1.5")
	d.AddInterface("/log/1", "xyz.openbmc_project.Logger", "xyz.openbmc_project.Log")
	d.AddInterface("/sys/cpu0", "xyz.openbmc_project.Logger", "xyz.openbmc_project.Cpu")
	d.Associations("/log/1", "xyz.openbmc_project.Logger", []introspect.Triple{
		{Forward: "callout", Reverse: "fault", Endpoint: "/sys/cpu0"},
	})
	require.Contains(t, exp.published, "/log/1/callout")
	require.Contains(t, exp.published, "/sys/cpu0/fault")

	d.OnNameOwnerChanged("xyz.openbmc_project.Logger", ":1.5", "")

	require.False(t, objects.Has("/log/1"))
	require.False(t, objects.Has("/sys/cpu0"))
	require.NotContains(t, exp.published, "/log/1/callout")
	require.NotContains(t, exp.published, "/sys/cpu0/fault")
	_, ok := owners.Resolve(":1.5")
	require.False(t, ok)
}

func TestInterfacesAddedResolvesPendingAssociationAndUnknownSenderIsDropped(t *testing.T) {
	// spec.md §8.2 scenario 6, driven through InterfacesAdded this time
	// instead of introspection.
	d, objects, _, _, exp := newHarness()

	d.OnNameOwnerChanged("xyz.openbmc_project.Source", "", ":1.1")
	d.Associations("/source", "xyz.openbmc_project.Source", []introspect.Triple{
		{Forward: "fwd", Reverse: "rev", Endpoint: "/late"},
	})
	require.NotContains(t, exp.published, "/source/fwd")

	// An InterfacesAdded from an untracked sender is dropped outright.
	d.OnInterfacesAdded(":1.99", "/late", []dispatch.InterfaceProps{
		{Name: "xyz.openbmc_project.Thing"},
	})
	require.False(t, objects.Has("/late"))

	d.OnInterfacesAdded(":1.1", "/late", []dispatch.InterfaceProps{
		{Name: "xyz.openbmc_project.Thing"},
	})

	require.True(t, objects.Has("/late"))
	require.Equal(t, []string{"/late"}, exp.published["/source/fwd"])
}

func TestInterfacesRemovedPurgesAssociationsInterfaceOnly(t *testing.T) {
	d, objects, _, _, exp := newHarness()

	d.OnNameOwnerChanged("xyz.openbmc_project.Source", "", ":1.1")
	d.AddInterface("/src", "xyz.openbmc_project.Source", "xyz.openbmc_project.Other")
	d.Associations("/src", "xyz.openbmc_project.Source", []introspect.Triple{
		{Forward: "fwd", Reverse: "rev", Endpoint: "/src"},
	})
	require.Contains(t, exp.published, "/src/fwd")

	d.OnInterfacesRemoved(":1.1", "/src", []string{introspect.AssociationsInterface})

	require.NotContains(t, exp.published, "/src/fwd")
	require.True(t, objects.Has("/src"), "the unrelated interface survives")
}

func TestInterfacesAddedIgnoresBoilerplateInterfaces(t *testing.T) {
	d, objects, _, _, _ := newHarness()
	d.OnNameOwnerChanged("xyz.openbmc_project.Source", "", ":1.1")

	d.OnInterfacesAdded(":1.1", "/src", []dispatch.InterfaceProps{
		{Name: "org.freedesktop.DBus.Properties"},
	})

	require.False(t, objects.Has("/src"))
}
