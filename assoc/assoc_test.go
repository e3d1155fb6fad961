package assoc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openbmc-project/mapperd/assoc"
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

func (f *fakeExporter) Unpublish(path string) {
	delete(f.published, path)
}

func TestAssociationRoundTrip(t *testing.T) {
	// spec.md §8.2 scenario 4: basic round trip and full withdrawal.
	known := map[string]bool{"/log/1": true, "/sys/cpu0": true}
	exp := newFakeExporter()
	e := assoc.New(exp, func(p string) bool { return known[p] })

	e.AssociationChanged("/log/1", "com.example.Logger", []assoc.Triple{
		{Forward: "callout", Reverse: "fault", Endpoint: "/sys/cpu0"},
	})

	require.Equal(t, []string{"/sys/cpu0"}, exp.published["/log/1/callout"])
	require.Equal(t, []string{"/log/1"}, exp.published["/sys/cpu0/fault"])

	eps, ok := e.Endpoints("/log/1/callout")
	require.True(t, ok)
	require.Equal(t, []string{"/sys/cpu0"}, eps)

	e.AssociationChanged("/log/1", "com.example.Logger", nil)

	_, ok = e.Endpoints("/log/1/callout")
	require.False(t, ok)
	_, ok = e.Endpoints("/sys/cpu0/fault")
	require.False(t, ok)
	require.NotContains(t, exp.published, "/log/1/callout")
	require.NotContains(t, exp.published, "/sys/cpu0/fault")
}

func TestPurgeOwnerRemovesAllContributions(t *testing.T) {
	// spec.md §8.2 scenario 5's assoc-engine half: owner-lost tears down
	// every derived object it contributed to.
	known := map[string]bool{"/log/1": true, "/sys/cpu0": true}
	exp := newFakeExporter()
	e := assoc.New(exp, func(p string) bool { return known[p] })

	e.AssociationChanged("/log/1", "com.example.Logger", []assoc.Triple{
		{Forward: "callout", Reverse: "fault", Endpoint: "/sys/cpu0"},
	})
	e.PurgeOwner("/log/1", "com.example.Logger")

	_, ok := e.Endpoints("/log/1/callout")
	require.False(t, ok)
	_, ok = e.Endpoints("/sys/cpu0/fault")
	require.False(t, ok)
}

func TestPendingEndpointResolvesOnLateDiscovery(t *testing.T) {
	// spec.md §8.2 scenario 6: endpoint doesn't exist yet, so the forward
	// association is deferred until resolvePending sees it appear.
	known := map[string]bool{"/source": true}
	exp := newFakeExporter()
	e := assoc.New(exp, func(p string) bool { return known[p] })

	e.AssociationChanged("/source", "com.example.Owner", []assoc.Triple{
		{Forward: "fwd", Reverse: "rev", Endpoint: "/late"},
	})

	_, ok := e.Endpoints("/source/fwd")
	require.False(t, ok, "endpoint not yet known, must not be published")
	require.NotContains(t, exp.published, "/source/fwd")

	known["/late"] = true
	e.ResolvePending("/late")

	eps, ok := e.Endpoints("/source/fwd")
	require.True(t, ok)
	require.Equal(t, []string{"/late"}, eps)
}

func TestEmptyTripleFieldsAreDropped(t *testing.T) {
	// I6: any of fwd/rev/endpoint empty drops the triple without effect.
	exp := newFakeExporter()
	e := assoc.New(exp, func(string) bool { return true })

	e.AssociationChanged("/src", "owner", []assoc.Triple{
		{Forward: "", Reverse: "rev", Endpoint: "/ep"},
		{Forward: "fwd", Reverse: "", Endpoint: "/ep"},
		{Forward: "fwd", Reverse: "rev", Endpoint: ""},
	})

	require.Empty(t, exp.published)
}

func TestEndpointListDeduplicates(t *testing.T) {
	// I3: two owners asserting the same endpoint must not duplicate it.
	exp := newFakeExporter()
	e := assoc.New(exp, func(string) bool { return true })

	e.AssociationChanged("/src", "owner-a", []assoc.Triple{
		{Forward: "fwd", Reverse: "rev", Endpoint: "/ep"},
	})
	e.AssociationChanged("/src", "owner-b", []assoc.Triple{
		{Forward: "fwd", Reverse: "rev", Endpoint: "/ep"},
	})

	eps, ok := e.Endpoints("/src/fwd")
	require.True(t, ok)
	require.Equal(t, []string{"/ep"}, eps)

	e.PurgeOwner("/src", "owner-a")
	eps, ok = e.Endpoints("/src/fwd")
	require.True(t, ok, "owner-b's contribution keeps the endpoint alive")
	require.Equal(t, []string{"/ep"}, eps)

	e.PurgeOwner("/src", "owner-b")
	_, ok = e.Endpoints("/src/fwd")
	require.False(t, ok)
}
