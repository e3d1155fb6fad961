// Package introspect implements the introspection engine (spec.md §4.3):
// walking a bus peer's object tree over its Introspectable interface,
// feeding discovered interfaces into the interface map and discovered
// associations properties into the association engine.
package introspect

import (
	"encoding/xml"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	dbusintrospect "github.com/godbus/dbus/v5/introspect"

	"github.com/openbmc-project/mapperd/internal/busutil"
	ilog "github.com/openbmc-project/mapperd/internal/log"
)

// Methods the engine consumes (spec.md §6.4).
var (
	introspectMethod = busutil.Name{Interface: busutil.IntrospectableIface, Member: "Introspect"}
	getProperty      = busutil.Name{Interface: busutil.PropertiesInterface, Member: "Get"}
)

// AssociationsInterface is the interface a service exports on a source path
// to assert associations (spec.md §4.6); AssociationsProperty is its single
// property, carrying the raw (forward, reverse, endpoint) triples.
const (
	AssociationsInterface = "xyz.openbmc_project.Association.Definitions"
	AssociationsProperty  = "Associations"
)

// ignored lists the interfaces every object implements as a matter of
// course; the interface map never records them (spec.md §4.3 step 2).
var ignored = map[string]bool{
	busutil.IntrospectableIface: true,
	busutil.PeerInterface:       true,
	busutil.PropertiesInterface: true,
}

// Ignored reports whether iface is one every object implements as a matter
// of course and which the interface map never records. The signal
// dispatcher applies the same check to InterfacesAdded payloads (spec.md
// §4.5: "with the same ignore list as §4.3").
func Ignored(iface string) bool {
	return ignored[iface]
}

// Triple is one raw (forward, reverse, endpoint) association as read off the
// associations property, before the association engine's own filtering
// (spec.md §4.6 step 1 is its job, not this package's).
type Triple struct {
	Forward  string
	Reverse  string
	Endpoint string
}

// Sink receives the results of walking one peer's objects. Its methods may
// be called from many goroutines at once (one per in-flight branch); a Sink
// backed by the single event-loop goroutine (spec.md §5) must funnel these
// calls into that loop itself rather than mutate loop-owned state directly.
type Sink interface {
	// AddInterface records that service implements iface at path.
	AddInterface(path, service, iface string)
	// Associations forwards a source path's raw associations property, as if
	// it had arrived as a signal (spec.md §4.3 step 3).
	Associations(path, service string, triples []Triple)
}

// Engine walks a peer's object tree over a bus connection, reporting what it
// finds to a Sink.
type Engine struct {
	conn busutil.Conn
	sink Sink
}

// New returns an Engine that introspects over conn and reports to sink.
func New(conn busutil.Conn, sink Sink) *Engine {
	return &Engine{conn: conn, sink: sink}
}

// Scan walks service's entire object tree starting at "/", fanning out into
// every child branch concurrently and blocking until every branch has
// finished or been abandoned. This is both entrypoints spec.md §4.3
// describes: called once per peer for the initial scan, and once for a
// single peer on incremental introspection triggered by a name-owner change.
// The caller is responsible for logging completion and, on initial scan,
// noticing when every peer's Scan has returned.
func (e *Engine) Scan(service string) {
	e.walk(service, "/")
}

// walk fetches and applies one object's introspection data, then recurses
// into its children. Branches run as sibling goroutines, the natural Go
// rendering of spec.md §4.3's reference-counted per-peer progress token: a
// sync.WaitGroup's Add/Done pair *is* that token, and Wait blocks exactly
// until the last branch finishes.
func (e *Engine) walk(service, path string) {
	n, err := e.fetch(service, path)
	if err != nil {
		ilog.Error("introspect: %s %s: %v", service, path, err)
		return
	}
	for _, iface := range n.Interfaces {
		if iface.Name == "" || ignored[iface.Name] {
			continue
		}
		e.sink.AddInterface(path, service, iface.Name)
		if iface.Name == AssociationsInterface {
			e.fetchAssociations(service, path)
		}
	}
	var wg sync.WaitGroup
	for _, child := range n.Children {
		if child.Name == "" {
			continue
		}
		childPath := joinPath(path, child.Name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.walk(service, childPath)
		}()
	}
	wg.Wait()
}

func joinPath(path, name string) string {
	if path == "/" {
		return "/" + name
	}
	return path + "/" + name
}

func (e *Engine) fetch(service, path string) (*dbusintrospect.Node, error) {
	obj := e.conn.Object(service, dbus.ObjectPath(path))
	call := obj.Call(introspectMethod.String(), 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var xmlStr string
	if err := call.Store(&xmlStr); err != nil {
		return nil, fmt.Errorf("decode introspect reply: %w", err)
	}
	// Recognized schema per spec.md §6.5: a root <node> with <interface
	// name="…"> and <node name="…"> children; anything else is ignored by
	// virtue of not being named in dbusintrospect.Node's struct tags.
	var n dbusintrospect.Node
	if err := xml.Unmarshal([]byte(xmlStr), &n); err != nil {
		return nil, fmt.Errorf("parse introspection xml: %w", err)
	}
	return &n, nil
}

func (e *Engine) fetchAssociations(service, path string) {
	obj := e.conn.Object(service, dbus.ObjectPath(path))
	call := obj.Call(getProperty.String(), 0, AssociationsInterface, AssociationsProperty)
	if call.Err != nil {
		ilog.Error("introspect: get associations %s %s: %v", service, path, call.Err)
		return
	}
	var variant dbus.Variant
	if err := call.Store(&variant); err != nil {
		ilog.Error("introspect: decode associations %s %s: %v", service, path, err)
		return
	}
	triples, err := DecodeTriples(variant.Value())
	if err != nil {
		ilog.Error("introspect: malformed associations %s %s: %v", service, path, err)
		return
	}
	e.sink.Associations(path, service, triples)
}
