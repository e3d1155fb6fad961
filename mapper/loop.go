// Package mapper wires the daemon's state (owner table, interface map,
// association engine) and the signal dispatcher into the single event-loop
// goroutine spec.md §5 requires, and exports the ObjectMapper bus object
// (spec.md §4.7/§6) that answers queries over that state.
package mapper

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/assoc"
	"github.com/openbmc-project/mapperd/dispatch"
	"github.com/openbmc-project/mapperd/internal/busutil"
	ilog "github.com/openbmc-project/mapperd/internal/log"
	"github.com/openbmc-project/mapperd/introspect"
	"github.com/openbmc-project/mapperd/namefilter"
	"github.com/openbmc-project/mapperd/objectmap"
	"github.com/openbmc-project/mapperd/ownertable"
)

const (
	// ObjectMapperPath and ObjectMapperInterface are the fixed location and
	// interface name the query methods are exported under (spec.md §6.1).
	ObjectMapperPath      dbus.ObjectPath = "/xyz/openbmc_project/object_mapper"
	ObjectMapperInterface                 = "xyz.openbmc_project.ObjectMapper"

	introspectionCompleteSignal = "xyz.openbmc_project.ObjectMapper.Private.IntrospectionComplete"
)

// Signaler emits the daemon's own signals. *dbus.Conn satisfies this
// directly; tests supply a fake so they don't need a real bus.
type Signaler interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Loop is the single goroutine that owns every piece of mutable state:
// owner table, interface map, association engine, and the dispatcher over
// them. Nothing outside this package reaches that state directly; every
// access — bus query, signal application, introspection result — arrives as
// a closure on cmds (spec.md §5).
type Loop struct {
	conn     busutil.Conn
	signaler Signaler
	filter   *namefilter.Filter

	owners      *ownertable.Table
	objects     *objectmap.Map
	assocEngine *assoc.Engine
	dispatcher  *dispatch.Dispatcher

	cmds chan func()
}

// New returns a Loop ready to Run. exporter backs the association engine's
// bus-visible endpoint lists (mapper.NewBusExporter for a real connection,
// a fake in tests).
func New(conn busutil.Conn, signaler Signaler, filter *namefilter.Filter, exporter assoc.Exporter) *Loop {
	objects := objectmap.New()
	l := &Loop{
		conn:     conn,
		signaler: signaler,
		filter:   filter,
		owners:   ownertable.New(),
		objects:  objects,
		cmds:     make(chan func(), 64),
	}
	l.assocEngine = assoc.New(exporter, objects.Has)
	l.dispatcher = dispatch.New(l.owners, l.objects, l.assocEngine, filter, l)
	return l
}

// Run drains the command queue until ctx is cancelled. Every mutation and
// every query answer happens inside one of these closures, so this is the
// only goroutine that ever touches owners/objects/assocEngine/dispatcher.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-l.cmds:
			f()
		}
	}
}

// submit enqueues f and blocks until it has run on the loop goroutine,
// letting an exported bus method answer synchronously from state the loop
// owns.
func (l *Loop) submit(f func()) {
	done := make(chan struct{})
	l.cmds <- func() {
		f()
		close(done)
	}
	<-done
}

// submitAsync enqueues f without waiting, for signal and introspection
// callbacks that arrive on their own goroutines and have nothing to return.
func (l *Loop) submitAsync(f func()) {
	l.cmds <- f
}

// Introspect implements dispatch.Introspector: walk service's tree in the
// background and report IntrospectionComplete once the walk returns.
func (l *Loop) Introspect(service string) {
	go func() {
		start := time.Now()
		introspect.New(l.conn, &loopSink{loop: l}).Scan(service)
		l.submitAsync(func() {
			ilog.Log("mapper: introspected %s in %s", service, time.Since(start))
			l.announceComplete(service)
		})
	}()
}

// RunInitialScan introspects every allowed peer currently on the bus
// concurrently (spec.md §4.3's initial scan), logging total elapsed time
// once every peer has finished.
func (l *Loop) RunInitialScan(ctx context.Context) error {
	start := time.Now()
	err := introspect.InitialScan(ctx, l.conn, l.filter, &loopOwnerRecorder{loop: l}, &loopSink{loop: l}, peerCompleteFunc(l.announceComplete))
	ilog.Log("mapper: initial scan complete in %s", time.Since(start))
	return err
}

func (l *Loop) announceComplete(service string) {
	if l.signaler == nil {
		return
	}
	if err := l.signaler.Emit(ObjectMapperPath, introspectionCompleteSignal, service); err != nil {
		ilog.Error("mapper: emit IntrospectionComplete for %s: %v", service, err)
	}
}

// Export registers the query methods on dconn at ObjectMapperPath, and
// requests ownership of busName. Called once at startup against the real
// bus connection; nothing in this package other than the caller of Export
// needs to know it is a *dbus.Conn rather than busutil.Conn.
func (l *Loop) Export(dconn *dbus.Conn, busName string) error {
	if err := dconn.Export(&queryObject{loop: l}, ObjectMapperPath, ObjectMapperInterface); err != nil {
		return err
	}
	reply, err := dconn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		ilog.Error("mapper: %s already owned elsewhere on this bus (reply %d)", busName, reply)
	}
	return nil
}

// loopSink adapts introspect.Sink to the loop: Scan's walk goroutines call
// these methods concurrently, and each call is forwarded onto the loop via
// submitAsync rather than touching dispatcher state directly.
type loopSink struct{ loop *Loop }

func (s *loopSink) AddInterface(path, service, iface string) {
	s.loop.submitAsync(func() { s.loop.dispatcher.AddInterface(path, service, iface) })
}

func (s *loopSink) Associations(path, service string, triples []introspect.Triple) {
	s.loop.submitAsync(func() { s.loop.dispatcher.Associations(path, service, triples) })
}

// loopOwnerRecorder adapts introspect.OwnerRecorder to the loop: InitialScan
// resolves owners from its own nursery goroutines, so recording them must go
// through submitAsync like every other write to loop-owned state.
type loopOwnerRecorder struct{ loop *Loop }

func (r *loopOwnerRecorder) Remember(unique, service string) {
	r.loop.submitAsync(func() { r.loop.owners.Remember(unique, service) })
}

// peerCompleteFunc adapts a plain function to introspect.Complete, the way
// http.HandlerFunc adapts a function to http.Handler.
type peerCompleteFunc func(service string)

func (f peerCompleteFunc) PeerComplete(service string) { f(service) }
