// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package busutil collects the small pieces of D-Bus plumbing shared by the
// owner table, introspection engine, association engine and signal
// dispatcher: connecting to a bus, naming interfaces/members, and the test
// double used in place of a real bus. Adapted from barista's
// base/watchers/dbus package, generalized from a single-object property
// watcher to the directory service's bus-wide name/path/signal consumption.
package busutil

import (
	"strings"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
)

// Well-known interface and member names consumed throughout the daemon.
const (
	DBusInterface       = "org.freedesktop.DBus"
	PropertiesInterface = "org.freedesktop.DBus.Properties"
	IntrospectableIface = "org.freedesktop.DBus.Introspectable"
	PeerInterface       = "org.freedesktop.DBus.Peer"
	ObjectManagerIface  = "org.freedesktop.DBus.ObjectManager"

	BusPath dbus.ObjectPath = "/org/freedesktop/DBus"
)

var (
	ListNames        = Name{DBusInterface, "ListNames"}
	GetNameOwner     = Name{DBusInterface, "GetNameOwner"}
	NameOwnerChanged = Name{DBusInterface, "NameOwnerChanged"}

	InterfacesAdded   = Name{ObjectManagerIface, "InterfacesAdded"}
	InterfacesRemoved = Name{ObjectManagerIface, "InterfacesRemoved"}

	PropertiesChanged = Name{PropertiesInterface, "PropertiesChanged"}
)

// Name represents a D-Bus name, an interface and member pair, the same
// decomposition barista's dbusName used for matching methods and signals.
type Name struct {
	Interface string
	Member    string
}

// Call invokes the method on the bus object of conn.
func (n Name) Call(conn Conn, args ...interface{}) *dbus.Call {
	return conn.BusObject().Call(n.String(), 0, args...)
}

// AddMatch subscribes conn to signals matching this name.
func (n Name) AddMatch(conn Conn, opts ...dbus.MatchOption) *dbus.Call {
	return conn.BusObject().AddMatchSignal(n.Interface, n.Member, opts...)
}

// RemoveMatch unsubscribes conn from signals matching this name.
func (n Name) RemoveMatch(conn Conn, opts ...dbus.MatchOption) *dbus.Call {
	return conn.BusObject().RemoveMatchSignal(n.Interface, n.Member, opts...)
}

// String renders the interface.member form used as a dbus.Signal.Name.
func (n Name) String() string {
	return Expand(n.Interface, n.Member)
}

// Expand turns a possibly-relative member name into interface.member: a bare
// name gets iface prepended, a name starting with '.' has iface spliced in
// front of it, and a name that already contains a '.' is returned unchanged.
func Expand(iface, name string) string {
	switch strings.IndexRune(name, '.') {
	case 0:
		return iface + name
	case -1:
		return iface + "." + name
	default:
		return name
	}
}

// Conn is the subset of *dbus.Conn the daemon's watchers need. It exists so
// tests can substitute internal/testbus for a real connection, exactly as
// barista's dbusConn interface lets base/watchers/dbus run against a fake.
type Conn interface {
	BusObject() dbus.BusObject
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// BusType connects to a bus and returns the Conn used to talk to it.
type BusType func() (Conn, error)

// System connects to the system-wide D-Bus instance, where OpenBMC-style
// services and the mapper itself normally live.
var System BusType = func() (Conn, error) { return connect(dbus.SystemBusPrivate()) }

// Session connects to the current user's session bus, useful for local
// development and for tests that want a real (if sandboxed) bus.
var Session BusType = func() (Conn, error) { return connect(dbus.SessionBusPrivate()) }

// testBusFactory is set by internal/testbus via SetTestBusFactory to avoid an
// import cycle between busutil and testbus (testbus depends on busutil).
var testBusFactory atomic.Value // of func() (Conn, error)

// SetTestBusFactory registers the function Test uses to mint connections.
// Called once by testbus.New().
func SetTestBusFactory(f func() (Conn, error)) {
	testBusFactory.Store(f)
}

// Test connects to the most recently constructed test bus. Panics if no test
// bus has been set up, mirroring barista's testBus() behavior.
var Test BusType = func() (Conn, error) {
	f, ok := testBusFactory.Load().(func() (Conn, error))
	if !ok {
		panic("busutil: no test bus configured; call testbus.New() first")
	}
	return f()
}

func connect(conn *dbus.Conn, err error) (Conn, error) {
	if err == nil {
		err = conn.Auth(nil)
	}
	if err == nil {
		err = conn.Hello()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
