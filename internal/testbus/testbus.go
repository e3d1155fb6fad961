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

// Package testbus is an in-process fake D-Bus used to exercise the
// introspection engine, signal dispatcher and association engine without a
// real bus daemon. Adapted from barista's base/watchers/dbus test bus (the
// same mechanism barista uses to test PropertiesWatcher/NameOwnerWatcher),
// generalized from "one watched object" to "an arbitrary number of
// services, each with an arbitrary object tree", since the directory
// service must introspect many peers rather than watch one.
package testbus

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/internal/busutil"
	ilog "github.com/openbmc-project/mapperd/internal/log"
)

// Bus represents a fake D-Bus instance for testing.
type Bus struct {
	mu sync.Mutex

	busObj      *Object
	nextID      int
	services    map[string]*Service
	connections map[*connection]bool
}

// New constructs a new test bus, priming it with the bus-name methods
// (ListNames, GetNameOwner) and wiring busutil.Test to dial it.
func New() *Bus {
	t := &Bus{
		services:    map[string]*Service{},
		connections: map[*connection]bool{},
	}
	t.RegisterService(busutil.DBusInterface)
	t.busObj = t.Object(busutil.DBusInterface, busutil.BusPath)
	t.busObj.On("ListNames", func(args ...interface{}) ([]interface{}, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		names := make([]string, 0, len(t.services))
		for n := range t.services {
			names = append(names, n)
		}
		return []interface{}{names}, nil
	})
	t.busObj.On("GetNameOwner", func(args ...interface{}) ([]interface{}, error) {
		name := args[0].(string)
		t.mu.Lock()
		defer t.mu.Unlock()
		svc := t.services[name]
		if svc == nil {
			return nil, errors.New("no such name")
		}
		return []interface{}{svc.id}, nil
	})
	busutil.SetTestBusFactory(func() (busutil.Conn, error) {
		return t.connect(), nil
	})
	return t
}

// BusObject returns an object representing the bus itself.
func (t *Bus) BusObject() *Object { return t.busObj }

// Object returns the object at path on the named service, creating it (with
// empty properties and no registered calls) on first use.
func (t *Bus) Object(dest string, path dbus.ObjectPath) *Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	svc := t.services[dest]
	if svc == nil {
		panic("testbus: no service registered for " + dest)
	}
	return svc.object(path)
}

// emit dispatches a signal to every connection whose registered match rules
// accept it, mirroring a real bus's signal routing.
func (t *Bus) emit(name, sender string, path dbus.ObjectPath, args ...interface{}) {
	ilog.Fine("testbus: %s (%s) emit %s %+v", path, sender, name, args)
	sig := &dbus.Signal{Sender: sender, Path: path, Name: name, Body: args}
	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.connections {
		c.mu.Lock()
		if c.shouldSignal(name, sender, path, args) {
			for ch := range c.signals {
				ch <- sig
			}
		}
		c.mu.Unlock()
	}
}

// connect returns a new connection to the test bus.
func (t *Bus) connect() *connection {
	c := &connection{
		bus:     t,
		signals: map[chan<- *dbus.Signal]bool{},
		matches: map[string][]map[string]string{},
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c.busObj = &Object{t.busObj.object, c}
	t.connections[c] = true
	return c
}

// connection represents one client's view of the test bus.
type connection struct {
	bus    *Bus
	closed int32

	mu      sync.Mutex
	busObj  *Object
	signals map[chan<- *dbus.Signal]bool
	matches map[string][]map[string]string
}

// Close closes the connection, rendering it unusable.
func (c *connection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return dbus.ErrClosed
	}
	c.bus.mu.Lock()
	delete(c.bus.connections, c)
	c.bus.mu.Unlock()
	c.mu.Lock()
	c.signals = nil
	c.matches = nil
	c.mu.Unlock()
	return nil
}

// BusObject returns an object representing the bus itself.
func (c *connection) BusObject() dbus.BusObject {
	c.checkOpen()
	return c.busObj
}

// Object returns the object identified by dest and path.
func (c *connection) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	c.checkOpen()
	o := c.bus.Object(dest, path)
	o.conn = c
	return o
}

// Signal registers ch to receive all signals matched by this connection.
func (c *connection) Signal(ch chan<- *dbus.Signal) {
	c.checkOpen()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.signals[ch] = true
}

// RemoveSignal unregisters ch.
func (c *connection) RemoveSignal(ch chan<- *dbus.Signal) {
	c.checkOpen()
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.signals, ch)
}

func (c *connection) checkOpen() {
	if atomic.LoadInt32(&c.closed) == 1 {
		panic("testbus: use of closed connection")
	}
}

func (c *connection) shouldSignal(name, sender string, path dbus.ObjectPath, args []interface{}) bool {
	for _, cond := range c.matches[name] {
		matches := true
		for k, v := range cond {
			if !checkSignalCondition(k, v, sender, path, args) {
				matches = false
				break
			}
		}
		if matches {
			return true
		}
	}
	return false
}

// RegisterService creates a new service on the bus, optionally claiming one
// or more well-known names for it immediately.
func (t *Bus) RegisterService(names ...string) *Service {
	t.mu.Lock()
	svc, changes := t.registerServiceLocked(names...)
	busObj := t.busObj
	t.mu.Unlock()
	if busObj != nil {
		for n, chg := range changes {
			busObj.Emit(busutil.NameOwnerChanged.String(), n, chg[0], chg[1])
		}
	}
	return svc
}

func (t *Bus) registerServiceLocked(names ...string) (svc *Service, changes map[string][2]string) {
	id := fmt.Sprintf(":1.%d", t.nextID)
	t.nextID++
	nameSet := map[string]bool{}
	for _, n := range names {
		nameSet[n] = true
	}
	svc = &Service{
		bus: t, id: id, names: nameSet,
		objects: map[dbus.ObjectPath]*object{},
	}
	changes = map[string][2]string{}
	for n := range nameSet {
		old := ""
		if prev := t.services[n]; prev != nil {
			old = prev.id
			prev.mu.Lock()
			delete(prev.names, n)
			prev.mu.Unlock()
		}
		t.services[n] = svc
		changes[n] = [2]string{old, id}
	}
	return svc, changes
}

func checkSignalCondition(key, value, sender string, path dbus.ObjectPath, args []interface{}) bool {
	pathStr := string(path)
	switch key {
	case "path":
		return pathStr == value
	case "path_namespace":
		return pathStr == value || strings.HasPrefix(pathStr, value+"/")
	case "sender":
		return sender == value
	}
	if !strings.HasPrefix(key, "arg") || len(key) < 4 {
		return false
	}
	argNum, err := strconv.Atoi(string(key[3]))
	if err != nil || len(args) <= argNum {
		return false
	}
	var argVal string
	switch v := args[argNum].(type) {
	case string:
		argVal = v
	case dbus.ObjectPath:
		argVal = string(v)
	default:
		return false
	}
	switch key[4:] {
	case "namespace":
		return argVal == value || strings.HasPrefix(argVal, value+".")
	case "path":
		return argVal == value || strings.HasPrefix(argVal, value+"/")
	}
	return argVal == value
}

// matchOptionMap extracts key/value pairs from dbus.MatchOptions via
// reflection, since the fields backing them are unexported upstream.
func matchOptionMap(opts []dbus.MatchOption) map[string]string {
	m := map[string]string{}
	for _, o := range opts {
		v := reflect.ValueOf(o)
		k := v.FieldByName("key").String()
		val := v.FieldByName("value").String()
		m[k] = val
	}
	return m
}
