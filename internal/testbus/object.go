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

package testbus

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/internal/busutil"
)

// object is the service-owned state backing one path; Object below is a
// per-connection view of it (so Call can see who's asking).
type object struct {
	mu    sync.Mutex
	svc   *Service
	path  dbus.ObjectPath
	props map[string]interface{}
	calls map[string]func(...interface{}) ([]interface{}, error)
	eCall func(string, ...interface{}) ([]interface{}, error)
}

// Object represents a connection's view of an object on the test bus. It
// implements dbus.BusObject so it can stand in for a real object wherever
// the daemon's code calls conn.Object(dest, path).
type Object struct {
	*object
	conn *connection
}

// Call invokes a registered handler and returns its result as a *dbus.Call
// that is already complete (the test bus is synchronous).
func (o *Object) Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	o.check()
	method = busutil.Expand(o.dest(), method)
	call := &dbus.Call{
		Destination: o.dest(),
		Path:        o.path,
		Method:      method,
		Args:        args,
		Done:        make(chan *dbus.Call, 1),
	}
	call.Done <- call
	o.mu.Lock()
	h, ok := o.calls[method]
	eCall := o.eCall
	o.mu.Unlock()
	if !ok && eCall != nil {
		h = func(args ...interface{}) ([]interface{}, error) {
			return eCall(method, args...)
		}
	}
	if h == nil {
		call.Err = errors.New("no such method: " + method)
	} else {
		call.Body, call.Err = h(args...)
	}
	return call
}

// CallWithContext acts like Call but accepts a context (ignored: calls on
// the test bus complete synchronously and never block).
func (o *Object) CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call {
	return o.Call(method, flags, args...)
}

// Go calls a method asynchronously, delivering the result on ch.
func (o *Object) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	go func() {
		time.Sleep(time.Millisecond)
		ch <- o.Call(method, flags, args...)
	}()
	return nil
}

// GoWithContext acts like Go but accepts a context.
func (o *Object) GoWithContext(ctx context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...interface{}) *dbus.Call {
	return o.Go(method, flags, ch, args...)
}

func matchCallResult(method string, err error) *dbus.Call {
	c := &dbus.Call{
		Destination: busutil.DBusInterface,
		Path:        busutil.BusPath,
		Method:      busutil.Expand(busutil.DBusInterface, method),
		Done:        make(chan *dbus.Call, 1),
		Err:         err,
	}
	c.Done <- c
	return c
}

// AddMatchSignal records a match rule for this connection.
func (o *Object) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	o.check()
	name := iface + "." + member
	o.conn.mu.Lock()
	defer o.conn.mu.Unlock()
	o.conn.matches[name] = append(o.conn.matches[name], matchOptionMap(options))
	return matchCallResult("AddMatch", nil)
}

// RemoveMatchSignal removes a previously registered match rule.
func (o *Object) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	o.check()
	name := iface + "." + member
	o.conn.mu.Lock()
	defer o.conn.mu.Unlock()
	want := matchOptionMap(options)
	ms := o.conn.matches[name]
	for i, m := range ms {
		if mapsEqual(m, want) {
			o.conn.matches[name] = append(ms[:i], ms[i+1:]...)
			return matchCallResult("RemoveMatch", nil)
		}
	}
	return matchCallResult("RemoveMatch", errors.New("match not found"))
}

func mapsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// GetProperty returns the value of a named property.
func (o *Object) GetProperty(p string) (dbus.Variant, error) {
	o.check()
	o.mu.Lock()
	defer o.mu.Unlock()
	if v, ok := o.props[p]; ok {
		return dbus.MakeVariant(v), nil
	}
	return dbus.Variant{}, errors.New("no such property: " + p)
}

// StoreProperty fetches a property and stores it into dest.
func (o *Object) StoreProperty(p string, dest interface{}) error {
	v, err := o.GetProperty(p)
	if err == nil {
		err = dbus.Store([]interface{}{v}, dest)
	}
	return err
}

// Destination returns the well-known or unique name calls are sent to.
func (o *Object) Destination() string { o.check(); return o.dest() }

// Path returns the object path calls are sent to.
func (o *Object) Path() dbus.ObjectPath { o.check(); return o.path }

func (o *object) dest() string {
	for n := range o.svc.names {
		return n
	}
	return o.svc.id
}

// SetProperties installs props on the object and emits PropertiesChanged:
// with the new values, or, if invalidateOnly is requested, naming the
// properties but omitting their values (the bus's "invalidated_properties"
// form).
func (o *Object) SetProperties(props map[string]interface{}, invalidateOnly bool) {
	o.check()
	o.mu.Lock()
	iface := ""
	for k := range props {
		if i := strings.LastIndexByte(k, '.'); i >= 0 {
			iface = k[:i]
		}
	}
	for k, v := range props {
		o.props[k] = v
	}
	o.mu.Unlock()
	changed := map[string]dbus.Variant{}
	invalidated := []string{}
	if invalidateOnly {
		for k := range props {
			invalidated = append(invalidated, k)
		}
	} else {
		for k, v := range props {
			changed[k] = dbus.MakeVariant(v)
		}
	}
	o.Emit(busutil.PropertiesChanged.String(), iface, changed, invalidated)
}

// On registers a handler invoked whenever method is called.
func (o *Object) On(method string, do func(...interface{}) ([]interface{}, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls[busutil.Expand(o.dest(), method)] = do
}

// OnElse registers a fallback handler for unregistered methods.
func (o *Object) OnElse(do func(string, ...interface{}) ([]interface{}, error)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.eCall = do
}

// Emit sends a signal from this object, dispatching it to every connection
// with a matching rule.
func (o *Object) Emit(name string, args ...interface{}) {
	name = busutil.Expand(o.dest(), name)
	o.svc.bus.emit(name, o.svc.id, o.path, args...)
}

func (o *object) check() {
	o.svc.checkRegistered()
}
