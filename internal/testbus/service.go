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
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"github.com/openbmc-project/mapperd/internal/busutil"
)

// Service represents one simulated peer on the test bus: a single unique
// name that may own any number of well-known names, each hosting its own
// object tree.
type Service struct {
	mu        sync.Mutex
	destroyed int32

	bus     *Bus
	id      string
	names   map[string]bool
	objects map[dbus.ObjectPath]*object
}

// ID returns the unique (":1.N") name assigned to this service.
func (s *Service) ID() string { return s.id }

// AddName claims an additional well-known name for this service, stealing
// it from any previous owner.
func (s *Service) AddName(name string) {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names[name] {
		return
	}
	old := ""
	if prev := s.bus.services[name]; prev != nil {
		old = prev.id
		prev.mu.Lock()
		delete(prev.names, name)
		prev.mu.Unlock()
	}
	s.bus.services[name] = s
	s.names[name] = true
	go s.bus.busObj.Emit(busutil.NameOwnerChanged.String(), name, old, s.id)
}

// RemoveName releases a well-known name without destroying the service.
func (s *Service) RemoveName(name string) {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.names[name] {
		return
	}
	delete(s.bus.services, name)
	delete(s.names, name)
	go s.bus.busObj.Emit(busutil.NameOwnerChanged.String(), name, s.id, "")
}

// Unregister removes every name the service owns, as if the peer
// disconnected from the bus.
func (s *Service) Unregister() {
	if !atomic.CompareAndSwapInt32(&s.destroyed, 0, 1) {
		panic("testbus: service already unregistered")
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for n := range s.names {
		delete(s.bus.services, n)
		go s.bus.busObj.Emit(busutil.NameOwnerChanged.String(), n, s.id, "")
	}
	s.names = nil
	s.objects = nil
}

func (s *Service) checkRegistered() {
	if atomic.LoadInt32(&s.destroyed) == 1 {
		panic("testbus: use of object from unregistered service")
	}
}

// object returns the object at path for this service (a connection-less
// view; Bus.Object binds it to a connection).
func (s *Service) object(path dbus.ObjectPath) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[path]
	if !ok {
		o = &object{
			svc: s, path: path,
			props: map[string]interface{}{},
			calls: map[string]func(...interface{}) ([]interface{}, error){},
		}
		s.objects[path] = o
	}
	return &Object{o, nil}
}

// Object returns the object at path, for use before any connection exists
// (e.g. to call On/SetProperties while setting up a test scenario).
func (s *Service) Object(path dbus.ObjectPath) *Object {
	return s.object(path)
}
