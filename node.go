// Copyright 2015 Google Inc. All Rights Reserved.
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

package qrtr

// ServiceEntry describes one service a node exports at one port. It is
// immutable once created; (NodeID, Port) uniquely identifies it. ServiceID,
// Version, and Instance are descriptive metadata (§3).
type ServiceEntry struct {
	NodeID   uint32
	Port     uint32
	ServiceID uint32
	Version  uint8
	Instance uint32 // u24 on the wire; stored widened.
}

// Node is a read-only view of one node's currently known services. Values
// returned by Directory/Observer lookups are snapshots: mutating the
// directory afterward does not change a Node already handed to a caller.
type Node struct {
	ID       uint32
	Services []ServiceEntry
}

// ServiceByID returns the preferred (highest-version) entry for serviceID,
// or false if the node doesn't export it.
func (n Node) ServiceByID(serviceID uint32) (ServiceEntry, bool) {
	var best ServiceEntry
	found := false
	for _, e := range n.Services {
		if e.ServiceID != serviceID {
			continue
		}
		if !found || e.Version > best.Version {
			best = e
			found = true
		}
	}
	return best, found
}

// ServiceByPort returns the entry bound to port, or false if none.
func (n Node) ServiceByPort(port uint32) (ServiceEntry, bool) {
	for _, e := range n.Services {
		if e.Port == port {
			return e, true
		}
	}
	return ServiceEntry{}, false
}

// nodeRecord is the directory's mutable, internally-owned record for one
// node. It backs the read-only Node snapshots handed out to callers.
//
// Invariants (checked by Directory.checkInvariants, §3):
//  1. for every e in services, byPort[e.Port] == e and e is a member of
//     byService[e.ServiceID].
//  2. every key in byPort names exactly one service entry.
//  3. byService[s] is sorted ascending by Version; ties keep insertion
//     order.
//  4. the record exists in the directory iff services is non-empty or a
//     publish debounce is pending.
type nodeRecord struct {
	id         uint32
	services   []*ServiceEntry
	byService  map[uint32][]*ServiceEntry
	byPort     map[uint32]*ServiceEntry
	published  bool
	debouncing bool // a publish timer is currently armed for this node
}

func newNodeRecord(id uint32) *nodeRecord {
	return &nodeRecord{
		id:        id,
		byService: make(map[uint32][]*ServiceEntry),
		byPort:    make(map[uint32]*ServiceEntry),
	}
}

// insertService adds a new service entry. The caller (the decoder) must not
// call this twice for the same port: the wire contract guarantees the
// kernel never issues duplicate NEW_SERVERs, and insertService does not
// itself deduplicate (§4.1).
func (r *nodeRecord) insertService(port, serviceID uint32, version uint8, instance uint32) *ServiceEntry {
	e := &ServiceEntry{
		NodeID:    r.id,
		Port:      port,
		ServiceID: serviceID,
		Version:   version,
		Instance:  instance,
	}

	r.services = append(r.services, e)
	r.byPort[port] = e

	list := r.byService[serviceID]
	i := 0
	for i < len(list) && list[i].Version <= version {
		i++
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = e
	r.byService[serviceID] = list

	return e
}

// removeService removes the entry at port, if any, returning it and whether
// it was found. Per §4.1, an unknown port is a no-op (the caller logs a
// warning); it does not panic or return an error.
func (r *nodeRecord) removeService(port uint32) (*ServiceEntry, bool) {
	e, ok := r.byPort[port]
	if !ok {
		return nil, false
	}

	delete(r.byPort, port)

	for i, s := range r.services {
		if s == e {
			r.services = append(r.services[:i], r.services[i+1:]...)
			break
		}
	}

	list := r.byService[e.ServiceID]
	for i, s := range list {
		if s == e {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byService, e.ServiceID)
	} else {
		r.byService[e.ServiceID] = list
	}

	return e, true
}

// empty reports whether the node currently exports no services.
func (r *nodeRecord) empty() bool {
	return len(r.services) == 0
}

// lookupPort returns the port of the highest-version entry for serviceID.
func (r *nodeRecord) lookupPort(serviceID uint32) (uint32, bool) {
	list := r.byService[serviceID]
	if len(list) == 0 {
		return 0, false
	}
	return list[len(list)-1].Port, true
}

// lookupService returns the service ID bound to port.
func (r *nodeRecord) lookupService(port uint32) (uint32, bool) {
	e, ok := r.byPort[port]
	if !ok {
		return 0, false
	}
	return e.ServiceID, true
}

// snapshot returns a read-only Node view of the current state. The returned
// Services slice is a fresh copy; mutating the record afterward does not
// affect it.
func (r *nodeRecord) snapshot() Node {
	out := Node{ID: r.id, Services: make([]ServiceEntry, len(r.services))}
	for i, e := range r.services {
		out.Services[i] = *e
	}
	return out
}
