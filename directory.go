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

import (
	"fmt"
	"sort"

	"github.com/jacobsa/syncutil"
)

// Directory is the in-memory map of node id to node record described in
// §4.1. It is pure data: no I/O, no timers, no event emission. The Observer
// mutates it in response to decoded control packets and arms/disarms the
// publish debounce; the Directory only tracks the "is a node record
// present, and is it published" bookkeeping that makes that possible.
//
// Directory is safe for concurrent use: every method takes an
// InvariantMutex that re-validates §3's structural invariants after each
// mutation, the same defense-in-depth samples/memfs uses around its inode
// table.
type Directory struct {
	mu    syncutil.InvariantMutex
	nodes map[uint32]*nodeRecord
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	d := &Directory{
		nodes: make(map[uint32]*nodeRecord),
	}
	d.mu = syncutil.NewInvariantMutex(d.checkInvariants)
	return d
}

// checkInvariants enforces §3 invariants 1-4. It panics on violation, the
// same contract every syncutil.InvariantMutex user in the pack relies on:
// a violation here is a bug in this package, not a reachable runtime
// condition, so failing loudly beats limping on with corrupted state.
func (d *Directory) checkInvariants() {
	for id, r := range d.nodes {
		if r.id != id {
			panic(fmt.Sprintf("directory: node stored under key %d has id %d", id, r.id))
		}

		if len(r.services) == 0 && !r.debouncing {
			panic(fmt.Sprintf("directory: node %d has no services and no pending debounce", id))
		}

		seenPorts := make(map[uint32]*ServiceEntry, len(r.services))
		for _, e := range r.services {
			if got := r.byPort[e.Port]; got != e {
				panic(fmt.Sprintf("directory: node %d byPort[%d] = %v, want %v", id, e.Port, got, e))
			}
			if prev, dup := seenPorts[e.Port]; dup {
				panic(fmt.Sprintf("directory: node %d has duplicate port %d entries (%v, %v)", id, e.Port, prev, e))
			}
			seenPorts[e.Port] = e

			list := r.byService[e.ServiceID]
			member := false
			for _, s := range list {
				if s == e {
					member = true
					break
				}
			}
			if !member {
				panic(fmt.Sprintf("directory: node %d service entry %v missing from byService[%d]", id, e, e.ServiceID))
			}
		}

		for sid, list := range r.byService {
			if !sort.SliceIsSorted(list, func(i, j int) bool { return list[i].Version < list[j].Version }) {
				panic(fmt.Sprintf("directory: node %d byService[%d] not sorted by version", id, sid))
			}
		}

		if len(r.byPort) != len(r.services) {
			panic(fmt.Sprintf("directory: node %d has %d byPort entries for %d services", id, len(r.byPort), len(r.services)))
		}
	}
}

// getOrCreate returns the node record for id, creating an unpublished one if
// absent. Must be called with d.mu held.
func (d *Directory) getOrCreate(id uint32) *nodeRecord {
	r, ok := d.nodes[id]
	if !ok {
		r = newNodeRecord(id)
		d.nodes[id] = r
	}
	return r
}

// get returns the node record for id, or nil. Must be called with d.mu held.
func (d *Directory) get(id uint32) *nodeRecord {
	return d.nodes[id]
}

// remove deletes the node record for id outright (used when a node becomes
// empty). Must be called with d.mu held.
func (d *Directory) remove(id uint32) {
	delete(d.nodes, id)
}

// InsertService creates the node record if absent (unpublished) and adds a
// service entry to it. It does not guard against duplicate (node, port)
// inserts: the wire contract guarantees the kernel never issues duplicates,
// and the decode loop must not call this twice for the same (node, port).
func (d *Directory) InsertService(nodeID, port, serviceID uint32, version uint8, instance uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.getOrCreate(nodeID)
	r.insertService(port, serviceID, version, instance)
}

// RemoveService removes the entry at (nodeID, port), returning whether the
// node is now empty. If nodeID or port is unknown this is a no-op and ok is
// false (§4.1); the caller is expected to log a warning in that case.
func (d *Directory) RemoveService(nodeID, port uint32) (nowEmpty bool, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil {
		return false, false
	}

	if _, found := r.removeService(port); !found {
		return false, false
	}

	return r.empty(), true
}

// LookupPort returns the port of the highest-version entry for serviceID on
// nodeID.
func (d *Directory) LookupPort(nodeID, serviceID uint32) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil {
		return 0, false
	}
	return r.lookupPort(serviceID)
}

// LookupService returns the service ID bound to port on nodeID.
func (d *Directory) LookupService(nodeID, port uint32) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil {
		return 0, false
	}
	return r.lookupService(port)
}

// GetNode returns a snapshot of nodeID, or false if it is unknown or not
// yet published (§3 invariant 5).
func (d *Directory) GetNode(nodeID uint32) (Node, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil || !r.published {
		return Node{}, false
	}
	return r.snapshot(), true
}

// EnumerateNodes returns the ids of all currently published nodes, in
// ascending order for deterministic output.
func (d *Directory) EnumerateNodes() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var ids []uint32
	for id, r := range d.nodes {
		if r.published {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns a read-only copy of every published node, ordered by id.
// It restores the directory-export notion original_source exposes for
// service listing (SPEC_FULL.md supplemental feature); it adds no new
// invariant.
func (d *Directory) Snapshot() []Node {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Node
	var ids []uint32
	for id, r := range d.nodes {
		if r.published {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		out = append(out, d.nodes[id].snapshot())
	}
	return out
}

// setPublished flips nodeID's published flag and returns whether it
// changed. Used only by the Observer's debounce logic; unexported because
// the publish transition must go through the debounce + event-emission
// path, not be poked directly by callers.
func (d *Directory) setPublished(nodeID uint32, published bool) (changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil {
		return false
	}
	if r.published == published {
		return false
	}
	r.published = published
	return true
}

// setDebouncing marks whether a publish timer is currently pending for
// nodeID, satisfying invariant 4 (a record may exist with no services while
// a debounce is in flight). Used only by the Observer.
func (d *Directory) setDebouncing(nodeID uint32, debouncing bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil {
		return
	}
	r.debouncing = debouncing
}

// finalizeEmptyNode is called once RemoveService has reported a node's
// service list is now empty. In one critical section it clears published
// (reporting whether it was set, so the caller knows whether to emit
// node-removed), clears any pending debounce flag, and deletes the record
// outright — mirroring the remove algorithm in §4.2, which drops the
// directory entry unconditionally once a node's services are gone,
// regardless of whether a node-removed event fires. Doing this as one
// locked step avoids a window where the record is visibly empty and not
// debouncing without yet being deleted, which checkInvariants would flag
// as a violation of invariant 4.
func (d *Directory) finalizeEmptyNode(nodeID uint32) (wasPublished bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	if r == nil {
		return false
	}

	wasPublished = r.published
	r.published = false
	r.debouncing = false
	delete(d.nodes, nodeID)
	return wasPublished
}

// Counts returns the number of published nodes and the total number of
// service entries they export, for the Observer's metrics (see metrics.go).
func (d *Directory) Counts() (nodes int, services int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.nodes {
		if r.published {
			nodes++
			services += len(r.services)
		}
	}
	return
}

// isPublished reports whether nodeID currently has published == true.
func (d *Directory) isPublished(nodeID uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	r := d.get(nodeID)
	return r != nil && r.published
}
