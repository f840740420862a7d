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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBus_EmitInvokesSubscribers(t *testing.T) {
	b := newEventBus()

	var got []Event
	b.subscribe(NodeAdded, func(ev Event) { got = append(got, ev) })

	b.emit(Event{Kind: NodeAdded, NodeID: 5})
	b.emit(Event{Kind: NodeRemoved, NodeID: 5})

	require.Len(t, got, 1)
	require.Equal(t, uint32(5), got[0].NodeID)
}

func TestEventBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := newEventBus()

	var count int
	sub := b.subscribe(ServiceAdded, func(Event) { count++ })

	b.emit(Event{Kind: ServiceAdded})
	b.unsubscribe(ServiceAdded, sub)
	b.emit(Event{Kind: ServiceAdded})

	require.Equal(t, 1, count)
}

func TestEventBus_MultipleSubscribersAllInvoked(t *testing.T) {
	b := newEventBus()

	var a, c int
	b.subscribe(NodeAdded, func(Event) { a++ })
	b.subscribe(NodeAdded, func(Event) { c++ })

	b.emit(Event{Kind: NodeAdded})

	require.Equal(t, 1, a)
	require.Equal(t, 1, c)
}

func TestEventKind_String(t *testing.T) {
	cases := map[EventKind]string{
		NodeAdded:       "node-added",
		NodeRemoved:     "node-removed",
		ServiceAdded:    "service-added",
		ServiceRemoved:  "service-removed",
		EventKind(9999): "unknown-event",
	}
	for kind, want := range cases {
		require.Equal(t, want, kind.String())
	}
}
