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

func TestNode_ServiceByID_PrefersHighestVersion(t *testing.T) {
	n := Node{
		ID: 7,
		Services: []ServiceEntry{
			{NodeID: 7, Port: 20, ServiceID: 200, Version: 1},
			{NodeID: 7, Port: 21, ServiceID: 200, Version: 3},
			{NodeID: 7, Port: 22, ServiceID: 200, Version: 2},
		},
	}

	entry, ok := n.ServiceByID(200)
	require.True(t, ok)
	require.EqualValues(t, 21, entry.Port)
	require.EqualValues(t, 3, entry.Version)
}

func TestNode_ServiceByID_Missing(t *testing.T) {
	n := Node{ID: 1}
	_, ok := n.ServiceByID(999)
	require.False(t, ok)
}

func TestNode_ServiceByPort(t *testing.T) {
	n := Node{
		ID: 1,
		Services: []ServiceEntry{
			{NodeID: 1, Port: 10, ServiceID: 100},
		},
	}

	entry, ok := n.ServiceByPort(10)
	require.True(t, ok)
	require.EqualValues(t, 100, entry.ServiceID)

	_, ok = n.ServiceByPort(999)
	require.False(t, ok)
}

func TestNodeRecord_RemoveServiceKeepsByServiceConsistent(t *testing.T) {
	r := newNodeRecord(1)
	r.insertService(10, 100, 1, 0)
	r.insertService(11, 100, 2, 0)

	_, found := r.removeService(10)
	require.True(t, found)

	list := r.byService[100]
	require.Len(t, list, 1)
	require.EqualValues(t, 11, list[0].Port)

	// Removing the last entry for a service must drop the map key
	// entirely, not leave an empty slice behind.
	r.removeService(11)
	_, exists := r.byService[100]
	require.False(t, exists)
}

func TestNodeRecord_InsertKeepsVersionSortedOrder(t *testing.T) {
	r := newNodeRecord(1)
	r.insertService(1, 100, 5, 0)
	r.insertService(2, 100, 1, 0)
	r.insertService(3, 100, 9, 0)
	r.insertService(4, 100, 5, 0)

	list := r.byService[100]
	for i := 1; i < len(list); i++ {
		require.LessOrEqual(t, list[i-1].Version, list[i].Version)
	}
	require.EqualValues(t, 9, list[len(list)-1].Version)
}
