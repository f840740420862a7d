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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClient_SendWritesToRemote(t *testing.T) {
	sock := newFakeSocket(sockAddr{})
	c, err := openWithSocket(sock, 5, 10)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), []byte("ping")))

	sent, ok := sock.lastSent()
	require.True(t, ok)
	require.Equal(t, []byte("ping"), sent.data)
	require.EqualValues(t, 5, sent.to.Node)
	require.EqualValues(t, 10, sent.to.Port)

	require.EqualValues(t, 5, c.NodeID())
	require.EqualValues(t, 10, c.Port())
}

func TestClient_SendRespectsCancelledContext(t *testing.T) {
	sock := newFakeSocket(sockAddr{})
	c, err := openWithSocket(sock, 5, 10)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = c.Send(ctx, []byte("ping"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrCancelled)
	require.Equal(t, 0, sock.sentCount())
}

func TestClient_ReceivesInboundMessages(t *testing.T) {
	sock := newFakeSocket(sockAddr{})

	received := make(chan []byte, 1)
	c, err := openWithSocket(sock, 5, 10, WithMessageHandler(func(buf []byte) {
		received <- buf
	}))
	require.NoError(t, err)
	defer c.Close()

	sock.inject([]byte("pong"), sockAddr{Node: 5, Port: 10})

	select {
	case buf := <-received:
		require.Equal(t, []byte("pong"), buf)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestClient_ZeroLengthDatagramDelivered(t *testing.T) {
	sock := newFakeSocket(sockAddr{})

	received := make(chan []byte, 1)
	c, err := openWithSocket(sock, 5, 10, WithMessageHandler(func(buf []byte) {
		received <- buf
	}))
	require.NoError(t, err)
	defer c.Close()

	sock.inject([]byte{}, sockAddr{Node: 5, Port: 10})

	select {
	case buf := <-received:
		require.Len(t, buf, 0)
	case <-time.After(time.Second):
		t.Fatal("zero-length message not delivered")
	}
}

func TestClient_NoHandlerDoesNotBlockReadLoop(t *testing.T) {
	sock := newFakeSocket(sockAddr{})
	c, err := openWithSocket(sock, 5, 10)
	require.NoError(t, err)

	sock.inject([]byte("ignored"), sockAddr{Node: 5, Port: 10})

	// With no handler configured, the read loop must keep draining rather
	// than deadlock; closing promptly demonstrates that.
	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return, read loop likely stuck")
	}
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	sock := newFakeSocket(sockAddr{})
	c, err := openWithSocket(sock, 5, 10)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestClient_OpenWithoutOpenClientHasNoNode(t *testing.T) {
	sock := newFakeSocket(sockAddr{})
	c, err := openWithSocket(sock, 5, 10)
	require.NoError(t, err)
	defer c.Close()

	_, ok := c.Node()
	require.False(t, ok)
}

func TestObserver_OpenClient_ResolvesPortAndStampsNode(t *testing.T) {
	o, sock := newTestObserver(t)

	feedNewServer(sock, 5, 10, 100, 2, 0)
	waitFor(t, time.Second, func() bool {
		_, ok := o.GetNode(5)
		return ok
	})

	clientSock := newFakeSocket(sockAddr{})
	c, err := o.openClient(func(nodeID, port uint32, opts ...ClientOption) (*Client, error) {
		return openWithSocket(clientSock, nodeID, port, opts...)
	}, 5, 100)
	require.NoError(t, err)
	defer c.Close()

	require.EqualValues(t, 5, c.NodeID())
	require.EqualValues(t, 10, c.Port())

	node, ok := c.Node()
	require.True(t, ok)
	require.EqualValues(t, 5, node.ID)
}

func TestObserver_OpenClient_UnknownNode(t *testing.T) {
	o, _ := newTestObserver(t)

	_, err := o.openClient(func(nodeID, port uint32, opts ...ClientOption) (*Client, error) {
		t.Fatal("open should not be called for an unknown node")
		return nil, nil
	}, 404, 1)

	require.Error(t, err)
}

func TestObserver_OpenClient_UnknownService(t *testing.T) {
	o, sock := newTestObserver(t)

	feedNewServer(sock, 5, 10, 100, 0, 0)
	waitFor(t, time.Second, func() bool {
		_, ok := o.GetNode(5)
		return ok
	})

	_, err := o.openClient(func(nodeID, port uint32, opts ...ClientOption) (*Client, error) {
		t.Fatal("open should not be called for an unknown service")
		return nil, nil
	}, 5, 999)

	require.Error(t, err)
}
