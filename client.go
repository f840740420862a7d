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
	"fmt"
	"log"
	"sync"
)

// maxDatagramSize bounds the receive buffer for a Client socket. QRTR
// datagrams are bus-local and small in practice; this is generous headroom
// rather than a wire-contract limit (§6 defines no maximum payload size).
const maxDatagramSize = 65536

// MessageHandler is invoked for every inbound datagram a Client receives
// (§4.3's "message(bytes)" event). buf is a freshly owned copy; the
// Client's internal receive buffer is reused immediately after the call
// returns.
type MessageHandler func(buf []byte)

// Client is the per-(node,port) datagram conduit described in §4.3. It
// holds a weak handle to the Node it was opened against (identity only,
// via OpenClient); it does not route through an Observer, and an Observer
// shutting down or forgetting the node has no effect on an open Client.
type Client struct {
	sock   socket
	remote sockAddr
	nodeID uint32
	port   uint32
	node   *Node

	debugLogger *log.Logger
	errorLogger *log.Logger
	onMessage   MessageHandler

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Open creates a datagram socket bound to no particular local address and
// records nodeID/port as its fixed remote address (§4.3's open operation).
// It immediately starts a read goroutine that delivers inbound datagrams
// to the configured MessageHandler, if any.
func Open(nodeID, port uint32, opts ...ClientOption) (*Client, error) {
	sock, err := newQrtrSocket()
	if err != nil {
		return nil, newError(SocketCreate, "Open", err)
	}
	return openWithSocket(sock, nodeID, port, opts...)
}

// openWithSocket is Open's implementation, parameterized over the socket
// so tests can substitute a fake.
func openWithSocket(sock socket, nodeID, port uint32, opts ...ClientOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(&cfg)
	}

	if err := sock.bind(sockAddr{}); err != nil {
		sock.close()
		return nil, newError(SocketCreate, "Open", err)
	}

	c := &Client{
		sock:        sock,
		remote:      sockAddr{Node: nodeID, Port: port},
		nodeID:      nodeID,
		port:        port,
		debugLogger: cfg.debugLogger,
		errorLogger: cfg.errorLogger,
		onMessage:   cfg.onMessage,
		stop:        make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	return c, nil
}

// OpenClient resolves serviceID on nodeID through obs's directory and opens
// a Client against the resulting port, stamping the returned Client with a
// snapshot of the Node for identity purposes (§3's "Client channel ...
// independent of directory changes").
func (o *Observer) OpenClient(nodeID, serviceID uint32, opts ...ClientOption) (*Client, error) {
	return o.openClient(func(node uint32, port uint32, opts ...ClientOption) (*Client, error) {
		sock, err := newQrtrSocket()
		if err != nil {
			return nil, newError(SocketCreate, "OpenClient", err)
		}
		return openWithSocket(sock, node, port, opts...)
	}, nodeID, serviceID, opts...)
}

// openClient is OpenClient's implementation, parameterized over the opener
// so tests can substitute a fake socket without touching the resolution
// logic.
func (o *Observer) openClient(open func(nodeID, port uint32, opts ...ClientOption) (*Client, error), nodeID, serviceID uint32, opts ...ClientOption) (*Client, error) {
	node, ok := o.GetNode(nodeID)
	if !ok {
		return nil, newError(SocketIO, "OpenClient", fmt.Errorf("node %d is unknown or not yet published", nodeID))
	}

	entry, ok := node.ServiceByID(serviceID)
	if !ok {
		return nil, newError(SocketIO, "OpenClient", fmt.Errorf("node %d does not export service %d", nodeID, serviceID))
	}

	c, err := open(nodeID, entry.Port, opts...)
	if err != nil {
		return nil, err
	}
	c.node = &node
	return c, nil
}

// NodeID returns the remote node this Client is addressed to.
func (c *Client) NodeID() uint32 { return c.nodeID }

// Port returns the remote port this Client is addressed to.
func (c *Client) Port() uint32 { return c.port }

// Node returns the Node snapshot this Client was opened against via
// OpenClient, or false if it was opened with Open directly.
func (c *Client) Node() (Node, bool) {
	if c.node == nil {
		return Node{}, false
	}
	return *c.node, true
}

// Send sends msg as a single datagram to the Client's remote (node, port)
// (§4.3's send operation). The entire buffer is one message; no framing is
// added. ctx may be nil, meaning no cancellation check.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return newError(Cancelled, "Send", ctx.Err())
		default:
		}
	}

	if err := c.sock.sendTo(msg, c.remote); err != nil {
		return newError(SocketIO, "Send", err)
	}
	return nil
}

// readLoop delivers inbound datagrams to onMessage until the socket is
// closed. Delivery order matches kernel delivery order (§4.3): one
// recvFrom per loop iteration, processed before the next is issued.
func (c *Client) readLoop() {
	defer c.wg.Done()

	buf := make([]byte, maxDatagramSize)
	for {
		n, _, err := c.sock.recvFrom(buf)
		if err != nil {
			select {
			case <-c.stop:
				// Expected: Close() tore down the socket underneath us.
			default:
				c.errorLogger.Printf("client (node=%d port=%d) recv failed: %v", c.nodeID, c.port, err)
			}
			return
		}

		if c.onMessage == nil {
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		c.onMessage(payload)
	}
}

// Close releases the Client's socket. It may be called more than once;
// only the first call has effect.
func (c *Client) Close() error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		err = c.sock.close()
	})
	c.wg.Wait()
	return err
}
