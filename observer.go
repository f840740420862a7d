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
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/qrtr-go/qrtr/internal/qrtrwire"
)

// publishDebounce is PUBLISH_DEBOUNCE_MS (§4.2): the window a freshly
// discovered node's service burst has to settle before it is published.
const publishDebounce = 100 * time.Millisecond

// socket is the subset of *qrtrSocket's behavior the Observer and Client
// depend on. Naming it as an interface lets tests exercise the decode loop
// and send/receive paths with an in-memory fake instead of a real
// AF_QIPCRTR socket, which is only available with the kernel qrtr driver
// loaded.
type socket interface {
	bind(addr sockAddr) error
	localAddr() (sockAddr, error)
	sendTo(buf []byte, addr sockAddr) error
	recvFrom(buf []byte) (int, sockAddr, error)
	close() error
}

// Observer owns the control socket described in §4.2: it drives the kernel
// lookup handshake, decodes NEW_SERVER/DEL_SERVER control packets, mutates
// a Directory, and emits the four event kinds in event.go.
//
// Per §5, all directory mutation, event emission, and timer callbacks for
// one Observer execute on a single goroutine (runLoop); everything else
// (readLoop, the timers armed by armDebounce) only ever hands work to that
// goroutine over a channel, mirroring the "ad-hoc timer+signal race ->
// one-shot completion, first caller wins" re-architecture called for in
// §9. Directory itself keeps its own lock because GetNode/LookupPort/etc.
// are called from arbitrary caller goroutines, not just the loop.
type Observer struct {
	sock  socket
	local sockAddr

	directory *Directory
	events    *eventBus

	debugLogger *log.Logger
	errorLogger *log.Logger
	clock       clockT
	metrics     *Metrics

	pktCh       chan qrtrwire.CtrlPacket
	timerFireCh chan uint32
	readErrCh   chan error
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup

	// debounceTimers and initQuiesce are only ever touched from runLoop, so
	// they need no lock of their own (§5's single-loop-thread ownership).
	debounceTimers map[uint32]*time.Timer
	initQuiesceCh  chan struct{}
	initDone       chan struct{}
	initDoneOnce   sync.Once

	mu     sync.Mutex // guards failed
	failed bool
}

// clockT is the subset of timeutil.Clock this package depends on, named
// locally so observer.go doesn't need to import timeutil just to spell out
// the field type in doc comments.
type clockT interface {
	Now() time.Time
}

// Create opens the control socket, sends the initial NEW_LOOKUP, and starts
// decoding (§4.2's initialization protocol, steps 1-5). If WithLookupTimeout
// is non-zero, Create blocks until the bus quiesces (no further service
// delivery for one publishDebounce window) or the timeout elapses, per step
// 6; with the default zero timeout it returns as soon as the socket is up
// and callers discover nodes asynchronously via NodeAdded.
func Create(opts ...Option) (*Observer, error) {
	sock, err := newQrtrSocket()
	if err != nil {
		return nil, newError(SocketCreate, "Create", err)
	}
	return createWithSocket(sock, opts...)
}

// createWithSocket is Create's implementation, parameterized over the
// socket so tests can substitute a fake. sock is already a freshly opened,
// unbound socket; createWithSocket owns it from here on.
func createWithSocket(sock socket, opts ...Option) (*Observer, error) {
	cfg := defaultObserverConfig()
	for _, o := range opts {
		o(&cfg)
	}

	// Explicitly bind with a zero address so the kernel assigns us an
	// ephemeral port on the local node; getsockname then reports it.
	if err := sock.bind(sockAddr{}); err != nil {
		sock.close()
		return nil, newError(SocketCreate, "Create", err)
	}

	local, err := sock.localAddr()
	if err != nil {
		sock.close()
		return nil, newError(SocketIO, "Create", err)
	}

	o := &Observer{
		sock:           sock,
		local:          local,
		directory:      NewDirectory(),
		events:         newEventBus(),
		debugLogger:    cfg.debugLogger,
		errorLogger:    cfg.errorLogger,
		clock:          cfg.clock,
		metrics:        cfg.metrics,
		pktCh:          make(chan qrtrwire.CtrlPacket, 16),
		timerFireCh:    make(chan uint32, 16),
		readErrCh:      make(chan error, 1),
		stop:           make(chan struct{}),
		debounceTimers: make(map[uint32]*time.Timer),
		initQuiesceCh:  make(chan struct{}, 1),
		initDone:       make(chan struct{}),
	}

	if err := o.sendLookup(); err != nil {
		sock.close()
		return nil, newError(SocketIO, "Create", err)
	}

	o.wg.Add(2)
	go o.readLoop()
	go o.runLoop()

	if cfg.lookupTimeout <= 0 {
		return o, nil
	}

	deadline := o.clock.Now().Add(cfg.lookupTimeout)
	select {
	case <-o.initDone:
		return o, nil
	case <-time.After(cfg.lookupTimeout):
		o.errorLogger.Printf("lookup did not quiesce before deadline %s", deadline)
		o.Close()
		return nil, newError(Timeout, "Create", fmt.Errorf("bus did not quiesce within %s", cfg.lookupTimeout))
	}
}

// sendLookup sends the NEW_LOOKUP control packet to QRTR_PORT_CTRL on the
// local node (§4.2 steps 3-4).
func (o *Observer) sendLookup() error {
	dest := sockAddr{Node: o.local.Node, Port: qrtrwire.CtrlPort}
	return o.sock.sendTo(qrtrwire.EncodeNewLookup(), dest)
}

// readLoop owns the blocking socket reads. It never touches the directory
// or event bus directly; it only hands decoded packets (or a terminal
// error) to runLoop.
func (o *Observer) readLoop() {
	defer o.wg.Done()

	buf := make([]byte, qrtrwire.PacketSize)
	for {
		n, _, err := o.sock.recvFrom(buf)
		if err != nil {
			select {
			case o.readErrCh <- err:
			case <-o.stop:
			}
			return
		}

		if n < qrtrwire.PacketSize {
			o.debugLogger.Printf("dropping short control packet: %d bytes, want %d", n, qrtrwire.PacketSize)
			continue
		}

		pkt, err := qrtrwire.Decode(buf[:n])
		if err != nil {
			o.debugLogger.Printf("dropping unparseable control packet: %v", err)
			continue
		}

		select {
		case o.pktCh <- pkt:
		case <-o.stop:
			return
		}
	}
}

// runLoop is the single goroutine that mutates the directory, emits
// events, and arms/fires debounce timers (§5).
func (o *Observer) runLoop() {
	defer o.wg.Done()

	initTimer := time.AfterFunc(publishDebounce, func() {
		select {
		case o.initQuiesceCh <- struct{}{}:
		case <-o.stop:
		}
	})
	defer initTimer.Stop()

	initClosed := false

	for {
		select {
		case pkt := <-o.pktCh:
			o.handlePacket(pkt)
			if !initClosed {
				initTimer.Reset(publishDebounce)
			}

		case nodeID := <-o.timerFireCh:
			o.handleDebounceFire(nodeID)

		case <-o.initQuiesceCh:
			if !initClosed {
				initClosed = true
				close(o.initDone)
			}

		case err := <-o.readErrCh:
			o.handleReadError(err)
			return

		case <-o.stop:
			return
		}
	}
}

// handlePacket dispatches one decoded control packet to the add/remove
// algorithms in §4.2 and updates packet-count metrics.
func (o *Observer) handlePacket(pkt qrtrwire.CtrlPacket) {
	switch pkt.Cmd {
	case qrtrwire.CmdNewServer:
		o.handleNewServer(pkt)
	case qrtrwire.CmdDelServer:
		o.handleDelServer(pkt)
	default:
		o.debugLogger.Printf("dropping control packet with unrecognized cmd %s", qrtrwire.CmdName(pkt.Cmd))
	}

	o.metrics.observePacket(pkt.Cmd)
}

// handleNewServer implements §4.2's add algorithm.
func (o *Observer) handleNewServer(pkt qrtrwire.CtrlPacket) {
	o.directory.InsertService(pkt.Node, pkt.Port, pkt.Service, pkt.Version, pkt.Instance)
	o.events.emit(Event{Kind: ServiceAdded, NodeID: pkt.Node, ServiceID: pkt.Service})

	if !o.directory.isPublished(pkt.Node) {
		o.armDebounce(pkt.Node)
	}

	o.reportDirectoryMetrics()
}

// handleDelServer implements §4.2's remove algorithm.
func (o *Observer) handleDelServer(pkt qrtrwire.CtrlPacket) {
	nowEmpty, ok := o.directory.RemoveService(pkt.Node, pkt.Port)
	if !ok {
		o.errorLogger.Printf("DEL_SERVER for unknown node=%d port=%d (stray delete, ignoring)", pkt.Node, pkt.Port)
		return
	}

	o.events.emit(Event{Kind: ServiceRemoved, NodeID: pkt.Node, ServiceID: pkt.Service})

	if nowEmpty {
		o.cancelDebounce(pkt.Node)

		wasPublished := o.directory.finalizeEmptyNode(pkt.Node)
		if wasPublished {
			o.events.emit(Event{Kind: NodeRemoved, NodeID: pkt.Node})
		}
	}

	o.reportDirectoryMetrics()
}

// armDebounce (re)arms the single-shot publish timer for nodeID. Only
// called from runLoop.
func (o *Observer) armDebounce(nodeID uint32) {
	o.directory.setDebouncing(nodeID, true)

	if t, ok := o.debounceTimers[nodeID]; ok {
		t.Stop()
	}

	o.debounceTimers[nodeID] = time.AfterFunc(publishDebounce, func() {
		select {
		case o.timerFireCh <- nodeID:
		case <-o.stop:
		}
	})
}

// cancelDebounce stops and forgets any pending publish timer for nodeID.
// Only called from runLoop.
func (o *Observer) cancelDebounce(nodeID uint32) {
	if t, ok := o.debounceTimers[nodeID]; ok {
		t.Stop()
		delete(o.debounceTimers, nodeID)
	}
}

// handleDebounceFire implements the publish debounce's firing behavior
// (§4.2): if nodeID is still unpublished and still present, flip published
// and emit NodeAdded. Only called from runLoop.
func (o *Observer) handleDebounceFire(nodeID uint32) {
	delete(o.debounceTimers, nodeID)
	o.directory.setDebouncing(nodeID, false)

	if o.directory.setPublished(nodeID, true) {
		o.events.emit(Event{Kind: NodeAdded, NodeID: nodeID})
		o.reportDirectoryMetrics()
	}
}

func (o *Observer) reportDirectoryMetrics() {
	nodes, services := o.directory.Counts()
	o.metrics.setDirectoryCounts(nodes, services)
}

// handleReadError implements the failure semantics of §4.2/§7: the decoder
// stops, the directory is left exactly as it last stood, and the condition
// is only observable through the error logger (see DESIGN.md for why this
// spec, preserved from the source, does not synthesize NodeRemoved here).
func (o *Observer) handleReadError(err error) {
	o.mu.Lock()
	o.failed = true
	o.mu.Unlock()

	o.errorLogger.Printf("control socket read failed, observer stopping: %v", err)
}

// Failed reports whether the decoder has stopped after a socket I/O error.
// The directory is retained at its last-known state; no further updates
// will occur.
func (o *Observer) Failed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failed
}

// GetNode returns a snapshot of nodeID, or false if it is unknown or not
// yet published (§3 invariant 5).
func (o *Observer) GetNode(nodeID uint32) (Node, bool) {
	return o.directory.GetNode(nodeID)
}

// PeekNode is an alias for GetNode. The two historically coexisting
// observer variants in the source used different names for the same
// lookup (§9); both are kept here for callers migrating from either.
func (o *Observer) PeekNode(nodeID uint32) (Node, bool) {
	return o.GetNode(nodeID)
}

// LookupPort returns the port of the highest-version entry for serviceID
// on nodeID.
func (o *Observer) LookupPort(nodeID, serviceID uint32) (uint32, bool) {
	return o.directory.LookupPort(nodeID, serviceID)
}

// LookupService returns the service ID bound to port on nodeID.
func (o *Observer) LookupService(nodeID, port uint32) (uint32, bool) {
	return o.directory.LookupService(nodeID, port)
}

// EnumerateNodes returns the ids of all currently published nodes.
func (o *Observer) EnumerateNodes() []uint32 {
	return o.directory.EnumerateNodes()
}

// Snapshot returns a read-only copy of every published node and its
// services (SPEC_FULL.md supplemental feature; see DESIGN.md).
func (o *Observer) Snapshot() []Node {
	return o.directory.Snapshot()
}

// Subscribe registers h to be invoked, on the Observer's loop goroutine,
// for every event of kind emitted after this call returns.
func (o *Observer) Subscribe(kind EventKind, h Handler) Subscription {
	return o.events.subscribe(kind, h)
}

// Unsubscribe detaches a subscription previously returned by Subscribe.
func (o *Observer) Unsubscribe(kind EventKind, sub Subscription) {
	o.events.unsubscribe(kind, sub)
}

// WaitForNode implements §4.2's wait_for_node state machine: Pending ->
// (Resolved | TimedOut | Cancelled), exactly one of which completes the
// call. The timeout_ms/cancel pair in the spec is expressed as a single
// ctx, the idiomatic Go equivalent: pass context.Background() for "wait
// indefinitely until cancel or node appears", or a context with a deadline
// or an explicit cancel for the bounded cases.
func (o *Observer) WaitForNode(ctx context.Context, nodeID uint32) (Node, error) {
	if n, ok := o.directory.GetNode(nodeID); ok {
		o.metrics.observeWait("resolved")
		return n, nil
	}

	resultCh := make(chan Node, 1)
	sub := o.events.subscribe(NodeAdded, func(ev Event) {
		if ev.NodeID != nodeID {
			return
		}
		if n, ok := o.directory.GetNode(nodeID); ok {
			select {
			case resultCh <- n:
			default:
			}
		}
	})
	defer o.events.unsubscribe(NodeAdded, sub)

	// The node may have published between the first check and the
	// subscribe call above; check once more before waiting.
	if n, ok := o.directory.GetNode(nodeID); ok {
		o.metrics.observeWait("resolved")
		return n, nil
	}

	select {
	case n := <-resultCh:
		o.metrics.observeWait("resolved")
		return n, nil

	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.metrics.observeWait("timeout")
			return Node{}, newError(Timeout, "WaitForNode", ctx.Err())
		}
		o.metrics.observeWait("cancelled")
		return Node{}, newError(Cancelled, "WaitForNode", ctx.Err())
	}
}

// Close stops the decode loop and releases the control socket. It may be
// called more than once; only the first call has effect.
func (o *Observer) Close() error {
	o.stopOnce.Do(func() {
		close(o.stop)
		o.sock.close()
	})
	o.wg.Wait()
	return nil
}
