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
	"errors"
	"sync"
)

// fakeDatagram is one inbound datagram queued for a fakeSocket's recvFrom.
type fakeDatagram struct {
	data []byte
	from sockAddr
}

// fakeSent records one outbound sendTo call a fakeSocket observed.
type fakeSent struct {
	data []byte
	to   sockAddr
}

// fakeSocket is an in-process stand-in for *qrtrSocket, used by
// observer_test.go and client_test.go to drive the decode loop and
// send/receive paths without a real AF_QIPCRTR socket, which only exists
// with the kernel qrtr driver loaded.
type fakeSocket struct {
	mu     sync.Mutex
	local  sockAddr
	sent   []fakeSent
	closed bool
	inbox  chan fakeDatagram
}

func newFakeSocket(local sockAddr) *fakeSocket {
	return &fakeSocket{
		local: local,
		inbox: make(chan fakeDatagram, 256),
	}
}

func (f *fakeSocket) bind(addr sockAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = addr
	return nil
}

func (f *fakeSocket) localAddr() (sockAddr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local, nil
}

func (f *fakeSocket) sendTo(buf []byte, addr sockAddr) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("fakeSocket: sendTo on closed socket")
	}

	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.sent = append(f.sent, fakeSent{data: cp, to: addr})
	return nil
}

func (f *fakeSocket) recvFrom(buf []byte) (int, sockAddr, error) {
	dg, ok := <-f.inbox
	if !ok {
		return 0, sockAddr{}, errors.New("fakeSocket: closed")
	}
	n := copy(buf, dg.data)
	return n, dg.from, nil
}

func (f *fakeSocket) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

// inject enqueues a datagram for a future recvFrom to return. It is a
// no-op once the socket has been closed.
func (f *fakeSocket) inject(data []byte, from sockAddr) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()

	if closed {
		return
	}
	f.inbox <- fakeDatagram{data: data, from: from}
}

// sentCount returns how many sendTo calls the fake has observed.
func (f *fakeSocket) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// lastSent returns the most recent sendTo call observed, if any.
func (f *fakeSocket) lastSent() (fakeSent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return fakeSent{}, false
	}
	return f.sent[len(f.sent)-1], true
}
