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

//go:build linux

package qrtr

import (
	"golang.org/x/sys/unix"
)

// afQIPCRTR is AF_QIPCRTR (42). The constant is not defined by every libc
// this module might be built against, so per the portability note in the
// QRTR wire contract it is hard-coded here rather than sourced from a
// platform header.
const afQIPCRTR = 42

// sockAddr is this module's address tuple for the bus: (node, port), with
// the family implied (every socket this package opens is AF_QIPCRTR).
type sockAddr struct {
	Node uint32
	Port uint32
}

func (a sockAddr) toUnix() *unix.SockaddrQrtr {
	return &unix.SockaddrQrtr{Node: a.Node, Port: a.Port}
}

func fromUnix(sa unix.Sockaddr) (sockAddr, bool) {
	q, ok := sa.(*unix.SockaddrQrtr)
	if !ok {
		return sockAddr{}, false
	}
	return sockAddr{Node: q.Node, Port: q.Port}, true
}

// qrtrSocket wraps a single AF_QIPCRTR SOCK_DGRAM file descriptor. It is not
// safe for concurrent use except where individually noted; callers (Observer,
// Client) serialize access to their own socket.
type qrtrSocket struct {
	fd int
}

// newQrtrSocket opens a fresh AF_QIPCRTR datagram socket. The caller must
// call close() when done with it.
func newQrtrSocket() (*qrtrSocket, error) {
	fd, err := unix.Socket(afQIPCRTR, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, err
	}
	return &qrtrSocket{fd: fd}, nil
}

// bind binds the socket to the given local address. Pass Port 0 to let the
// kernel assign an ephemeral port (used for Client sockets, which only need
// a source address to receive replies on).
func (s *qrtrSocket) bind(addr sockAddr) error {
	return unix.Bind(s.fd, addr.toUnix())
}

// localAddr returns the address the kernel bound this socket to, the
// equivalent of the spec's getsockname step in Observer initialization.
func (s *qrtrSocket) localAddr() (sockAddr, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return sockAddr{}, err
	}
	addr, ok := fromUnix(sa)
	if !ok {
		return sockAddr{}, errNotQrtrSockaddr
	}
	return addr, nil
}

// sendTo sends buf as a single datagram to addr.
func (s *qrtrSocket) sendTo(buf []byte, addr sockAddr) error {
	return unix.Sendto(s.fd, buf, 0, addr.toUnix())
}

// recvFrom reads a single datagram into buf, returning the number of bytes
// read and the sender's address.
func (s *qrtrSocket) recvFrom(buf []byte) (int, sockAddr, error) {
	n, sa, err := unix.Recvfrom(s.fd, buf, 0)
	if err != nil {
		return 0, sockAddr{}, err
	}
	addr, _ := fromUnix(sa)
	return n, addr, nil
}

// fdForPoll exposes the raw descriptor for read-readiness polling.
func (s *qrtrSocket) fdForPoll() int {
	return s.fd
}

func (s *qrtrSocket) close() error {
	return unix.Close(s.fd)
}
