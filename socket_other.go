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

//go:build !linux

package qrtr

import "errors"

// AF_QIPCRTR is Linux-only (it names a Qualcomm modem IPC bus exposed by the
// Linux qrtr driver). On every other GOOS, socket construction fails
// immediately with a clear error rather than a confusing syscall failure.
var errUnsupportedPlatform = errors.New("qrtr: AF_QIPCRTR is only available on linux")

type sockAddr struct {
	Node uint32
	Port uint32
}

type qrtrSocket struct{}

func newQrtrSocket() (*qrtrSocket, error) {
	return nil, errUnsupportedPlatform
}

func (s *qrtrSocket) bind(addr sockAddr) error                     { return errUnsupportedPlatform }
func (s *qrtrSocket) localAddr() (sockAddr, error)                 { return sockAddr{}, errUnsupportedPlatform }
func (s *qrtrSocket) sendTo(buf []byte, addr sockAddr) error       { return errUnsupportedPlatform }
func (s *qrtrSocket) recvFrom(buf []byte) (int, sockAddr, error)   { return 0, sockAddr{}, errUnsupportedPlatform }
func (s *qrtrSocket) fdForPoll() int                               { return -1 }
func (s *qrtrSocket) close() error                                 { return nil }
