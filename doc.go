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

// Package qrtr is a userspace client for the Qualcomm IPC Router (QRTR), the
// AF_QIPCRTR datagram bus used on Qualcomm modem and SoC platforms to locate
// and talk to services exported by remote processors ("nodes").
//
// The primary elements of interest are:
//
//   - Observer, which owns the control socket, decodes NEW_SERVER/DEL_SERVER
//     control packets, and maintains a Directory of nodes and the services
//     they export.
//
//   - Directory, the in-memory index of nodes to services to ports that an
//     Observer keeps current.
//
//   - Client, a per-(node,port) datagram channel used to exchange raw
//     messages with a service once its port is known.
//
// A typical caller creates an Observer, waits for the node hosting the
// service it wants (Observer.WaitForNode or an immediate Observer.GetNode),
// resolves the port with Observer.LookupPort, and opens a Client against
// that (node, port) pair.
package qrtr
