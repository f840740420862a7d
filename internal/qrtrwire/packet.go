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

// Package qrtrwire decodes and encodes the kernel's qrtr_ctrl_pkt wire
// format. It deliberately avoids the unsafe-pointer/mmap'd-struct tricks
// real kernel clients are often tempted to use (that bakes in host
// endianness and struct-layout assumptions); fields are read and written
// one at a time with encoding/binary, the same way
// fuse's internal/buffer package gives the caller an explicit,
// platform-independent accessor instead of type-punning the kernel's
// struct directly.
package qrtrwire

import (
	"encoding/binary"
	"fmt"
)

// Control packet commands (§6). Values other than these are ignored by the
// decoder (logged and dropped).
const (
	CmdNewServer uint32 = 2
	CmdDelServer uint32 = 3
	CmdNewLookup uint32 = 4
)

// PacketSize is the fixed wire size of a qrtr_ctrl_pkt: one u32 cmd followed
// by the NEW_SERVER/DEL_SERVER payload union (service, instance, node,
// port), each a little-endian u32.
const PacketSize = 20

// CtrlPort is QRTR_PORT_CTRL, the kernel-defined well-known port every
// control packet (NEW_LOOKUP, NEW_SERVER, DEL_SERVER) is addressed to or
// from (§6).
const CtrlPort uint32 = 0xFFFFFFFE

// CtrlPacket is the decoded form of a control packet. Version/Instance are
// unpacked from the wire's single 32-bit Instance field: the low 8 bits are
// the version, the high 24 bits are the instance (§6, §9 open question:
// this packing differs from a naive reading of the kernel field and should
// be reverified against the target kernel).
type CtrlPacket struct {
	Cmd      uint32
	Service  uint32
	Node     uint32
	Port     uint32
	Version  uint8
	Instance uint32
}

// Decode parses a fixed-size control packet from buf. It returns an error
// only for a short buffer; an unrecognized Cmd is still decoded (the
// Service/Node/Port/Version/Instance fields are meaningless for commands
// other than NEW_SERVER/DEL_SERVER) and it is up to the caller to drop it,
// matching the decode loop's "unknown cmd values are logged and dropped"
// contract in §4.2.
func Decode(buf []byte) (CtrlPacket, error) {
	var pkt CtrlPacket

	if len(buf) < PacketSize {
		return pkt, fmt.Errorf("qrtrwire: short packet: %d bytes, want at least %d", len(buf), PacketSize)
	}

	pkt.Cmd = binary.LittleEndian.Uint32(buf[0:4])
	pkt.Service = binary.LittleEndian.Uint32(buf[4:8])
	instanceField := binary.LittleEndian.Uint32(buf[8:12])
	pkt.Version = uint8(instanceField & 0xff)
	pkt.Instance = instanceField >> 8
	pkt.Node = binary.LittleEndian.Uint32(buf[12:16])
	pkt.Port = binary.LittleEndian.Uint32(buf[16:20])

	return pkt, nil
}

// Encode serializes pkt to its fixed wire form; it is the inverse of
// Decode. Real clients only ever need to send NEW_LOOKUP (EncodeNewLookup
// below), but Encode is kept available for tests that synthesize
// NEW_SERVER/DEL_SERVER traffic against a fake control socket.
func Encode(pkt CtrlPacket) []byte {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:4], pkt.Cmd)
	binary.LittleEndian.PutUint32(buf[4:8], pkt.Service)
	instanceField := uint32(pkt.Version) | (pkt.Instance << 8)
	binary.LittleEndian.PutUint32(buf[8:12], instanceField)
	binary.LittleEndian.PutUint32(buf[12:16], pkt.Node)
	binary.LittleEndian.PutUint32(buf[16:20], pkt.Port)
	return buf
}

// EncodeNewLookup returns the wire bytes for a NEW_LOOKUP control packet:
// cmd set, payload zeroed (§4.2 step 3).
func EncodeNewLookup() []byte {
	buf := make([]byte, PacketSize)
	binary.LittleEndian.PutUint32(buf[0:4], CmdNewLookup)
	return buf
}

// CmdName renders a control command as a short diagnostic string.
func CmdName(cmd uint32) string {
	switch cmd {
	case CmdNewServer:
		return "NEW_SERVER"
	case CmdDelServer:
		return "DEL_SERVER"
	case CmdNewLookup:
		return "NEW_LOOKUP"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", cmd)
	}
}
