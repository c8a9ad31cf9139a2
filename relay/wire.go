/*
 *
 * Copyright 2025 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package relay implements the cross-node relay (C4): a writer-side pump
// that forwards a locally written mutable object's versions to a peer over
// gRPC, and a reader-side handler that republishes them into a local
// shadow channel.
package relay

import (
	"encoding/binary"
	"errors"
)

// Wire messages are hand-encoded little-endian binary, in the style of the
// teacher's frame.go HeadersV1/TrailersV1 codecs, rather than protobuf:
// this package registers its RPC methods directly on grpc-go's public
// ServiceDesc machinery instead of depending on generated .pb.go stubs.

const objectIDLen = 20

var errShortBuffer = errors.New("relay: buffer too short to decode message")

// PushMutableRequest is the RPC payload for spec section 6's PushMutable:
// object_id_bytes, data_size, metadata_size, and payload_bytes where
// payload_bytes[0:data_size] is the data and the remainder is metadata.
type PushMutableRequest struct {
	ObjectID     [objectIDLen]byte
	DataSize     uint64
	MetadataSize uint64
	Payload      []byte
}

func (m *PushMutableRequest) Marshal() []byte {
	buf := make([]byte, objectIDLen+8+8+len(m.Payload))
	off := 0
	copy(buf[off:], m.ObjectID[:])
	off += objectIDLen
	binary.LittleEndian.PutUint64(buf[off:], m.DataSize)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], m.MetadataSize)
	off += 8
	copy(buf[off:], m.Payload)
	return buf
}

func (m *PushMutableRequest) Unmarshal(b []byte) error {
	if len(b) < objectIDLen+16 {
		return errShortBuffer
	}
	off := 0
	copy(m.ObjectID[:], b[off:off+objectIDLen])
	off += objectIDLen
	m.DataSize = binary.LittleEndian.Uint64(b[off:])
	off += 8
	m.MetadataSize = binary.LittleEndian.Uint64(b[off:])
	off += 8
	m.Payload = append([]byte(nil), b[off:]...)
	return nil
}

// PushMutableReply is empty on success, per spec section 6.
type PushMutableReply struct{}

func (m *PushMutableReply) Marshal() []byte { return nil }

func (m *PushMutableReply) Unmarshal(b []byte) error { return nil }

// RegisterMutableRequest is the RPC payload for spec section 6's
// RegisterMutable: remote_object_id_bytes, num_readers, local_object_id_bytes.
type RegisterMutableRequest struct {
	RemoteObjectID [objectIDLen]byte
	NumReaders     int64
	LocalObjectID  [objectIDLen]byte
}

func (m *RegisterMutableRequest) Marshal() []byte {
	buf := make([]byte, objectIDLen+8+objectIDLen)
	off := 0
	copy(buf[off:], m.RemoteObjectID[:])
	off += objectIDLen
	binary.LittleEndian.PutUint64(buf[off:], uint64(m.NumReaders))
	off += 8
	copy(buf[off:], m.LocalObjectID[:])
	return buf
}

func (m *RegisterMutableRequest) Unmarshal(b []byte) error {
	if len(b) < objectIDLen+8+objectIDLen {
		return errShortBuffer
	}
	off := 0
	copy(m.RemoteObjectID[:], b[off:off+objectIDLen])
	off += objectIDLen
	m.NumReaders = int64(binary.LittleEndian.Uint64(b[off:]))
	off += 8
	copy(m.LocalObjectID[:], b[off:off+objectIDLen])
	return nil
}

// RegisterMutableReply is empty on success.
type RegisterMutableReply struct{}

func (m *RegisterMutableReply) Marshal() []byte { return nil }

func (m *RegisterMutableReply) Unmarshal(b []byte) error { return nil }

// wireMessage is satisfied by every request/reply type above; codec.go's
// Codec dispatches on it rather than on reflection.
type wireMessage interface {
	Marshal() []byte
	Unmarshal([]byte) error
}
