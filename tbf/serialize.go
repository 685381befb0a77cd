/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package tbf

import (
	"encoding/binary"
)

// Serialize emits the 16-byte prologue followed by the TLV bytes retained at
// parse time.  With no intervening mutation the output is byte-identical to
// the buffer the header was parsed from.
func (h *Header) Serialize() []byte {
	out := make([]byte, TBF_HEADER_BASE_SIZE+len(h.tlvBytes))

	binary.LittleEndian.PutUint16(out[0:2], h.version)
	binary.LittleEndian.PutUint16(out[2:4], h.headerSize)
	binary.LittleEndian.PutUint32(out[4:8], h.totalSize)
	binary.LittleEndian.PutUint32(out[8:12], h.flags)
	binary.LittleEndian.PutUint32(out[12:16], h.checksum)

	copy(out[TBF_HEADER_BASE_SIZE:], h.tlvBytes)

	return out
}

// SerializePrologue emits just the first 16 bytes, which is all an in-place
// flag mutation needs to write back.
func (h *Header) SerializePrologue() []byte {
	return h.Serialize()[:TBF_HEADER_BASE_SIZE]
}

// SetFlags overwrites the entire flag word and recomputes the checksum
// against the original header bytes.  Idempotent for the current value.
func (h *Header) SetFlags(flags uint32, original []byte) {
	h.flags = flags
	h.checksum = ComputeChecksum(original, flags)
}

// SetEnabled flips only bit 0 of the flag word; all other bits are
// preserved.
func (h *Header) SetEnabled(enabled bool, original []byte) {
	flags := h.flags
	if enabled {
		flags |= TBF_FLAG_ENABLED
	} else {
		flags &^= TBF_FLAG_ENABLED
	}
	h.SetFlags(flags, original)
}

// SetSticky flips only bit 1 of the flag word; all other bits are preserved.
func (h *Header) SetSticky(sticky bool, original []byte) {
	flags := h.flags
	if sticky {
		flags |= TBF_FLAG_STICKY
	} else {
		flags &^= TBF_FLAG_STICKY
	}
	h.SetFlags(flags, original)
}

// NewPadding builds the binary for a padding region of the given total
// length: a 16-byte header with no TLVs followed by zeros.  The result
// parses as a padding header (no main TLV).
func NewPadding(totalLen uint32) []byte {
	// A gap shorter than the prologue still takes a full prologue; the
	// inventory walk stops at it because header_length exceeds total_length.
	bufLen := totalLen
	if bufLen < TBF_HEADER_BASE_SIZE {
		bufLen = TBF_HEADER_BASE_SIZE
	}
	buf := make([]byte, bufLen)

	binary.LittleEndian.PutUint16(buf[0:2], 2)
	binary.LittleEndian.PutUint16(buf[2:4], TBF_HEADER_BASE_SIZE)
	binary.LittleEndian.PutUint32(buf[4:8], totalLen)

	var checksum uint32
	for off := 0; off < 12; off += 4 {
		checksum ^= binary.LittleEndian.Uint32(buf[off : off+4])
	}
	binary.LittleEndian.PutUint32(buf[12:16], checksum)

	return buf
}
