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
	"bytes"
	"encoding/binary"
	"errors"
	"strings"

	"tockos.org/tockload/util"
)

var (
	// ErrChecksumMismatch is wrapped by header parse failures caused by a
	// stored checksum that does not match the header contents.
	ErrChecksumMismatch = errors.New("checksum verification failed")

	// ErrNotEnoughData is wrapped by parse failures caused by a truncated
	// buffer.
	ErrNotEnoughData = errors.New("not enough data")
)

// ParseLengths decodes the 8-byte TBF prologue and returns the version,
// header length and total length.  It fails if the header length is zero or
// exceeds the total length; walking code treats that failure as "no more
// apps".
func ParseLengths(data []byte) (uint16, uint16, uint32, error) {
	if len(data) < 8 {
		return 0, 0, 0, util.FmtChildTockloadError(ErrNotEnoughData,
			"TBF prologue requires 8 bytes; got %d", len(data))
	}

	version := binary.LittleEndian.Uint16(data[0:2])
	headerSize := binary.LittleEndian.Uint16(data[2:4])
	totalSize := binary.LittleEndian.Uint32(data[4:8])

	if headerSize == 0 {
		return 0, 0, 0, util.FmtTockloadError(
			"TBF header length is zero")
	}
	if uint32(headerSize) > totalSize {
		return 0, 0, 0, util.FmtTockloadError(
			"TBF header length %d exceeds total length %d",
			headerSize, totalSize)
	}

	return version, headerSize, totalSize, nil
}

// ComputeChecksum XORs every 4-byte little-endian word of a header-sized
// slice, substituting the given flag word at offset 8 and zero at offset 12.
// A trailing partial word is zero-padded.  An empty buffer checksums to zero.
func ComputeChecksum(data []byte, flags uint32) uint32 {
	var checksum uint32

	for off := 0; off < len(data); off += 4 {
		var word uint32
		if off+4 <= len(data) {
			word = binary.LittleEndian.Uint32(data[off : off+4])
		} else {
			var padded [4]byte
			copy(padded[:], data[off:])
			word = binary.LittleEndian.Uint32(padded[:])
		}

		switch off {
		case 8:
			word = flags
		case 12:
			word = 0
		}

		checksum ^= word
	}

	return checksum
}

// ParseHeader parses a complete v2 header.  The buffer must hold exactly the
// first header_length bytes of the TBF.  The stored checksum is verified
// before any TLV is interpreted.
func ParseHeader(data []byte, version uint16) (*Header, error) {
	if version != 2 {
		return nil, util.FmtTockloadError(
			"unsupported TBF version %d", version)
	}
	if len(data) < TBF_HEADER_BASE_SIZE {
		return nil, util.FmtChildTockloadError(ErrNotEnoughData,
			"TBF v2 header requires at least %d bytes; got %d",
			TBF_HEADER_BASE_SIZE, len(data))
	}

	hdr := &Header{
		version:    binary.LittleEndian.Uint16(data[0:2]),
		headerSize: binary.LittleEndian.Uint16(data[2:4]),
		totalSize:  binary.LittleEndian.Uint32(data[4:8]),
		flags:      binary.LittleEndian.Uint32(data[8:12]),
		checksum:   binary.LittleEndian.Uint32(data[12:16]),
	}

	if int(hdr.headerSize) != len(data) {
		return nil, util.FmtChildTockloadError(ErrNotEnoughData,
			"TBF header length %d does not match buffer length %d",
			hdr.headerSize, len(data))
	}

	if computed := ComputeChecksum(data, hdr.flags); computed != hdr.checksum {
		return nil, util.FmtChildTockloadError(ErrChecksumMismatch,
			"TBF header checksum verification failed: stored 0x%08x, "+
				"computed 0x%08x", hdr.checksum, computed)
	}

	hdr.tlvBytes = make([]byte, len(data)-TBF_HEADER_BASE_SIZE)
	copy(hdr.tlvBytes, data[TBF_HEADER_BASE_SIZE:])

	if err := hdr.parseTlvs(); err != nil {
		return nil, err
	}

	return hdr, nil
}

// TLV payloads are padded so that each element starts on a 4-byte boundary.
func alignTlv(n int) int {
	return (n + 3) &^ 3
}

func (h *Header) parseTlvs() error {
	offset := 0
	data := h.tlvBytes

	for offset < len(data) {
		if offset+TBF_TLV_SIZE > len(data) {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"truncated TLV at header offset %d",
				offset+TBF_HEADER_BASE_SIZE)
		}

		tlvType := binary.LittleEndian.Uint16(data[offset : offset+2])
		tlvLen := int(binary.LittleEndian.Uint16(data[offset+2 : offset+4]))

		payloadOff := offset + TBF_TLV_SIZE
		if payloadOff+tlvLen > len(data) {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"TLV type %d at header offset %d overruns the header "+
					"(length %d)", tlvType, offset+TBF_HEADER_BASE_SIZE, tlvLen)
		}
		payload := data[payloadOff : payloadOff+tlvLen]

		if err := h.applyTlv(tlvType, payload); err != nil {
			return err
		}

		offset = payloadOff + alignTlv(tlvLen)
	}

	return nil
}

func (h *Header) applyTlv(tlvType uint16, payload []byte) error {
	r := bytes.NewReader(payload)

	switch tlvType {
	case TBF_TLV_MAIN:
		var tlv mainTlv
		if err := binary.Read(r, binary.LittleEndian, &tlv); err != nil {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"invalid main TLV: %s", err.Error())
		}
		h.main = &tlv

	case TBF_TLV_PROGRAM:
		var tlv programTlv
		if err := binary.Read(r, binary.LittleEndian, &tlv); err != nil {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"invalid program TLV: %s", err.Error())
		}
		h.program = &tlv

	case TBF_TLV_PACKAGE_NAME:
		h.packageName = strings.TrimRight(string(payload), "\x00")
		h.hasPkgName = true

	case TBF_TLV_FIXED_ADDRESSES:
		var tlv fixedAddressesTlv
		if err := binary.Read(r, binary.LittleEndian, &tlv); err != nil {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"invalid fixed-addresses TLV: %s", err.Error())
		}
		h.fixedAddrs = &tlv

	case TBF_TLV_KERNEL_VERSION:
		var tlv kernelVersionTlv
		if err := binary.Read(r, binary.LittleEndian, &tlv); err != nil {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"invalid kernel-version TLV: %s", err.Error())
		}
		h.kernelVersion = &tlv

	case TBF_TLV_SHORT_ID:
		if len(payload) < 4 {
			return util.FmtChildTockloadError(ErrNotEnoughData,
				"invalid short-id TLV: %d bytes", len(payload))
		}
		h.shortId = binary.LittleEndian.Uint32(payload[0:4])
		h.hasShortId = true

	case TBF_TLV_WRITEABLE_FLASH:
		for len(payload) >= 8 {
			h.flashRegions = append(h.flashRegions, FlashRegion{
				Offset: binary.LittleEndian.Uint32(payload[0:4]),
				Size:   binary.LittleEndian.Uint32(payload[4:8]),
			})
			payload = payload[8:]
		}

	default:
		// Permissions, persistent ACLs and any future types are kept as
		// opaque spans.
		raw := RawTlv{
			Type: tlvType,
			Len:  uint16(len(payload)),
			Data: make([]byte, len(payload)),
		}
		copy(raw.Data, payload)
		h.rawTlvs = append(h.rawTlvs, raw)
	}

	return nil
}
