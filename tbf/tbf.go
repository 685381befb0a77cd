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

// Package tbf implements the Tock Binary Format: the TLV-encoded header that
// prefixes every application in flash, and the credential footers that follow
// the application binary.
package tbf

const (
	// Size of the fixed v2 prologue: version, header_length, total_length,
	// flags, checksum.
	TBF_HEADER_BASE_SIZE = 16

	TBF_TLV_SIZE = 4 /* Plus `value` field. */
)

/*
 * TBF header TLV types.
 */
const (
	TBF_TLV_MAIN            = 0x01
	TBF_TLV_WRITEABLE_FLASH = 0x02
	TBF_TLV_PACKAGE_NAME    = 0x03
	TBF_TLV_FIXED_ADDRESSES = 0x05
	TBF_TLV_PERMISSIONS     = 0x06
	TBF_TLV_PERSISTENT_ACL  = 0x07
	TBF_TLV_KERNEL_VERSION  = 0x08
	TBF_TLV_PROGRAM         = 0x09
	TBF_TLV_SHORT_ID        = 0x0a

	TBF_TLV_CREDENTIALS = 0x80 /* Footer-only. */
)

/*
 * Header flag bits.  The remaining bits are free for other uses and must
 * round-trip unchanged through flag mutations.
 */
const (
	TBF_FLAG_ENABLED = 0x00000001
	TBF_FLAG_STICKY  = 0x00000002
)

var tbfTlvTypeNameMap = map[uint16]string{
	TBF_TLV_MAIN:            "MAIN",
	TBF_TLV_WRITEABLE_FLASH: "WRITEABLE_FLASH",
	TBF_TLV_PACKAGE_NAME:    "PACKAGE_NAME",
	TBF_TLV_FIXED_ADDRESSES: "FIXED_ADDRESSES",
	TBF_TLV_PERMISSIONS:     "PERMISSIONS",
	TBF_TLV_PERSISTENT_ACL:  "PERSISTENT_ACL",
	TBF_TLV_KERNEL_VERSION:  "KERNEL_VERSION",
	TBF_TLV_PROGRAM:         "PROGRAM",
	TBF_TLV_SHORT_ID:        "SHORT_ID",
	TBF_TLV_CREDENTIALS:     "CREDENTIALS",
}

func TlvTypeName(tlvType uint16) string {
	name, ok := tbfTlvTypeNameMap[tlvType]
	if !ok {
		return "???"
	}

	return name
}

type mainTlv struct {
	InitFnOffset   uint32
	ProtectedSize  uint32
	MinimumRamSize uint32
}

type programTlv struct {
	InitFnOffset    uint32
	ProtectedSize   uint32
	MinimumRamSize  uint32
	BinaryEndOffset uint32
	AppVersion      uint32
}

type fixedAddressesTlv struct {
	StartProcessRam   uint32
	StartProcessFlash uint32
}

type kernelVersionTlv struct {
	Major uint16
	Minor uint16
}

// FlashRegion is one entry of a writeable-flash-regions TLV.
type FlashRegion struct {
	Offset uint32
	Size   uint32
}

// RawTlv holds a TLV the parser does not interpret.  Retaining the raw bytes
// keeps serialization lossless without enumerating every type.
type RawTlv struct {
	Type uint16
	Len  uint16
	Data []byte
}

// Header is a parsed TBF v2 header.  It is value-oriented: parse once, query,
// optionally mutate the flag word, serialize.
type Header struct {
	version    uint16
	headerSize uint16
	totalSize  uint32
	flags      uint32
	checksum   uint32

	main          *mainTlv
	program       *programTlv
	fixedAddrs    *fixedAddressesTlv
	kernelVersion *kernelVersionTlv
	packageName   string
	hasPkgName    bool
	shortId       uint32
	hasShortId    bool
	flashRegions  []FlashRegion
	rawTlvs       []RawTlv

	// TLV region exactly as read, so Serialize can reproduce the original
	// bytes past the prologue.
	tlvBytes []byte
}

func (h *Header) Version() uint16 {
	return h.version
}

func (h *Header) HeaderSize() uint16 {
	return h.headerSize
}

func (h *Header) TotalSize() uint32 {
	return h.totalSize
}

func (h *Header) Flags() uint32 {
	return h.flags
}

func (h *Header) Checksum() uint32 {
	return h.checksum
}

func (h *Header) Enabled() bool {
	return h.flags&TBF_FLAG_ENABLED != 0
}

func (h *Header) Sticky() bool {
	return h.flags&TBF_FLAG_STICKY != 0
}

// IsApp reports whether this header describes a real application.  A header
// with no main and no program TLV but a non-zero total length is a padding
// region.
func (h *Header) IsApp() bool {
	return h.main != nil || h.program != nil
}

func (h *Header) PackageName() (string, bool) {
	return h.packageName, h.hasPkgName
}

func (h *Header) InitFunctionOffset() uint32 {
	if h.program != nil {
		return h.program.InitFnOffset
	}
	if h.main != nil {
		return h.main.InitFnOffset
	}
	return 0
}

func (h *Header) MinimumAppRamSize() uint32 {
	if h.program != nil {
		return h.program.MinimumRamSize
	}
	if h.main != nil {
		return h.main.MinimumRamSize
	}
	return 0
}

// ProtectedSize returns the offset of the application binary from the start
// of the TBF: the header itself plus the protected trailer.
func (h *Header) ProtectedSize() uint32 {
	return uint32(h.headerSize) + h.ProtectedTrailerSize()
}

func (h *Header) ProtectedTrailerSize() uint32 {
	if h.program != nil {
		return h.program.ProtectedSize
	}
	if h.main != nil {
		return h.main.ProtectedSize
	}
	return 0
}

// BinaryEnd returns the offset, from the start of the TBF, at which the
// application binary ends and the footer chain begins.  Headers without a
// program TLV carry no footers, so the binary runs to the total length.
func (h *Header) BinaryEnd() uint32 {
	if h.program != nil {
		return h.program.BinaryEndOffset
	}
	return h.totalSize
}

// BinaryVersion returns the application version stamped by the build, or 0
// for headers without a program TLV.
func (h *Header) BinaryVersion() uint32 {
	if h.program != nil {
		return h.program.AppVersion
	}
	return 0
}

func (h *Header) KernelVersion() (uint16, uint16, bool) {
	if h.kernelVersion == nil {
		return 0, 0, false
	}
	return h.kernelVersion.Major, h.kernelVersion.Minor, true
}

// FixedAddresses returns the (ram, flash) address pair the binary was linked
// for, if the header pins one.
func (h *Header) FixedAddresses() (uint32, uint32, bool) {
	if h.fixedAddrs == nil {
		return 0, 0, false
	}
	return h.fixedAddrs.StartProcessRam, h.fixedAddrs.StartProcessFlash, true
}

// FixedAddressFlash returns the pinned flash address, if any.  The sentinel
// 0xFFFFFFFF means "unconstrained" and is treated as absent.
func (h *Header) FixedAddressFlash() (uint32, bool) {
	if h.fixedAddrs == nil || h.fixedAddrs.StartProcessFlash == 0xFFFFFFFF {
		return 0, false
	}
	return h.fixedAddrs.StartProcessFlash, true
}

// FixedShortId returns the fixed short id, if the header carries a non-zero
// one.
func (h *Header) FixedShortId() (uint32, bool) {
	if !h.hasShortId || h.shortId == 0 {
		return 0, false
	}
	return h.shortId, true
}

func (h *Header) WriteableFlashRegions() []FlashRegion {
	return h.flashRegions
}

// RawTlvs returns the TLVs the parser retained as opaque spans.
func (h *Header) RawTlvs() []RawTlv {
	return h.rawTlvs
}
