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

package attributes

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"tockos.org/tockload/tbf"
)

// fakeFlash is an in-memory device image.  Reads past the image return
// erased (0xFF) flash, as a real device would.
type fakeFlash struct {
	mem []byte
}

func (f *fakeFlash) ReadAt(address uint64, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := range out {
		out[i] = 0xFF
	}

	if address < uint64(len(f.mem)) {
		copy(out, f.mem[address:])
	}
	return out, nil
}

func (f *fakeFlash) WriteAt(address uint64, data []byte) error {
	copy(f.mem[address:], data)
	return nil
}

func putTlv(buf []byte, off int, tlvType uint16, payload []byte) int {
	binary.LittleEndian.PutUint16(buf[off:], tlvType)
	binary.LittleEndian.PutUint16(buf[off+2:], uint16(len(payload)))
	copy(buf[off+4:], payload)

	padded := (len(payload) + 3) &^ 3
	return off + 4 + padded
}

// buildSimpleApp builds an app whose binary runs to the end of the region
// (no program TLV, no footers).
func buildSimpleApp(t *testing.T, name string, totalSize uint32) []byte {
	t.Helper()

	buf := make([]byte, totalSize)

	off := 16
	main := make([]byte, 12)
	binary.LittleEndian.PutUint32(main[0:4], 41)
	binary.LittleEndian.PutUint32(main[8:12], 2048)
	off = putTlv(buf, off, tbf.TBF_TLV_MAIN, main)
	off = putTlv(buf, off, tbf.TBF_TLV_PACKAGE_NAME, []byte(name))

	headerSize := off
	binary.LittleEndian.PutUint16(buf[0:2], 2)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(headerSize))
	binary.LittleEndian.PutUint32(buf[4:8], totalSize)
	binary.LittleEndian.PutUint32(buf[8:12], tbf.TBF_FLAG_ENABLED)
	binary.LittleEndian.PutUint32(buf[12:16],
		tbf.ComputeChecksum(buf[0:headerSize], tbf.TBF_FLAG_ENABLED))

	return buf
}

// buildFooterApp builds an app with a program TLV, one SHA-256 footer and
// one reserved footer filling the remainder.
func buildFooterApp(t *testing.T, name string, totalSize uint32,
	digest []byte) []byte {

	t.Helper()
	require.Len(t, digest, 32)

	buf := make([]byte, totalSize)

	// SHA-256 footer (40 bytes incl TL) + reserved footer (8 bytes incl TL).
	binaryEnd := totalSize - 48

	off := 16
	program := make([]byte, 20)
	binary.LittleEndian.PutUint32(program[0:4], 41)
	binary.LittleEndian.PutUint32(program[8:12], 2048)
	binary.LittleEndian.PutUint32(program[12:16], binaryEnd)
	binary.LittleEndian.PutUint32(program[16:20], 7)
	off = putTlv(buf, off, tbf.TBF_TLV_PROGRAM, program)
	off = putTlv(buf, off, tbf.TBF_TLV_PACKAGE_NAME, []byte(name))

	headerSize := off
	binary.LittleEndian.PutUint16(buf[0:2], 2)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(headerSize))
	binary.LittleEndian.PutUint32(buf[4:8], totalSize)
	binary.LittleEndian.PutUint32(buf[8:12], tbf.TBF_FLAG_ENABLED)
	binary.LittleEndian.PutUint32(buf[12:16],
		tbf.ComputeChecksum(buf[0:headerSize], tbf.TBF_FLAG_ENABLED))

	shaPayload := make([]byte, 36)
	binary.LittleEndian.PutUint32(shaPayload[0:4],
		uint32(tbf.CREDENTIALS_SHA256))
	copy(shaPayload[4:], digest)
	next := putTlv(buf, int(binaryEnd), tbf.TBF_TLV_CREDENTIALS, shaPayload)

	reservedPayload := make([]byte, 4)
	binary.LittleEndian.PutUint32(reservedPayload[0:4],
		uint32(tbf.CREDENTIALS_RESERVED))
	putTlv(buf, next, tbf.TBF_TLV_CREDENTIALS, reservedPayload)

	return buf
}

func TestReadInstalledApps(t *testing.T) {
	const start = 0x40000

	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}

	appA := buildSimpleApp(t, "app_a", 1024)
	padding := tbf.NewPadding(512)
	appB := buildFooterApp(t, "app_b", 512, digest)

	image := make([]byte, start+4096)
	off := start
	off += copy(image[off:], appA)
	off += copy(image[off:], padding)
	off += copy(image[off:], appB)

	dev := &fakeFlash{mem: image}

	apps, err := ReadInstalledApps(dev, start)
	require.NoError(t, err)
	require.Len(t, apps, 2)

	require.Equal(t, "app_a", apps[0].Name())
	require.Equal(t, uint64(start), apps[0].Address)
	require.Equal(t, uint32(1024), apps[0].Size)
	require.Empty(t, apps[0].Footers)

	require.Equal(t, "app_b", apps[1].Name())
	require.Equal(t, uint64(start+1024+512), apps[1].Address)
	require.Equal(t, uint32(512), apps[1].Size)
	require.Len(t, apps[1].Footers, 2)

	require.Equal(t, tbf.CREDENTIALS_SHA256,
		apps[1].Footers[0].Credentials.Format)
	hash, ok := apps[1].Footers[0].Credentials.Hash()
	require.True(t, ok)
	require.Equal(t, digest, hash)

	require.Equal(t, tbf.CREDENTIALS_RESERVED,
		apps[1].Footers[1].Credentials.Format)
}

func TestReadInstalledAppsEmpty(t *testing.T) {
	dev := &fakeFlash{mem: make([]byte, 0x41000)}

	apps, err := ReadInstalledApps(dev, 0x40000)
	require.NoError(t, err)
	require.Empty(t, apps)
}

func TestReadInstalledAppsErasedFlash(t *testing.T) {
	// Reads past the image return 0xFF; the version check rejects the
	// garbage header and the walk ends gracefully.
	dev := &fakeFlash{mem: nil}

	apps, err := ReadInstalledApps(dev, 0x40000)
	require.NoError(t, err)
	require.Empty(t, apps)
}

func TestReadInstalledAppsIdempotent(t *testing.T) {
	const start = 0x40000

	image := make([]byte, start+2048)
	copy(image[start:], buildSimpleApp(t, "only", 1024))
	dev := &fakeFlash{mem: image}

	first, err := ReadInstalledApps(dev, start)
	require.NoError(t, err)
	second, err := ReadInstalledApps(dev, start)
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestDecodeAttribute(t *testing.T) {
	slot := make([]byte, 64)
	copy(slot[0:8], "board")
	slot[8] = 11
	copy(slot[9:], "microbit_v2")

	decoded := decodeAttribute(slot)
	require.NotNil(t, decoded)
	require.Equal(t, "board", decoded.Key)
	require.Equal(t, "microbit_v2", decoded.Value)
}

func TestDecodeAttributeInvalidVlen(t *testing.T) {
	slot := make([]byte, 64)
	copy(slot[0:8], "key")

	slot[8] = 0
	require.Nil(t, decodeAttribute(slot))

	slot[8] = 56
	require.Nil(t, decodeAttribute(slot))

	slot[8] = 55
	require.NotNil(t, decodeAttribute(slot))
}

func TestDecodeAttributeInvalidUtf8(t *testing.T) {
	slot := make([]byte, 64)
	copy(slot[0:8], "key")
	slot[8] = 4
	copy(slot[9:13], []byte{0xFF, 0xFE, 0x01, 0x02})

	require.Nil(t, decodeAttribute(slot))
}

func writeSlot(region []byte, slot int, key string, value string) {
	base := slot * 64
	copy(region[base:base+8], key)
	region[base+8] = byte(len(value))
	copy(region[base+9:], value)
}

func TestReadSystemAttributes(t *testing.T) {
	image := make([]byte, 0x41000)

	region := image[0x600:0xA00]
	writeSlot(region, 0, "board", "microbit_v2")
	writeSlot(region, 1, "arch", "cortex-m4")
	writeSlot(region, 2, "appaddr", "0x40000")
	writeSlot(region, 3, "boothash", "f2a5b1")
	// Slot 4 left empty (vlen 0); slot 5 corrupted.
	region[5*64+8] = 60
	writeSlot(region, 6, "custom", "hello")

	copy(image[0x40E:], "1.1.2")

	kernelAttrs := image[0x40000-100 : 0x40000]
	binary.LittleEndian.PutUint32(kernelAttrs[0:4], 0x10000)
	binary.LittleEndian.PutUint32(kernelAttrs[4:8], 0x20000)
	binary.LittleEndian.PutUint32(kernelAttrs[80:84], 0x20000000)
	binary.LittleEndian.PutUint32(kernelAttrs[84:88], 0x10000)
	kernelAttrs[95] = 2
	copy(kernelAttrs[96:100], "TOCK")

	dev := &fakeFlash{mem: image}

	attrs, err := ReadSystemAttributes(dev)
	require.NoError(t, err)

	require.Equal(t, "microbit_v2", attrs.Board)
	require.Equal(t, "cortex-m4", attrs.Arch)
	require.True(t, attrs.AppAddrValid)
	require.Equal(t, uint64(0x40000), attrs.AppAddr)
	require.Equal(t, "f2a5b1", attrs.BootHash)
	require.Equal(t, "1.1.2", attrs.BootloaderVersion)

	require.Equal(t, uint32(0x10000), attrs.KernelBinStart)
	require.Equal(t, uint32(0x20000), attrs.KernelBinLen)
	require.Equal(t, uint32(0x20000000), attrs.AppMemStart)
	require.Equal(t, uint32(0x10000), attrs.AppMemLen)
	require.Equal(t, uint8(2), attrs.KernelVersion)
	require.Equal(t, "TOCK", attrs.Sentinel)

	require.Len(t, attrs.Extra, 1)
	require.Equal(t, "custom", attrs.Extra[0].Key)
	require.Equal(t, "hello", attrs.Extra[0].Value)
}
