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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSerializeIdentity(t *testing.T) {
	buf := simpleHeader(t)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)

	serialized := hdr.Serialize()
	require.Equal(t, buf[0:16], serialized[0:16])
	require.Equal(t, buf, serialized)
}

func TestSetFlagsDisableEnable(t *testing.T) {
	buf := simpleHeader(t)
	original := append([]byte(nil), buf...)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)
	require.True(t, hdr.Enabled())

	// Disable.
	hdr.SetFlags(0x00000000, buf)
	copy(buf[0:16], hdr.SerializePrologue())

	reparsed, err := ParseHeader(buf, 2)
	require.NoError(t, err)
	require.False(t, reparsed.Enabled())

	name, _ := reparsed.PackageName()
	require.Equal(t, "_heart", name)

	// Enable again: the prologue must return to its original bytes.
	reparsed.SetFlags(0x00000001, buf)
	copy(buf[0:16], reparsed.SerializePrologue())
	require.Equal(t, original, buf)
}

func TestSetFlagsChecksumInvariant(t *testing.T) {
	buf := simpleHeader(t)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)

	for _, flags := range []uint32{0x000FABCD, 0x00000001, 0x00000002,
		0x00000003} {

		hdr.SetFlags(flags, buf)
		copy(buf[0:16], hdr.SerializePrologue())

		_, err := ParseHeader(buf, 2)
		require.NoError(t, err, "checksum validation failed for %#x", flags)
	}
}

func TestSetFlagsIdempotent(t *testing.T) {
	buf := simpleHeader(t)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)

	hdr.SetFlags(0x00000003, buf)
	once := hdr.Serialize()

	hdr.SetFlags(0x00000003, buf)
	require.Equal(t, once, hdr.Serialize())
}

func TestSetFlagsHighBits(t *testing.T) {
	buf := simpleHeader(t)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)

	hdr.SetFlags(0xFFFF0001, buf)
	copy(buf[0:16], hdr.SerializePrologue())

	reparsed, err := ParseHeader(buf, 2)
	require.NoError(t, err)
	require.True(t, reparsed.Enabled())
	require.False(t, reparsed.Sticky())
	require.Equal(t, uint32(0xFFFF0001),
		binary.LittleEndian.Uint32(buf[8:12]))

	// High bits survive any number of enabled/sticky toggles.
	reparsed.SetEnabled(false, buf)
	copy(buf[0:16], reparsed.SerializePrologue())
	reparsed.SetSticky(true, buf)
	copy(buf[0:16], reparsed.SerializePrologue())
	reparsed.SetEnabled(true, buf)
	copy(buf[0:16], reparsed.SerializePrologue())
	reparsed.SetSticky(false, buf)
	copy(buf[0:16], reparsed.SerializePrologue())

	final, err := ParseHeader(buf, 2)
	require.NoError(t, err)
	require.True(t, final.Enabled())
	require.False(t, final.Sticky())
	require.Equal(t, uint32(0xFFFF0000), final.Flags()&0xFFFFFFFC)
}

func TestSetFlagsUnsetSet(t *testing.T) {
	buf := simpleHeader(t)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)

	s1 := hdr.Serialize()
	hdr.SetFlags(0x80000001, buf)
	s2 := hdr.Serialize()
	hdr.SetFlags(0x00000001, buf)
	s3 := hdr.Serialize()

	require.NotEqual(t, s1, s2)
	require.Equal(t, s1, s3)
	require.NotEqual(t, s2, s3)
}

func TestSetFlagsAlternating(t *testing.T) {
	buf := simpleHeader(t)

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)

	for i := uint32(1); i < 21; i++ {
		hdr.SetFlags(i, buf)
		require.Equal(t, i%2 == 1, hdr.Enabled())
	}
}

func TestSetFlagsOnPadding(t *testing.T) {
	buf := []byte{
		0x02, 0x00, 0x10, 0x00, 0x10, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x12, 0x00, 0x10, 0x00,
	}

	hdr, err := ParseHeader(buf, 2)
	require.NoError(t, err)
	require.False(t, hdr.IsApp())

	hdr.SetFlags(0x06000001, buf)
	serialized := hdr.Serialize()

	flags := binary.LittleEndian.Uint32(serialized[8:12])
	require.Equal(t, uint32(0x06000001), flags)

	_, err = ParseHeader(serialized, 2)
	require.NoError(t, err)
}

func TestNewPadding(t *testing.T) {
	buf := NewPadding(4096)
	require.Len(t, buf, 4096)

	version, headerSize, totalSize, err := ParseLengths(buf[0:8])
	require.NoError(t, err)
	require.Equal(t, uint16(2), version)
	require.Equal(t, uint16(16), headerSize)
	require.Equal(t, uint32(4096), totalSize)

	hdr, err := ParseHeader(buf[0:headerSize], 2)
	require.NoError(t, err)
	require.False(t, hdr.IsApp())
}
