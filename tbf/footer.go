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

	"tockos.org/tockload/util"
)

// CredentialsType is the 4-byte format word at the start of a credentials
// footer payload.
type CredentialsType uint32

const (
	CREDENTIALS_RESERVED        CredentialsType = 0
	CREDENTIALS_RSA3072_KEY     CredentialsType = 1
	CREDENTIALS_RSA4096_KEY     CredentialsType = 2
	CREDENTIALS_SHA256          CredentialsType = 3
	CREDENTIALS_SHA384          CredentialsType = 4
	CREDENTIALS_SHA512          CredentialsType = 5
	CREDENTIALS_ECDSA_NIST_P256 CredentialsType = 6
	CREDENTIALS_RSA2048_KEY     CredentialsType = 7
)

var credentialsTypeNameMap = map[CredentialsType]string{
	CREDENTIALS_RESERVED:        "RESERVED",
	CREDENTIALS_RSA3072_KEY:     "RSA3072",
	CREDENTIALS_RSA4096_KEY:     "RSA4096",
	CREDENTIALS_SHA256:          "SHA256",
	CREDENTIALS_SHA384:          "SHA384",
	CREDENTIALS_SHA512:          "SHA512",
	CREDENTIALS_ECDSA_NIST_P256: "ECDSA_NIST_P256",
	CREDENTIALS_RSA2048_KEY:     "RSA2048",
}

func (ct CredentialsType) String() string {
	name, ok := credentialsTypeNameMap[ct]
	if !ok {
		return "???"
	}

	return name
}

// Credentials is the payload of one footer TLV.  The codec exposes the raw
// material; verifying it is the consumer's concern.
type Credentials struct {
	Format CredentialsType

	// Length is the footer payload size in bytes, excluding the 4-byte TL
	// prefix.  For reserved footers this is the full span of padding.
	Length uint32

	// Data is the payload after the format word: a digest, a key-and-
	// signature pair, or an (r, s) pair, depending on Format.  Empty for
	// reserved footers.
	Data []byte
}

// Hash returns the digest carried by a SHA-family credential.
func (c *Credentials) Hash() ([]byte, bool) {
	switch c.Format {
	case CREDENTIALS_SHA256, CREDENTIALS_SHA384, CREDENTIALS_SHA512:
		return c.Data, true
	}
	return nil, false
}

// KeyAndSignature splits an RSA credential into its public key and signature
// halves.
func (c *Credentials) KeyAndSignature() ([]byte, []byte, bool) {
	switch c.Format {
	case CREDENTIALS_RSA2048_KEY, CREDENTIALS_RSA3072_KEY,
		CREDENTIALS_RSA4096_KEY:

		half := len(c.Data) / 2
		return c.Data[:half], c.Data[half:], true
	}
	return nil, nil, false
}

// SignatureRS returns the r and s words of an ECDSA NIST P-256 credential.
func (c *Credentials) SignatureRS() ([]byte, []byte, bool) {
	if c.Format != CREDENTIALS_ECDSA_NIST_P256 || len(c.Data) != 64 {
		return nil, nil, false
	}
	return c.Data[0:32], c.Data[32:64], true
}

// ParseFooter decodes one footer TLV at the start of the given buffer and
// returns its credentials along with the payload size.  The caller advances
// by payload size + 4 to reach the next footer.
func ParseFooter(data []byte) (*Credentials, uint32, error) {
	if len(data) < TBF_TLV_SIZE {
		return nil, 0, util.FmtChildTockloadError(ErrNotEnoughData,
			"footer TLV requires %d bytes; got %d", TBF_TLV_SIZE, len(data))
	}

	tlvType := binary.LittleEndian.Uint16(data[0:2])
	tlvLen := binary.LittleEndian.Uint16(data[2:4])

	if tlvType != TBF_TLV_CREDENTIALS {
		return nil, 0, util.FmtTockloadError(
			"footer TLV has type %d (%s); expected credentials",
			tlvType, TlvTypeName(tlvType))
	}

	payload := data[TBF_TLV_SIZE:]
	if int(tlvLen) > len(payload) {
		return nil, 0, util.FmtChildTockloadError(ErrNotEnoughData,
			"footer payload of %d bytes overruns buffer of %d",
			tlvLen, len(payload))
	}
	payload = payload[:tlvLen]

	if len(payload) < 4 {
		return nil, 0, util.FmtChildTockloadError(ErrNotEnoughData,
			"footer payload of %d bytes lacks a format word", len(payload))
	}

	creds := &Credentials{
		Format: CredentialsType(binary.LittleEndian.Uint32(payload[0:4])),
		Length: uint32(tlvLen),
	}

	switch creds.Format {
	case CREDENTIALS_RESERVED:
		// Padding of the stated length; no payload to retain.

	default:
		creds.Data = make([]byte, len(payload)-4)
		copy(creds.Data, payload[4:])
	}

	return creds, uint32(tlvLen), nil
}
