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

// Package flash unifies device access behind a single read/write-by-address
// capability, with one backend per connection type: debug probe or resident
// serial bootloader.
package flash

import (
	"encoding/binary"

	log "github.com/sirupsen/logrus"

	"tockos.org/tockload/bootserial"
	"tockos.org/tockload/probe"
	"tockos.org/tockload/util"
)

// ReadWriter is the capability every command is written against.  A command
// selects the backend once and then loops over this interface.
type ReadWriter interface {
	// ReadAt returns length bytes of device flash starting at address.
	ReadAt(address uint64, length int) ([]byte, error)

	// WriteAt stores data into device flash starting at address.
	WriteAt(address uint64, data []byte) error
}

// Patcher is the ability to rewrite an arbitrary byte span in place,
// leaving its surroundings untouched.  The probe backend's flash loader has
// it; the serial backend writes whole pages and marks the end of the
// application chain, so it does not.
type Patcher interface {
	ReadWriter

	// PatchAt stores data at address without page padding or chain-end
	// marking.
	PatchAt(address uint64, data []byte) error
}

// ProbeFlash accesses flash through a debug probe session.
type ProbeFlash struct {
	Session *probe.Session
}

func (p *ProbeFlash) PatchAt(address uint64, data []byte) error {
	return p.Session.WriteFlash(address, data)
}

func (p *ProbeFlash) ReadAt(address uint64, length int) ([]byte, error) {
	return p.Session.ReadMemory(address, length)
}

func (p *ProbeFlash) WriteAt(address uint64, data []byte) error {
	return p.Session.WriteFlash(address, data)
}

// SerialFlash accesses flash through the bootloader's serial protocol.  The
// protocol addresses a 32-bit space and writes whole pages.
type SerialFlash struct {
	Port     *bootserial.Port
	PageSize uint32
}

// The ReadRange length field is 16 bits; larger reads go out as a series of
// commands.
const serialReadChunk = 4096

func (s *SerialFlash) ReadAt(address uint64, length int) ([]byte, error) {
	out := make([]byte, 0, length)

	for length > 0 {
		chunk := length
		if chunk > serialReadChunk {
			chunk = serialReadChunk
		}

		payload := make([]byte, 6)
		binary.LittleEndian.PutUint32(payload[0:4], uint32(address))
		binary.LittleEndian.PutUint16(payload[4:6], uint16(chunk))

		data, err := s.Port.Issue(bootserial.COMMAND_READ_RANGE, payload,
			true, chunk, bootserial.RESPONSE_READ_RANGE)
		if err != nil {
			return nil, err
		}

		if len(data) < chunk {
			return nil, util.FmtTockloadError(
				"serial read returned %d bytes; expected %d",
				len(data), chunk)
		}

		out = append(out, data...)
		address += uint64(chunk)
		length -= chunk
	}

	return out, nil
}

// WriteAt pads data with zeros up to a whole number of pages, programs each
// page, and then erases the page just past the written span so a stale
// header cannot extend the application chain.
func (s *SerialFlash) WriteAt(address uint64, data []byte) error {
	pageSize := int(s.PageSize)

	padded := data
	if len(padded)%pageSize != 0 {
		padded = append(append([]byte(nil), data...),
			make([]byte, pageSize-len(padded)%pageSize)...)
	}

	for page := 0; page < len(padded)/pageSize; page++ {
		pageAddr := uint32(address) + uint32(page*pageSize)

		payload := make([]byte, 4, 4+pageSize)
		binary.LittleEndian.PutUint32(payload[0:4], pageAddr)
		payload = append(payload,
			padded[page*pageSize:(page+1)*pageSize]...)

		log.Debugf("writing page at 0x%x", pageAddr)
		_, err := s.Port.Issue(bootserial.COMMAND_WRITE_PAGE, payload, true,
			0, bootserial.RESPONSE_OK)
		if err != nil {
			return err
		}
	}

	endAddr := make([]byte, 4)
	binary.LittleEndian.PutUint32(endAddr,
		uint32(address)+uint32(len(padded)))

	_, err := s.Port.Issue(bootserial.COMMAND_ERASE_PAGE, endAddr, true, 0,
		bootserial.RESPONSE_OK)
	return err
}
