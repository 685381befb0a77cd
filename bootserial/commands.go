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

package bootserial

import (
	"encoding/binary"
	"strings"
)

// The info response is a fixed-size, null-padded text block.
const infoResponseLen = 193

// The get-attribute response is one raw 64-byte attribute slot.
const attributeSlotLen = 64

// Info asks the bootloader to describe itself.
func (p *Port) Info() (string, error) {
	data, err := p.Issue(COMMAND_INFO, nil, true, infoResponseLen,
		RESPONSE_INFO)
	if err != nil {
		return "", err
	}

	return strings.Trim(string(data), "\x00"), nil
}

// GetAttribute fetches one raw attribute slot by index through the
// bootloader, rather than by reading the attribute region directly.
func (p *Port) GetAttribute(index uint8) ([]byte, error) {
	return p.Issue(COMMAND_GET_ATTRIBUTE, []byte{index}, true,
		attributeSlotLen, RESPONSE_GET_ATTRIBUTE)
}

// SetStartAddress tells the bootloader where subsequent flash commands are
// based.
func (p *Port) SetStartAddress(address uint32) error {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, address)

	_, err := p.Issue(COMMAND_SET_START_ADDRESS, payload, true, 0,
		RESPONSE_OK)
	return err
}

// Reset tells the bootloader to reset its command buffer.
func (p *Port) Reset() error {
	_, err := p.Issue(COMMAND_RESET, nil, true, 0, RESPONSE_OK)
	return err
}
