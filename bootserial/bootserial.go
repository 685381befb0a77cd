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

// Package bootserial speaks the Tock bootloader's framed serial protocol:
// escape-encoded payloads, a sync prefix to recover stream alignment, and a
// one-byte command / response vocabulary.
package bootserial

import (
	"errors"
	"fmt"
	"time"
)

// EscapeChar was chosen as it is infrequent in .bin files.
const EscapeChar byte = 0xFC

// SyncMessage tells the bootloader to reset its buffer to handle a new
// command.
var SyncMessage = []byte{0x00, 0xFC, 0x05}

const DefaultTimeout = 5 * time.Second

const pingAttempts = 30

// Command bytes sent to the bootloader.  The "X" commands address external
// flash.
type Command byte

const (
	COMMAND_PING               Command = 0x01
	COMMAND_INFO               Command = 0x03
	COMMAND_ID                 Command = 0x04
	COMMAND_RESET              Command = 0x05
	COMMAND_ERASE_PAGE         Command = 0x06
	COMMAND_WRITE_PAGE         Command = 0x07
	COMMAND_XEBLOCK            Command = 0x08
	COMMAND_XWPAGE             Command = 0x09
	COMMAND_CRCRX              Command = 0x10
	COMMAND_READ_RANGE         Command = 0x11
	COMMAND_XRRANGE            Command = 0x12
	COMMAND_SET_ATTRIBUTE      Command = 0x13
	COMMAND_GET_ATTRIBUTE      Command = 0x14
	COMMAND_CRC_INTERNAL_FLASH Command = 0x15
	COMMAND_CRCEF              Command = 0x16
	COMMAND_XEPAGE             Command = 0x17
	COMMAND_XFINIT             Command = 0x18
	COMMAND_CLKOUT             Command = 0x19
	COMMAND_WUSER              Command = 0x20
	COMMAND_CHANGE_BAUD_RATE   Command = 0x21
	COMMAND_EXIT               Command = 0x22
	COMMAND_SET_START_ADDRESS  Command = 0x23
)

// Response bytes returned by the bootloader, always preceded on the wire by
// EscapeChar.
type Response byte

const (
	RESPONSE_OVERFLOW           Response = 0x10
	RESPONSE_PONG               Response = 0x11
	RESPONSE_BADADDR            Response = 0x12
	RESPONSE_INTERROR           Response = 0x13
	RESPONSE_BADARGS            Response = 0x14
	RESPONSE_OK                 Response = 0x15
	RESPONSE_UNKNOWN            Response = 0x16
	RESPONSE_XFTIMEOUT          Response = 0x17
	RESPONSE_XFEPE              Response = 0x18
	RESPONSE_CRCRX              Response = 0x19
	RESPONSE_READ_RANGE         Response = 0x20
	RESPONSE_XRRANGE            Response = 0x21
	RESPONSE_GET_ATTRIBUTE      Response = 0x22
	RESPONSE_CRC_INTERNAL_FLASH Response = 0x23
	RESPONSE_CRCXF              Response = 0x24
	RESPONSE_INFO               Response = 0x25
	RESPONSE_CHANGE_BAUD_FAIL   Response = 0x26
)

var responseNameMap = map[Response]string{
	RESPONSE_OVERFLOW:           "OVERFLOW",
	RESPONSE_PONG:               "PONG",
	RESPONSE_BADADDR:            "BADADDR",
	RESPONSE_INTERROR:           "INTERROR",
	RESPONSE_BADARGS:            "BADARGS",
	RESPONSE_OK:                 "OK",
	RESPONSE_UNKNOWN:            "UNKNOWN",
	RESPONSE_XFTIMEOUT:          "XFTIMEOUT",
	RESPONSE_XFEPE:              "XFEPE",
	RESPONSE_CRCRX:              "CRCRX",
	RESPONSE_READ_RANGE:         "READ_RANGE",
	RESPONSE_XRRANGE:            "XRRANGE",
	RESPONSE_GET_ATTRIBUTE:      "GET_ATTRIBUTE",
	RESPONSE_CRC_INTERNAL_FLASH: "CRC_INTERNAL_FLASH",
	RESPONSE_CRCXF:              "CRCXF",
	RESPONSE_INFO:               "INFO",
	RESPONSE_CHANGE_BAUD_FAIL:   "CHANGE_BAUD_FAIL",
}

func ResponseName(r Response) string {
	name, ok := responseNameMap[r]
	if !ok {
		return "???"
	}

	return name
}

var (
	// ErrTimeout reports a serial read or write that did not finish within
	// the per-operation deadline.
	ErrTimeout = errors.New("bootloader command did not finish in time")

	// ErrNotPresent reports a board that never answered the ping sequence:
	// either no bootloader is installed or the board is not in bootloader
	// mode.
	ErrNotPresent = errors.New(
		"board not in bootloader mode or no bootloader present")
)

// BadHeaderError reports a response header whose bytes did not match the
// expected escape/response pair.
type BadHeaderError struct {
	H0 byte
	H1 byte
}

func (e *BadHeaderError) Error() string {
	return fmt.Sprintf("bootloader returned an invalid header: 0x%02x 0x%02x",
		e.H0, e.H1)
}
