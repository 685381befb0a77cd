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
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"tockos.org/tockload/util"
)

type readResult struct {
	data []byte
	err  error
}

// Port is an exclusive handle on a serial connection to a resident
// bootloader.  A background goroutine pumps bytes off the device so that
// every read can be bounded by a deadline.
type Port struct {
	rwc     io.ReadWriteCloser
	timeout time.Duration

	readCh   chan readResult
	leftover []byte
}

// Open opens the named serial device in the 8N1 framing the bootloader
// expects.
func Open(device string, baudRate uint) (*Port, error) {
	opts := serial.OpenOptions{
		PortName:        device,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	}

	rwc, err := serial.Open(opts)
	if err != nil {
		return nil, util.FmtChildTockloadError(err,
			"Failed to open serial port %s: %s", device, err.Error())
	}

	return NewPort(rwc), nil
}

// NewPort wraps an already-open stream.  Useful for composing with
// transports other than a local tty.
func NewPort(rwc io.ReadWriteCloser) *Port {
	p := &Port{
		rwc:     rwc,
		timeout: DefaultTimeout,
		readCh:  make(chan readResult, 16),
	}
	go p.readLoop()

	return p
}

func (p *Port) Close() error {
	return p.rwc.Close()
}

// SetTimeout overrides the per-operation deadline.
func (p *Port) SetTimeout(d time.Duration) {
	p.timeout = d
}

func (p *Port) readLoop() {
	for {
		buf := make([]byte, 256)
		n, err := p.rwc.Read(buf)
		if n > 0 {
			p.readCh <- readResult{data: buf[:n]}
		}
		if err != nil {
			p.readCh <- readResult{err: err}
			return
		}
	}
}

// readBytes collects exactly n bytes from the device, failing with
// ErrTimeout if they do not arrive within the port deadline.
func (p *Port) readBytes(n int) ([]byte, error) {
	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	for len(p.leftover) < n {
		select {
		case res := <-p.readCh:
			if res.err != nil {
				return nil, util.FmtChildTockloadError(res.err,
					"Serial read failed: %s", res.err.Error())
			}
			p.leftover = append(p.leftover, res.data...)

		case <-deadline.C:
			return nil, util.ChildTockloadError(ErrTimeout)
		}
	}

	out := p.leftover[:n:n]
	p.leftover = p.leftover[n:]
	return out, nil
}

// writeBytes writes the whole buffer, bounded by the port deadline.
func (p *Port) writeBytes(data []byte) error {
	done := make(chan error, 1)
	go func() {
		_, err := p.rwc.Write(data)
		done <- err
	}()

	deadline := time.NewTimer(p.timeout)
	defer deadline.Stop()

	select {
	case err := <-done:
		if err != nil {
			return util.FmtChildTockloadError(err,
				"Serial write failed: %s", err.Error())
		}
		return nil

	case <-deadline.C:
		return util.ChildTockloadError(ErrTimeout)
	}
}

// Ping checks for a responsive bootloader.  A wrong answer is retried; after
// 30 attempts the board is declared not present.
func (p *Port) Ping() error {
	pingPkt := []byte{EscapeChar, byte(COMMAND_PING)}

	for i := 0; i < pingAttempts; i++ {
		if err := p.writeBytes(pingPkt); err != nil {
			return err
		}

		ret, err := p.readBytes(2)
		if err != nil {
			return err
		}

		if Response(ret[1]) == RESPONSE_PONG {
			return nil
		}

		log.Debugf("ping attempt %d answered 0x%02x 0x%02x; retrying",
			i+1, ret[0], ret[1])
	}

	return util.ChildTockloadError(ErrNotPresent)
}

// escapeBytes duplicates every escape character in the payload, per the
// bootloader's byte-stuffing rule.
func escapeBytes(payload []byte) []byte {
	out := make([]byte, 0, len(payload))
	for _, b := range payload {
		out = append(out, b)
		if b == EscapeChar {
			out = append(out, EscapeChar)
		}
	}
	return out
}

// Issue sends one command frame and reads its response.
//
// The outgoing frame is the escape-encoded payload followed by
// {EscapeChar, command}, optionally preceded by the sync message.  The
// response is a two byte header {EscapeChar, code} and, when responseLen is
// non-zero, exactly responseLen de-escaped payload bytes.  Because
// consecutive escape characters collapse on receive, extra bytes are pulled
// from the wire to keep the caller-visible count exact.
func (p *Port) Issue(command Command, payload []byte, sync bool,
	responseLen int, expected Response) ([]byte, error) {

	frame := escapeBytes(payload)
	frame = append(frame, EscapeChar, byte(command))
	if sync {
		frame = append(append([]byte(nil), SyncMessage...), frame...)
	}

	if err := p.writeBytes(frame); err != nil {
		return nil, err
	}

	header, err := p.readBytes(2)
	if err != nil {
		return nil, err
	}

	if header[0] != EscapeChar || Response(header[1]) != expected {
		return nil, util.ChildTockloadError(&BadHeaderError{
			H0: header[0],
			H1: header[1],
		})
	}

	if responseLen == 0 {
		return nil, nil
	}

	input, err := p.readBytes(responseLen)
	if err != nil {
		return nil, err
	}

	result := make([]byte, 0, responseLen)
	i := 0
	for i < len(input) {
		if i+1 < len(input) && input[i] == EscapeChar &&
			input[i+1] == EscapeChar {

			// A collapsed escape pair consumed one payload byte; fetch a
			// replacement so the declared length is honored.
			extra, err := p.readBytes(1)
			if err != nil {
				return nil, err
			}
			input = append(input, extra...)

			result = append(result, EscapeChar)
			i += 2
		} else {
			result = append(result, input[i])
			i++
		}
	}

	return result, nil
}
