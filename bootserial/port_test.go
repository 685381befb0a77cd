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
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// duplex joins one read pipe and one write pipe into an
// io.ReadWriteCloser, so a test can play the bootloader on the far end.
type duplex struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (d *duplex) Read(p []byte) (int, error) {
	return d.r.Read(p)
}

func (d *duplex) Write(p []byte) (int, error) {
	return d.w.Write(p)
}

func (d *duplex) Close() error {
	d.r.Close()
	d.w.Close()
	return nil
}

func newLink() (*duplex, *duplex) {
	hostRead, devWrite := io.Pipe()
	devRead, hostWrite := io.Pipe()

	host := &duplex{r: hostRead, w: hostWrite}
	dev := &duplex{r: devRead, w: devWrite}
	return host, dev
}

func TestEscapeBytes(t *testing.T) {
	cases := []struct {
		in  []byte
		out []byte
	}{
		{[]byte{}, []byte{}},
		{[]byte{0x01, 0x02}, []byte{0x01, 0x02}},
		{[]byte{0xFC}, []byte{0xFC, 0xFC}},
		{[]byte{0xFC, 0x00, 0xFC}, []byte{0xFC, 0xFC, 0x00, 0xFC, 0xFC}},
	}

	for _, c := range cases {
		got := escapeBytes(c.in)
		require.Equal(t, c.out, got)

		// Escaping inserts exactly one extra byte per escape char.
		require.Equal(t, len(c.in)+bytes.Count(c.in, []byte{EscapeChar}),
			len(got))
	}
}

func TestPing(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	go func() {
		buf := make([]byte, 2)
		io.ReadFull(dev, buf)
		dev.Write([]byte{EscapeChar, byte(RESPONSE_PONG)})
	}()

	require.NoError(t, p.Ping())
}

func TestPingRetriesThenFails(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	go func() {
		for i := 0; i < pingAttempts; i++ {
			buf := make([]byte, 2)
			io.ReadFull(dev, buf)
			dev.Write([]byte{EscapeChar, byte(RESPONSE_BADARGS)})
		}
	}()

	err := p.Ping()
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotPresent)
}

func TestReadTimeout(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()
	p.SetTimeout(50 * time.Millisecond)

	go func() {
		// Drain the ping so the write does not block; never answer.
		buf := make([]byte, 2)
		io.ReadFull(dev, buf)
	}()

	err := p.Ping()
	require.Error(t, err)
}

func TestIssueFrameLayout(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	payload := []byte{0x00, 0x04, 0x03, 0xFC, 0x00, 0xC8}
	frameCh := make(chan []byte, 1)

	go func() {
		// sync(3) + escaped payload(7) + escape + command(2)
		buf := make([]byte, 3+7+2)
		io.ReadFull(dev, buf)
		frameCh <- buf
		dev.Write([]byte{EscapeChar, byte(RESPONSE_OK)})
	}()

	_, err := p.Issue(COMMAND_ERASE_PAGE, payload, true, 0, RESPONSE_OK)
	require.NoError(t, err)

	frame := <-frameCh
	require.Equal(t, SyncMessage, frame[0:3])
	require.Equal(t, []byte{0x00, 0x04, 0x03, 0xFC, 0xFC, 0x00, 0xC8},
		frame[3:10])
	require.Equal(t, []byte{EscapeChar, byte(COMMAND_ERASE_PAGE)},
		frame[10:12])
}

func TestIssueBadHeader(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	go func() {
		buf := make([]byte, 2)
		io.ReadFull(dev, buf)
		dev.Write([]byte{EscapeChar, byte(RESPONSE_BADADDR)})
	}()

	_, err := p.Issue(COMMAND_PING, nil, false, 0, RESPONSE_PONG)
	require.Error(t, err)

	var badHeader *BadHeaderError
	require.ErrorAs(t, err, &badHeader)
	require.Equal(t, EscapeChar, badHeader.H0)
	require.Equal(t, byte(RESPONSE_BADADDR), badHeader.H1)
}

func TestIssueDeEscape(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	data := []byte{0x01, 0xFC, 0x02, 0xFC, 0xFC, 0x03}

	go func() {
		buf := make([]byte, 2)
		io.ReadFull(dev, buf)

		resp := []byte{EscapeChar, byte(RESPONSE_READ_RANGE)}
		resp = append(resp, escapeBytes(data)...)
		dev.Write(resp)
	}()

	got, err := p.Issue(COMMAND_READ_RANGE, nil, false, len(data),
		RESPONSE_READ_RANGE)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestIssueDeEscapeAllEscapes(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	// Every data byte is the escape character: the wire carries twice as
	// many bytes as the declared response length.
	data := bytes.Repeat([]byte{EscapeChar}, 8)

	go func() {
		buf := make([]byte, 2)
		io.ReadFull(dev, buf)

		resp := []byte{EscapeChar, byte(RESPONSE_READ_RANGE)}
		resp = append(resp, escapeBytes(data)...)
		dev.Write(resp)
	}()

	got, err := p.Issue(COMMAND_READ_RANGE, nil, false, len(data),
		RESPONSE_READ_RANGE)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestIssueRoundTrip(t *testing.T) {
	// De-escaping the escaped form must reproduce the original for byte
	// strings with escapes in every position.
	inputs := [][]byte{
		{},
		{0x00},
		{0xFC},
		{0xFC, 0xFC, 0xFC},
		{0x00, 0xFC, 0x05},
		{0xAB, 0xFC, 0xCD, 0xFC},
	}

	for _, data := range inputs {
		if len(data) == 0 {
			continue
		}

		host, dev := newLink()
		p := NewPort(host)

		go func(payload []byte) {
			buf := make([]byte, 2)
			io.ReadFull(dev, buf)

			resp := []byte{EscapeChar, byte(RESPONSE_READ_RANGE)}
			resp = append(resp, escapeBytes(payload)...)
			dev.Write(resp)
		}(data)

		got, err := p.Issue(COMMAND_READ_RANGE, nil, false, len(data),
			RESPONSE_READ_RANGE)
		require.NoError(t, err)
		require.Equal(t, data, got)

		p.Close()
	}
}

func TestGetAttribute(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	slot := make([]byte, 64)
	copy(slot[0:8], "board")
	slot[8] = 3
	copy(slot[9:12], "foo")

	go func() {
		// sync(3) + escaped index(1) + escape + command(2)
		buf := make([]byte, 6)
		io.ReadFull(dev, buf)

		resp := []byte{EscapeChar, byte(RESPONSE_GET_ATTRIBUTE)}
		resp = append(resp, escapeBytes(slot)...)
		dev.Write(resp)
	}()

	got, err := p.GetAttribute(0)
	require.NoError(t, err)
	require.Equal(t, slot, got)
}

func TestSetStartAddress(t *testing.T) {
	host, dev := newLink()
	p := NewPort(host)
	defer p.Close()

	frameCh := make(chan []byte, 1)

	go func() {
		// sync(3) + escaped address(4) + escape + command(2)
		buf := make([]byte, 9)
		io.ReadFull(dev, buf)
		frameCh <- buf
		dev.Write([]byte{EscapeChar, byte(RESPONSE_OK)})
	}()

	require.NoError(t, p.SetStartAddress(0x00040000))

	frame := <-frameCh
	require.Equal(t, []byte{0x00, 0x00, 0x04, 0x00}, frame[3:7])
	require.Equal(t, byte(COMMAND_SET_START_ADDRESS), frame[8])
}
