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

// Package tab reads tab archives: tar files holding a metadata.toml and one
// compiled .tbf binary per target architecture.
package tab

import (
	"archive/tar"
	"errors"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"tockos.org/tockload/util"
)

var (
	// ErrMissingMetadata reports a tab with no metadata.toml entry.
	ErrMissingMetadata = errors.New("no metadata.toml found inside the tab")

	// ErrMissingBinary reports a tab with no binary for the requested
	// architecture.
	ErrMissingBinary = errors.New("no binary for the requested architecture")
)

// TbfFile is one compiled binary inside a tab.  The filename encodes the
// target: either "{arch}.tbf" or "{arch}.{0xflash}.{0xram}.tbf" for builds
// linked to fixed addresses.
type TbfFile struct {
	Name string
	Arch string
	Data []byte

	FixedFlash uint64
	FixedRam   uint64
	HasFixed   bool
}

// Tab is a fully loaded archive.  Tabs are small, so every .tbf is held in
// memory.
type Tab struct {
	metadata *Metadata
	tbfs     []*TbfFile
}

// Open reads a tab archive from disk.
func Open(filename string) (*Tab, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, util.FmtChildTockloadError(err,
			"Failed to open tab %s: %s", filename, err.Error())
	}
	defer f.Close()

	return Read(f)
}

// Read loads a tab archive from a stream.
func Read(r io.Reader) (*Tab, error) {
	t := &Tab{}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, util.FmtChildTockloadError(err,
				"Failed to read tab archive: %s", err.Error())
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Base(hdr.Name)

		switch {
		case name == "metadata.toml":
			metadata, err := parseMetadata(tr)
			if err != nil {
				return nil, err
			}
			t.metadata = metadata

		case strings.HasSuffix(name, ".tbf"):
			data, err := io.ReadAll(tr)
			if err != nil {
				return nil, util.FmtChildTockloadError(err,
					"Failed to read tab entry %s: %s", name, err.Error())
			}

			tbf, err := parseTbfName(name)
			if err != nil {
				log.Debugf("skipping tab entry %s: %s", name, err.Error())
				continue
			}
			tbf.Data = data
			t.tbfs = append(t.tbfs, tbf)
		}
	}

	if t.metadata == nil {
		return nil, util.ChildTockloadError(ErrMissingMetadata)
	}

	return t, nil
}

// parseTbfName splits "{arch}.tbf" or "{arch}.{0xflash}.{0xram}.tbf".
func parseTbfName(name string) (*TbfFile, error) {
	stem := strings.TrimSuffix(name, ".tbf")
	pieces := strings.Split(stem, ".")

	tbf := &TbfFile{Name: name}

	if len(pieces) >= 3 &&
		strings.HasPrefix(pieces[len(pieces)-2], "0x") &&
		strings.HasPrefix(pieces[len(pieces)-1], "0x") {

		flash, err := strconv.ParseUint(pieces[len(pieces)-2], 0, 64)
		if err != nil {
			return nil, util.FmtTockloadError(
				"invalid flash address in tbf filename %s", name)
		}
		ram, err := strconv.ParseUint(pieces[len(pieces)-1], 0, 64)
		if err != nil {
			return nil, util.FmtTockloadError(
				"invalid ram address in tbf filename %s", name)
		}

		tbf.Arch = strings.Join(pieces[:len(pieces)-2], ".")
		tbf.FixedFlash = flash
		tbf.FixedRam = ram
		tbf.HasFixed = true
	} else {
		tbf.Arch = stem
	}

	if tbf.Arch == "" {
		return nil, util.FmtTockloadError(
			"tbf filename %s encodes no architecture", name)
	}

	return tbf, nil
}

// Metadata returns the parsed metadata.toml.
func (t *Tab) Metadata() *Metadata {
	return t.metadata
}

// Tbfs returns every binary in the archive.
func (t *Tab) Tbfs() []*TbfFile {
	return t.tbfs
}

// FilterTbfs returns the binaries matching the given architecture whose
// fixed addresses, if any, are usable with the given region bases.
func (t *Tab) FilterTbfs(arch string, startAddress uint64,
	ramStartAddress uint64) []*TbfFile {

	var out []*TbfFile
	for _, tbf := range t.tbfs {
		if tbf.Arch != arch {
			continue
		}
		if tbf.HasFixed && (tbf.FixedFlash < startAddress ||
			tbf.FixedRam < ramStartAddress) {

			continue
		}
		out = append(out, tbf)
	}
	return out
}

// ExtractBinary returns the first binary whose filename starts with the
// given architecture prefix.
func (t *Tab) ExtractBinary(archPrefix string) ([]byte, error) {
	if archPrefix == "" {
		return nil, util.NewTockloadError(
			"no architecture configured for binary extraction")
	}

	for _, tbf := range t.tbfs {
		if strings.HasPrefix(tbf.Name, archPrefix) {
			return tbf.Data, nil
		}
	}

	return nil, util.FmtChildTockloadError(ErrMissingBinary,
		"tab holds no binary for architecture %s", archPrefix)
}

// IsCompatibleWithBoard checks the metadata's only-for-boards list.  A tab
// without the key fits every board.
func (t *Tab) IsCompatibleWithBoard(board string) bool {
	if len(t.metadata.OnlyForBoards) == 0 {
		return true
	}
	for _, b := range t.metadata.OnlyForBoards {
		if b == board {
			return true
		}
	}
	return false
}

// KernelVersionSupported checks the app's minimum kernel version against
// the board's.  Advisory: callers log a mismatch and continue.
func (t *Tab) KernelVersionSupported(kernelMajor uint8) bool {
	min := t.metadata.MinimumKernelVersion
	if min == "" {
		return true
	}

	majorStr, _, _ := strings.Cut(min, ".")
	major, err := strconv.ParseUint(majorStr, 10, 8)
	if err != nil {
		log.Debugf("unparseable minimum-tock-kernel-version %q", min)
		return true
	}

	return uint8(major) <= kernelMajor
}
