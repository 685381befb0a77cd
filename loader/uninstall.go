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

package loader

import (
	"encoding/binary"

	"tockos.org/tockload/attributes"
	"tockos.org/tockload/flash"
	"tockos.org/tockload/tbf"
	"tockos.org/tockload/util"
)

const (
	flagsOffset    = 8
	checksumOffset = 12
)

// patcher asserts that the backend can rewrite byte spans in place, which
// uninstall and disable require.  The serial backend cannot: its writes pad
// to whole pages and mark the end of the chain.
func patcher(rw flash.ReadWriter) (flash.Patcher, error) {
	p, ok := rw.(flash.Patcher)
	if !ok {
		return nil, util.NewTockloadError(
			"this operation requires a probe connection")
	}
	return p, nil
}

// Uninstall removes the named app by sliding the apps after it down over
// its region, then blanking a page past the survivors.  An empty name
// removes everything: a single zero byte at the start address invalidates
// the whole chain.
func Uninstall(rw flash.ReadWriter, settings *BoardSettings,
	name string) error {

	p, err := patcher(rw)
	if err != nil {
		return err
	}

	if name == "" {
		return p.PatchAt(settings.StartAddress, []byte{0x00})
	}

	apps, err := attributes.ReadInstalledApps(rw, settings.StartAddress)
	if err != nil {
		return err
	}

	target := -1
	for i, app := range apps {
		if app.Name() == name {
			target = i
			break
		}
	}
	if target < 0 {
		return util.FmtTockloadError("app %s is not installed", name)
	}

	var tailSize int
	for _, app := range apps[target+1:] {
		tailSize += int(app.Size)
	}

	var buffer []byte
	if tailSize > 0 {
		buffer, err = rw.ReadAt(apps[target+1].Address, tailSize)
		if err != nil {
			return err
		}
	}

	// A blank page after the survivors keeps a stale header from
	// resurrecting the removed app.
	buffer = append(buffer, make([]byte, settings.PageSize)...)

	return p.PatchAt(apps[target].Address, buffer)
}

// Disable clears the enabled bit of the named app in place, or of every
// enabled app when the name is empty.  The kernel then skips the app at
// boot without its bytes going anywhere.
func Disable(rw flash.ReadWriter, settings *BoardSettings,
	name string) error {

	p, err := patcher(rw)
	if err != nil {
		return err
	}

	apps, err := attributes.ReadInstalledApps(rw, settings.StartAddress)
	if err != nil {
		return err
	}

	patched := 0
	for _, app := range apps {
		if name != "" && app.Name() != name {
			continue
		}
		if !app.Header.Enabled() {
			if name != "" {
				return util.FmtTockloadError("app %s is already disabled",
					name)
			}
			continue
		}

		if err := patchFlags(p, app,
			app.Header.Flags()&^uint32(tbf.TBF_FLAG_ENABLED)); err != nil {

			return err
		}
		patched++

		if name != "" {
			return nil
		}
	}

	if name != "" {
		return util.FmtTockloadError("app %s is not installed", name)
	}
	if patched == 0 {
		return util.NewTockloadError("no enabled apps to disable")
	}
	return nil
}

// patchFlags rewrites an app's flag word and repairs the checksum in place.
// The checksum is an XOR of header words, so folding the flag-word delta
// into the stored checksum preserves the invariant without re-reading the
// whole header.
func patchFlags(p flash.Patcher, app *attributes.AppAttributes,
	newFlags uint32) error {

	oldFlags := app.Header.Flags()
	newChecksum := app.Header.Checksum() ^ oldFlags ^ newFlags

	patch := make([]byte, 8)
	binary.LittleEndian.PutUint32(patch[0:4], newFlags)
	binary.LittleEndian.PutUint32(patch[4:8], newChecksum)

	return p.PatchAt(app.Address+flagsOffset, patch)
}
