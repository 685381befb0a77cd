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
	log "github.com/sirupsen/logrus"

	"tockos.org/tockload/attributes"
	"tockos.org/tockload/flash"
	"tockos.org/tockload/layout"
	"tockos.org/tockload/tab"
	"tockos.org/tockload/tbf"
	"tockos.org/tockload/util"
)

// candidateBinary is one install choice for the new app: a binary plus the
// flash address it may be placed at (fixed builds only).
type candidateBinary struct {
	data    []byte
	address uint64
	fixed   bool
}

// Install adds the tab's binary to the application chain.  The whole chain
// is re-planned: existing apps are read back from the device, the new app is
// added, and the planner's layout is written out in one pass, padding
// regions included.
func Install(rw flash.ReadWriter, settings *BoardSettings,
	t *tab.Tab) error {

	if settings.Arch == "" {
		return util.NewTockloadError(
			"board settings carry no architecture; cannot pick a binary")
	}

	apps, err := attributes.ReadInstalledApps(rw, settings.StartAddress)
	if err != nil {
		return err
	}

	// Re-read each installed app verbatim; headers, binaries and footers
	// all travel as opaque bytes.
	planApps := make([]layout.App, 0, len(apps)+1)
	binaries := make([][]byte, 0, len(apps)+1)

	for i, app := range apps {
		data, err := rw.ReadAt(app.Address, int(app.Size))
		if err != nil {
			return err
		}
		binaries = append(binaries, data)

		planApp := layout.App{Index: i, Size: app.Size}
		if _, ok := app.Header.FixedAddressFlash(); ok {
			// An installed fixed app is already at the only address its
			// binary tolerates.
			planApp.FixedFlash = []uint64{app.Address}
		}
		planApps = append(planApps, planApp)
	}

	newApp, candidates, err := newAppFromTab(t, settings)
	if err != nil {
		return err
	}
	newApp.Index = len(apps)
	planApps = append(planApps, *newApp)

	entries, err := layout.Plan(planApps, settings.StartAddress,
		settings.PageSize)
	if err != nil {
		return err
	}

	var blob []byte
	for _, entry := range entries {
		switch {
		case entry.Padding:
			blob = append(blob, tbf.NewPadding(entry.Size)...)

		case entry.Index < len(apps):
			blob = append(blob, binaries[entry.Index]...)

		default:
			data, err := pickCandidate(candidates, entry.Address)
			if err != nil {
				return err
			}
			blob = append(blob, data...)
		}
	}

	util.StatusMessage(util.VERBOSITY_DEFAULT,
		"Installing %d apps (%d bytes) at 0x%x\n",
		len(apps)+1, len(blob), settings.StartAddress)

	return rw.WriteAt(settings.StartAddress, blob)
}

// newAppFromTab turns the tab's binaries for the configured architecture
// into one planner app plus its candidate binaries.
func newAppFromTab(t *tab.Tab, settings *BoardSettings) (*layout.App,
	[]candidateBinary, error) {

	tbfs := t.FilterTbfs(settings.Arch, settings.StartAddress,
		settings.RamStartAddress)
	if len(tbfs) == 0 {
		return nil, nil, util.FmtTockloadError(
			"tab holds no usable binary for architecture %s", settings.Arch)
	}

	app := &layout.App{}
	var candidates []candidateBinary

	for _, file := range tbfs {
		if _, _, _, err := tbf.ParseLengths(file.Data); err != nil {
			return nil, nil, util.PreTockloadError(err,
				"tab binary %s is not a TBF", file.Name)
		}

		cand := candidateBinary{data: file.Data, fixed: file.HasFixed}
		if file.HasFixed {
			cand.address = layout.AlignDownFixed(file.FixedFlash)
		}

		if len(candidates) == 0 {
			app.Size = uint32(len(file.Data))
		} else if uint32(len(file.Data)) != app.Size {
			log.Debugf("skipping %s: size %d differs from %d",
				file.Name, len(file.Data), app.Size)
			continue
		}

		if cand.fixed {
			app.FixedFlash = append(app.FixedFlash, cand.address)
		}
		candidates = append(candidates, cand)
	}

	// A flexible build makes the whole app flexible; fixed candidates are
	// only binding when that is all the tab offers.
	for _, cand := range candidates {
		if !cand.fixed {
			app.FixedFlash = nil
			break
		}
	}

	return app, candidates, nil
}

// pickCandidate matches the planner's chosen address back to a binary.
func pickCandidate(candidates []candidateBinary,
	address uint64) ([]byte, error) {

	// A flexible build can go anywhere the planner chose.
	for _, cand := range candidates {
		if !cand.fixed {
			return cand.data, nil
		}
	}

	for _, cand := range candidates {
		if cand.address == address {
			return cand.data, nil
		}
	}

	return nil, util.FmtTockloadError(
		"planner placed the new app at 0x%x, which no tab binary targets",
		address)
}
