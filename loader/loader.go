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
	"tockos.org/tockload/tab"
	"tockos.org/tockload/util"
)

// List returns the application inventory.
func List(rw flash.ReadWriter,
	settings *BoardSettings) ([]*attributes.AppAttributes, error) {

	return attributes.ReadInstalledApps(rw, settings.StartAddress)
}

// Info returns the board description alongside the application inventory.
func Info(rw flash.ReadWriter,
	settings *BoardSettings) (*attributes.GeneralAttributes, error) {

	system, err := attributes.ReadSystemAttributes(rw)
	if err != nil {
		return nil, err
	}

	apps, err := attributes.ReadInstalledApps(rw, settings.StartAddress)
	if err != nil {
		return nil, err
	}

	return attributes.NewGeneralAttributes(system, apps), nil
}

// EraseApps empties the application chain.  A single zero byte at the start
// address makes the first header unparseable, which is all "empty" means.
func EraseApps(rw flash.ReadWriter, settings *BoardSettings) error {
	return rw.WriteAt(settings.StartAddress, []byte{0x00})
}

// CheckCompatibility verifies a tab against the board description.  A board
// mismatch is fatal; a kernel version mismatch is only advisory.
func CheckCompatibility(rw flash.ReadWriter, settings *BoardSettings,
	t *tab.Tab) error {

	system, err := attributes.ReadSystemAttributes(rw)
	if err != nil {
		return err
	}

	if system.Board != "" && !t.IsCompatibleWithBoard(system.Board) {
		return util.FmtTockloadError(
			"tab is restricted to boards %v; connected board is %s",
			t.Metadata().OnlyForBoards, system.Board)
	}

	if !t.KernelVersionSupported(system.KernelVersion) {
		log.Warnf("tab wants kernel version %s; board runs %d",
			t.Metadata().MinimumKernelVersion, system.KernelVersion)
	}

	return nil
}
