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
	"time"

	"golang.org/x/sys/unix"

	"tockos.org/tockload/util"
)

// ToggleBootloaderEntry performs the DTR/RTS dance some boards use to force
// the target into bootloader mode: DTR and RTS high, DTR low after 100 ms,
// RTS low after a further 500 ms.
func (p *Port) ToggleBootloaderEntry() error {
	f, ok := p.rwc.(interface{ Fd() uintptr })
	if !ok {
		return util.NewTockloadError(
			"serial stream does not expose modem control lines")
	}
	fd := int(f.Fd())

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCMBIS,
		unix.TIOCM_DTR|unix.TIOCM_RTS); err != nil {

		return util.ChildTockloadError(err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCMBIC,
		unix.TIOCM_DTR); err != nil {

		return util.ChildTockloadError(err)
	}

	time.Sleep(500 * time.Millisecond)

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCMBIC,
		unix.TIOCM_RTS); err != nil {

		return util.ChildTockloadError(err)
	}

	return nil
}
