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

package attributes

import (
	log "github.com/sirupsen/logrus"

	"tockos.org/tockload/flash"
	"tockos.org/tockload/tbf"
)

// Footer is one credentials footer of an installed application.
type Footer struct {
	Credentials *tbf.Credentials

	// Size is the footer payload size; the on-device footprint is Size plus
	// the 4-byte TLV prefix.
	Size uint32
}

// AppAttributes describes one installed application: where it sits in flash,
// its parsed header, and its footers.  Constructed by the inventory walk and
// never mutated afterwards.
type AppAttributes struct {
	Address uint64
	Size    uint32
	Header  *tbf.Header
	Footers []Footer
}

// Name returns the package name, or the empty string for unnamed apps.
func (a *AppAttributes) Name() string {
	name, _ := a.Header.PackageName()
	return name
}

// ReadInstalledApps walks the application chain starting at the given
// address.  Applications are laid out back to back; the walk follows each
// header's total length to the next one and stops at the first region that
// does not parse, returning everything collected up to that point.  Padding
// regions are stepped over and do not appear in the result.
func ReadInstalledApps(rw flash.ReadWriter,
	startAddress uint64) ([]*AppAttributes, error) {

	var apps []*AppAttributes
	appAddr := startAddress

	for {
		prologue, err := rw.ReadAt(appAddr, 8)
		if err != nil {
			return nil, err
		}

		version, headerSize, totalSize, err := tbf.ParseLengths(prologue)
		if err != nil {
			// End of the chain.
			break
		}

		log.Debugf("app #%d: TBF version %d, header size %d, total size %d",
			len(apps), version, headerSize, totalSize)

		headerData, err := rw.ReadAt(appAddr, int(headerSize))
		if err != nil {
			return nil, err
		}

		header, err := tbf.ParseHeader(headerData, version)
		if err != nil {
			// The region past the last valid app is unprogrammed flash;
			// whatever we have so far is the inventory.
			log.Debugf("stopping inventory walk at 0x%x: %s",
				appAddr, err.Error())
			break
		}

		if !header.IsApp() {
			// Padding between apps; step over it.
			appAddr += uint64(totalSize)
			continue
		}

		footers, err := readFooters(rw, appAddr, header)
		if err != nil {
			return nil, err
		}

		apps = append(apps, &AppAttributes{
			Address: appAddr,
			Size:    totalSize,
			Header:  header,
			Footers: footers,
		})

		appAddr += uint64(totalSize)
	}

	return apps, nil
}

// readFooters collects the footer chain between the end of the application
// binary and the end of the app.  Footers are self-sized; each advance is
// the payload size plus the 4-byte TLV prefix.
func readFooters(rw flash.ReadWriter, appAddr uint64,
	header *tbf.Header) ([]Footer, error) {

	binaryEnd := header.BinaryEnd()
	totalSize := header.TotalSize()

	var footers []Footer
	footerOffset := binaryEnd

	for footerOffset < totalSize {
		remaining := totalSize - footerOffset

		data, err := rw.ReadAt(appAddr+uint64(footerOffset), int(remaining))
		if err != nil {
			return nil, err
		}

		creds, size, err := tbf.ParseFooter(data)
		if err != nil {
			return nil, err
		}

		footers = append(footers, Footer{Credentials: creds, Size: size})
		footerOffset += size + tbf.TBF_TLV_SIZE
	}

	return footers, nil
}
