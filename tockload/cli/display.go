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

package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"tockos.org/tockload/attributes"
)

// PrintAppTable renders the inventory the way `list` reports it.
func PrintAppTable(apps []*attributes.AppAttributes) {
	if len(apps) == 0 {
		fmt.Println("No apps installed.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Version", "Address", "Size",
		"Enabled", "Sticky", "Footers"})

	for _, app := range apps {
		table.Append([]string{
			app.Name(),
			strconv.FormatUint(uint64(app.Header.BinaryVersion()), 10),
			fmt.Sprintf("0x%x", app.Address),
			strconv.FormatUint(uint64(app.Size), 10),
			strconv.FormatBool(app.Header.Enabled()),
			strconv.FormatBool(app.Header.Sticky()),
			strconv.Itoa(len(app.Footers)),
		})
	}

	table.Render()
}

// PrintInfo renders the board description followed by the inventory.
func PrintInfo(info *attributes.GeneralAttributes) {
	system := info.System

	fmt.Printf("Board:              %s\n", system.Board)
	fmt.Printf("Architecture:       %s\n", system.Arch)
	if system.AppAddrValid {
		fmt.Printf("App address:        0x%x\n", system.AppAddr)
	}
	fmt.Printf("Boot hash:          %s\n", system.BootHash)
	fmt.Printf("Bootloader version: %s\n", system.BootloaderVersion)
	fmt.Printf("Kernel version:     %d\n", system.KernelVersion)
	fmt.Printf("Sentinel:           %s\n", system.Sentinel)
	fmt.Printf("Kernel binary:      0x%x (%d bytes)\n",
		system.KernelBinStart, system.KernelBinLen)
	fmt.Printf("App memory:         0x%x (%d bytes)\n",
		system.AppMemStart, system.AppMemLen)

	for _, attr := range system.Extra {
		fmt.Printf("%-19s %s\n", attr.Key+":", attr.Value)
	}

	fmt.Println()
	PrintAppTable(info.Apps)
}
