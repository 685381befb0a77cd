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
	"io"
	"os"
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"tockos.org/tockload/bootserial"
	"tockos.org/tockload/flash"
	"tockos.org/tockload/loader"
	"tockos.org/tockload/probe"
	"tockos.org/tockload/util"
)

var (
	OptPort       string
	OptBaudRate   uint
	OptGdbAddr    string
	OptArch       string
	OptAppAddress string
	OptRamAddress string
	OptPageSize   int
	OptEnterBoot  bool
	OptSkipChecks bool
)

func TockloadUsage(cmd *cobra.Command, err error) {
	if err != nil {
		sErr, ok := err.(*util.TockloadError)
		if !ok {
			sErr = util.ChildTockloadError(err)
		}
		log.Debugf("%s", sErr.StackTrace)
		fmt.Fprintf(os.Stderr, "Error: %s\n", sErr.Text)
	}

	if cmd != nil {
		cmd.Help()
	}
	os.Exit(1)
}

// addConnectionFlags registers the flags shared by every device command.
func addConnectionFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&OptPort, "port", "p", "",
		"Serial device of the board's bootloader")
	fs.UintVar(&OptBaudRate, "baud-rate", 115200,
		"Baud rate of the serial connection")
	fs.StringVar(&OptGdbAddr, "gdb-addr", "",
		"host:port of a debug probe's GDB server")
	fs.StringVarP(&OptArch, "arch", "a", "",
		"Architecture string matched against tab binaries")
	fs.StringVar(&OptAppAddress, "app-address", "",
		"Base flash address of the application region")
	fs.StringVar(&OptRamAddress, "ram-address", "",
		"Base address of application RAM")
	fs.IntVar(&OptPageSize, "page-size", 0,
		"Flash page size in bytes")
	fs.BoolVar(&OptEnterBoot, "enter-bootloader", false,
		"Toggle DTR/RTS to force the board into its bootloader")
	fs.BoolVar(&OptSkipChecks, "force", false,
		"Skip board and kernel compatibility checks")
}

// settingsFromOpts layers the board settings: library defaults, then the
// optional ~/.tockload.yml, then explicit flags.
func settingsFromOpts() (*loader.BoardSettings, error) {
	settings := loader.DefaultSettings()

	home, err := homedir.Dir()
	if err == nil {
		v := viper.New()
		v.SetConfigFile(filepath.Join(home, ".tockload.yml"))
		if err := v.ReadInConfig(); err == nil {
			if v.IsSet("arch") {
				settings.Arch = v.GetString("arch")
			}
			if v.IsSet("app-address") {
				addr, err := util.ParseUint64NoOct(v.GetString("app-address"))
				if err != nil {
					return nil, err
				}
				settings.StartAddress = addr
			}
			if v.IsSet("ram-address") {
				addr, err := util.ParseUint64NoOct(v.GetString("ram-address"))
				if err != nil {
					return nil, err
				}
				settings.RamStartAddress = addr
			}
			if v.IsSet("page-size") {
				settings.PageSize = cast.ToUint32(v.Get("page-size"))
			}
		}
	}

	if OptArch != "" {
		settings.Arch = OptArch
	}
	if OptAppAddress != "" {
		addr, err := util.ParseUint64NoOct(OptAppAddress)
		if err != nil {
			return nil, err
		}
		settings.StartAddress = addr
	}
	if OptRamAddress != "" {
		addr, err := util.ParseUint64NoOct(OptRamAddress)
		if err != nil {
			return nil, err
		}
		settings.RamStartAddress = addr
	}
	if OptPageSize > 0 {
		settings.PageSize = uint32(OptPageSize)
	}

	return &settings, nil
}

// openDevice builds the transport the flags describe.  The serial path pings
// the bootloader before handing the connection out; a board that never
// answers is reported up front rather than on the first read.
func openDevice(settings *loader.BoardSettings) (flash.ReadWriter,
	io.Closer, error) {

	switch {
	case OptPort != "" && OptGdbAddr != "":
		return nil, nil, util.NewTockloadError(
			"--port and --gdb-addr are mutually exclusive")

	case OptPort != "":
		port, err := bootserial.Open(OptPort, OptBaudRate)
		if err != nil {
			return nil, nil, err
		}

		if OptEnterBoot {
			if err := port.ToggleBootloaderEntry(); err != nil {
				port.Close()
				return nil, nil, err
			}
		}

		if err := port.Ping(); err != nil {
			port.Close()
			return nil, nil, err
		}

		return &flash.SerialFlash{
			Port:     port,
			PageSize: settings.PageSize,
		}, port, nil

	case OptGdbAddr != "":
		session, err := probe.Dial(OptGdbAddr)
		if err != nil {
			return nil, nil, err
		}
		return &flash.ProbeFlash{Session: session}, session, nil
	}

	return nil, nil, util.NewTockloadError(
		"no connection specified; use --port or --gdb-addr")
}
