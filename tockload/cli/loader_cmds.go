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
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tockos.org/tockload/flash"
	"tockos.org/tockload/loader"
	"tockos.org/tockload/tab"
	"tockos.org/tockload/util"
)

// withDevice opens the configured connection, runs fn, and closes the
// connection on every path.
func withDevice(cmd *cobra.Command,
	fn func(rw flash.ReadWriter, settings *loader.BoardSettings) error) {

	settings, err := settingsFromOpts()
	if err != nil {
		TockloadUsage(cmd, err)
	}

	rw, closer, err := openDevice(settings)
	if err != nil {
		TockloadUsage(nil, err)
	}
	defer closer.Close()

	if err := fn(rw, settings); err != nil {
		closer.Close()
		TockloadUsage(nil, err)
	}
}

func runListCmd(cmd *cobra.Command, args []string) {
	withDevice(cmd, func(rw flash.ReadWriter,
		settings *loader.BoardSettings) error {

		apps, err := loader.List(rw, settings)
		if err != nil {
			return err
		}

		PrintAppTable(apps)
		return nil
	})
}

func runInfoCmd(cmd *cobra.Command, args []string) {
	withDevice(cmd, func(rw flash.ReadWriter,
		settings *loader.BoardSettings) error {

		info, err := loader.Info(rw, settings)
		if err != nil {
			return err
		}

		PrintInfo(info)
		return nil
	})
}

func runInstallCmd(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		TockloadUsage(cmd, nil)
	}

	archive, err := tab.Open(args[0])
	if err != nil {
		TockloadUsage(nil, err)
	}

	withDevice(cmd, func(rw flash.ReadWriter,
		settings *loader.BoardSettings) error {

		if OptSkipChecks {
			log.Debugf("skipping board compatibility checks")
		} else if err := loader.CheckCompatibility(rw, settings,
			archive); err != nil {

			return util.PreTockloadError(err,
				"Compatibility check failed (--force to override)")
		}

		if err := loader.Install(rw, settings, archive); err != nil {
			return err
		}

		util.StatusMessage(util.VERBOSITY_DEFAULT, "Install complete\n")
		return nil
	})
}

func runEraseAppsCmd(cmd *cobra.Command, args []string) {
	withDevice(cmd, func(rw flash.ReadWriter,
		settings *loader.BoardSettings) error {

		if err := loader.EraseApps(rw, settings); err != nil {
			return err
		}

		util.StatusMessage(util.VERBOSITY_DEFAULT,
			"Erased all apps at 0x%x\n", settings.StartAddress)
		return nil
	})
}

func uninstallName(cmd *cobra.Command, args []string, all bool) string {
	if all {
		return ""
	}
	if len(args) < 1 {
		TockloadUsage(cmd, util.NewTockloadError(
			"specify an app name, or --all for every app"))
	}
	return args[0]
}

func runUninstallCmd(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	name := uninstallName(cmd, args, all)

	withDevice(cmd, func(rw flash.ReadWriter,
		settings *loader.BoardSettings) error {

		if err := loader.Uninstall(rw, settings, name); err != nil {
			return err
		}

		util.StatusMessage(util.VERBOSITY_DEFAULT, "Uninstall complete\n")
		return nil
	})
}

func runDisableCmd(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")
	name := uninstallName(cmd, args, all)

	withDevice(cmd, func(rw flash.ReadWriter,
		settings *loader.BoardSettings) error {

		if err := loader.Disable(rw, settings, name); err != nil {
			return err
		}

		util.StatusMessage(util.VERBOSITY_DEFAULT, "Disable complete\n")
		return nil
	})
}

func AddLoaderCommands(cmd *cobra.Command) {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Lists the apps installed on the board",
		Run:   runListCmd,
	}
	addConnectionFlags(listCmd.PersistentFlags())
	cmd.AddCommand(listCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Shows the board attributes and installed apps",
		Run:   runInfoCmd,
	}
	addConnectionFlags(infoCmd.PersistentFlags())
	cmd.AddCommand(infoCmd)

	installCmd := &cobra.Command{
		Use:   "install <tab-file>",
		Short: "Installs an app from a tab archive",
		Run:   runInstallCmd,
	}
	addConnectionFlags(installCmd.PersistentFlags())
	cmd.AddCommand(installCmd)

	eraseCmd := &cobra.Command{
		Use:   "erase-apps",
		Short: "Erases all apps from the board",
		Run:   runEraseAppsCmd,
	}
	addConnectionFlags(eraseCmd.PersistentFlags())
	cmd.AddCommand(eraseCmd)

	uninstallCmd := &cobra.Command{
		Use:   "uninstall [app-name]",
		Short: "Removes an app from the board (probe connections only)",
		Run:   runUninstallCmd,
	}
	addConnectionFlags(uninstallCmd.PersistentFlags())
	uninstallCmd.PersistentFlags().Bool("all", false, "Remove every app")
	cmd.AddCommand(uninstallCmd)

	disableCmd := &cobra.Command{
		Use:   "disable [app-name]",
		Short: "Disables an app without removing it (probe connections only)",
		Run:   runDisableCmd,
	}
	addConnectionFlags(disableCmd.PersistentFlags())
	disableCmd.PersistentFlags().Bool("all", false, "Disable every app")
	cmd.AddCommand(disableCmd)
}
