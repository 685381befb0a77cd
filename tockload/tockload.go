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

package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tockos.org/tockload/tockload/cli"
	"tockos.org/tockload/util"
)

var tockloadVersion = "0.1.0"

func main() {
	tockloadHelpText := "tockload installs, inspects and removes " +
		"applications on boards running the Tock operating system."

	logLevelStr := ""
	tockloadCmd := &cobra.Command{
		Use:   "tockload",
		Short: "tockload manages the applications installed on a Tock board",
		Long:  tockloadHelpText,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, err := log.ParseLevel(logLevelStr)
			if err != nil {
				cli.TockloadUsage(nil, util.ChildTockloadError(err))
			}

			if err := util.Init(logLevel, "",
				util.VERBOSITY_DEFAULT); err != nil {

				cli.TockloadUsage(nil, err)
			}
		},

		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	tockloadCmd.PersistentFlags().StringVarP(&logLevelStr, "loglevel", "l",
		"WARN", "Log level")

	versHelpText := `Display the tockload version number`
	versHelpEx := "  tockload version"
	versCmd := &cobra.Command{
		Use:     "version",
		Short:   "Display the tockload version number",
		Long:    versHelpText,
		Example: versHelpEx,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s\n", tockloadVersion)
		},
	}
	tockloadCmd.AddCommand(versCmd)

	cli.AddLoaderCommands(tockloadCmd)

	tockloadCmd.Execute()
}
