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

package tab

import (
	"io"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"tockos.org/tockload/util"
)

// Metadata is the parsed metadata.toml of a tab.
type Metadata struct {
	TabVersion           int
	MinimumKernelVersion string
	OnlyForBoards        []string
}

func parseMetadata(r io.Reader) (*Metadata, error) {
	v := viper.New()
	v.SetConfigType("toml")

	if err := v.ReadConfig(r); err != nil {
		return nil, util.FmtChildTockloadError(err,
			"Failed to parse tab metadata: %s", err.Error())
	}

	m := &Metadata{
		TabVersion:           v.GetInt("tab-version"),
		MinimumKernelVersion: v.GetString("minimum-tock-kernel-version"),
	}

	// only-for-boards may be a TOML array or a comma separated string.
	raw := v.Get("only-for-boards")
	switch raw.(type) {
	case nil:
	case string:
		for _, board := range strings.Split(cast.ToString(raw), ",") {
			board = strings.TrimSpace(board)
			if board != "" {
				m.OnlyForBoards = append(m.OnlyForBoards, board)
			}
		}
	default:
		m.OnlyForBoards = cast.ToStringSlice(raw)
	}

	return m, nil
}
