// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package cli

import (
	"slices"

	"github.com/spf13/cobra"
)

func newProfilesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names := make([]string, 0, len(a.cfg.Profiles))
			for name := range a.cfg.Profiles {
				names = append(names, name)
			}
			slices.Sort(names)

			res := &result{columns: []string{"name", "backend", "selected"}}
			for _, name := range names {
				selected := name == a.cfg.Profile
				res.rows = append(res.rows, []cell{
					textCell(name),
					textCell(a.cfg.Profiles[name].Backend),
					{text: boolMark(selected), value: selected},
				})
			}
			return render(cmd.OutOrStdout(), a.cfg.Output, res)
		},
	}
}

func boolMark(b bool) string {
	if b {
		return "*"
	}
	return ""
}

func newFingerprintCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint [profile]",
		Short: "Print the configuration fingerprint of a profile",
		Long: `Print the fingerprint identifying the database a profile configures.
Profiles with equal fingerprints share one database handle.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if len(args) == 1 {
				cfg.Profile = args[0]
			}
			profile, err := cfg.Selected()
			if err != nil {
				return err
			}
			b, err := profile.Builder()
			if err != nil {
				return err
			}

			fp := b.Fingerprint().String()
			if a.cfg.Output == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"profile":     cfg.Profile,
					"fingerprint": fp,
					"builder":     b.String(),
				})
			}
			res := &result{
				columns: []string{"profile", "fingerprint", "builder"},
				rows:    [][]cell{{textCell(cfg.Profile), textCell(fp), textCell(b.String())}},
			}
			return render(cmd.OutOrStdout(), a.cfg.Output, res)
		},
	}
}
