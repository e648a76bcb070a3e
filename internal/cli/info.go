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
	"context"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/dbt-labs/xdbc"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type infoField struct {
	name string
	get  func(context.Context, xdbc.DatabaseInfo) (string, error)
}

var infoFields = []infoField{
	{"vendor_name", xdbc.VendorName},
	{"vendor_version", xdbc.VendorVersion},
	{"driver_name", xdbc.DriverName},
	{"driver_version", xdbc.DriverVersion},
}

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show vendor and driver information for the selected profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return a.withDatabase(ctx, func(db xdbc.Database) error {
				values, err := gatherInfo(ctx, db)
				if err != nil {
					return err
				}

				format := a.cfg.Output
				if format == "json" {
					obj := map[string]string{"backend": db.Backend().String()}
					for i, f := range infoFields {
						obj[f.name] = values[i]
					}
					return writeJSON(cmd.OutOrStdout(), obj)
				}

				res := &result{columns: []string{"property", "value"}}
				res.rows = append(res.rows, []cell{textCell("backend"), textCell(db.Backend().String())})
				for i, f := range infoFields {
					res.rows = append(res.rows, []cell{textCell(f.name), textCell(values[i])})
				}
				return render(cmd.OutOrStdout(), format, res)
			})
		},
	}
}

// gatherInfo reads every info field concurrently. Codes the driver does not
// report are left empty.
func gatherInfo(ctx context.Context, db xdbc.DatabaseInfo) ([]string, error) {
	values := make([]string, len(infoFields))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range infoFields {
		g.Go(func() error {
			v, err := f.get(gctx, db)
			if err == nil {
				values[i] = v
				return nil
			}
			switch xdbc.StatusOf(err) {
			case adbc.StatusNotFound, adbc.StatusNotImplemented:
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}
