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
	"fmt"
	"io"
	"strings"

	"github.com/dbt-labs/xdbc"
	"github.com/spf13/cobra"
)

func newQueryCommand(a *app) *cobra.Command {
	var update, schemaOnly bool

	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL statement against the selected profile",
		Long: `Run a SQL statement and print its result. Pass "-" to read the
statement from standard input.`,
		Example: `  xdbc query "SELECT 1"
  xdbc query --update "DELETE FROM events WHERE day < '2024-01-01'"
  xdbc -p warehouse -o json query --schema "SELECT * FROM orders"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			if query == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading query: %w", err)
				}
				query = string(b)
			}
			if strings.TrimSpace(query) == "" {
				return fmt.Errorf("empty query")
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			format := a.cfg.Output

			return a.withDatabase(ctx, func(db xdbc.Database) error {
				cnxn, err := db.NewConnection(ctx)
				if err != nil {
					return err
				}
				defer a.closeQuietly("connection", cnxn)

				stmt, err := cnxn.NewStatement(ctx)
				if err != nil {
					return err
				}
				defer a.closeQuietly("statement", stmt)

				if err := stmt.SetSqlQuery(query); err != nil {
					return err
				}

				if update {
					n, err := stmt.ExecuteUpdate(ctx)
					if err != nil {
						return err
					}
					if format == "json" {
						return writeJSON(out, map[string]int64{"rows_affected": n})
					}
					if n < 0 {
						_, _ = fmt.Fprintln(out, "OK")
					} else {
						_, _ = fmt.Fprintf(out, "%d rows affected\n", n)
					}
					return nil
				}

				rdr, err := stmt.ExecuteQuery(ctx)
				if err != nil {
					return err
				}
				defer rdr.Release()

				if schemaOnly {
					return renderSchema(out, format, rdr.Schema())
				}
				res, err := collect(rdr)
				if err != nil {
					return err
				}
				return render(out, format, res)
			})
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "execute as an update and print the affected row count")
	cmd.Flags().BoolVar(&schemaOnly, "schema", false, "print the result columns instead of the rows")
	cmd.MarkFlagsMutuallyExclusive("update", "schema")
	return cmd
}
