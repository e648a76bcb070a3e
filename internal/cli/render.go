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
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dbt-labs/xdbc/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const nullText = "NULL"

type cell struct {
	text  string
	value any
	null  bool
}

func textCell(s string) cell { return cell{text: s, value: s} }

// result is a fully read query result.
type result struct {
	columns []string
	rows    [][]cell
}

// collect reads every batch of rdr.
func collect(rdr array.RecordReader) (*result, error) {
	schema := rdr.Schema()
	res := &result{columns: make([]string, schema.NumFields())}
	for i, f := range schema.Fields() {
		res.columns[i] = f.Name
	}

	for rdr.Next() {
		rec := rdr.RecordBatch()
		for i := 0; i < int(rec.NumRows()); i++ {
			row := make([]cell, rec.NumCols())
			for j, col := range rec.Columns() {
				row[j] = arrayCell(col, i)
			}
			res.rows = append(res.rows, row)
		}
	}
	return res, rdr.Err()
}

func arrayCell(arr arrow.Array, i int) cell {
	if arr.IsNull(i) {
		return cell{text: nullText, null: true}
	}
	return cell{text: arr.ValueStr(i), value: arr.GetOneForMarshal(i)}
}

func render(w io.Writer, format string, res *result) error {
	if format == "json" {
		out := make([]map[string]any, len(res.rows))
		for i, row := range res.rows {
			obj := make(map[string]any, len(row))
			for j, c := range row {
				obj[res.columns[j]] = c.value
			}
			out[i] = obj
		}
		return writeJSON(w, out)
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	t.SetStyle(style)

	header := make(table.Row, len(res.columns))
	for i, c := range res.columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, row := range res.rows {
		r := make(table.Row, len(row))
		for i, c := range row {
			if c.null && format == "csv" {
				r[i] = ""
			} else {
				r[i] = c.text
			}
		}
		t.AppendRow(r)
	}

	switch format {
	case "csv":
		t.RenderCSV()
	case "markdown":
		t.RenderMarkdown()
	default:
		if len(res.rows) == 0 {
			_, _ = fmt.Fprintln(w, "(0 rows)")
			return nil
		}
		t.Render()
		_, _ = fmt.Fprintf(w, "(%d rows)\n", len(res.rows))
	}
	return nil
}

func renderSchema(w io.Writer, format string, schema *arrow.Schema) error {
	cols := utils.DescribeSchema(schema)
	if format == "json" {
		return writeJSON(w, cols)
	}
	res := &result{columns: []string{"name", "arrow_type", "database_type", "nullable"}}
	for _, c := range cols {
		res.rows = append(res.rows, []cell{
			textCell(c.Name),
			textCell(c.ArrowType),
			textCell(c.DatabaseType),
			textCell(fmt.Sprint(c.Nullable)),
		})
	}
	return render(w, format, res)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
