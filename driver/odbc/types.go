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

package odbc

import (
	"database/sql"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow"
)

// MetadataKeyDataType is the field metadata key holding the SQL type name
// reported by the driver for a result column.
const MetadataKeyDataType = "ODBC:data_type"

var timeType = reflect.TypeOf(time.Time{})

// normalizeTypeName upper-cases a driver type name and strips any length or
// precision suffix. The second result reports an UNSIGNED qualifier.
func normalizeTypeName(name string) (string, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if i := strings.IndexByte(name, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(name[i:], ')'); j >= 0 {
			rest = name[i+j+1:]
		}
		name = strings.TrimSpace(name[:i] + rest)
	}
	if base, ok := strings.CutSuffix(name, " UNSIGNED"); ok {
		return strings.TrimSpace(base), true
	}
	return name, false
}

func arrowTypeForName(name string, unsigned bool) arrow.DataType {
	switch name {
	case "BIT", "BOOL", "BOOLEAN":
		return arrow.FixedWidthTypes.Boolean
	case "TINYINT", "SMALLINT", "INT2":
		if unsigned {
			return arrow.PrimitiveTypes.Uint16
		}
		return arrow.PrimitiveTypes.Int16
	case "INT", "INTEGER", "INT4":
		if unsigned {
			return arrow.PrimitiveTypes.Uint32
		}
		return arrow.PrimitiveTypes.Int32
	case "BIGINT", "INT8":
		if unsigned {
			return arrow.PrimitiveTypes.Uint64
		}
		return arrow.PrimitiveTypes.Int64
	case "REAL", "FLOAT4":
		return arrow.PrimitiveTypes.Float32
	case "DOUBLE", "DOUBLE PRECISION", "FLOAT", "FLOAT8":
		return arrow.PrimitiveTypes.Float64
	case "CHAR", "VARCHAR", "TEXT", "LONGVARCHAR", "STRING",
		"WCHAR", "WVARCHAR", "NCHAR", "NVARCHAR", "WLONGVARCHAR":
		return arrow.BinaryTypes.String
	case "BINARY", "VARBINARY", "BLOB", "LONGVARBINARY":
		return arrow.BinaryTypes.Binary
	case "DATE":
		return arrow.FixedWidthTypes.Date32
	case "TIMESTAMP", "DATETIME":
		return arrow.FixedWidthTypes.Timestamp_us
	}
	return nil
}

// typeNameForScanType names the SQL type of a column the driver did not
// name, from the Go type it scans into.
func typeNameForScanType(t reflect.Type) (string, bool) {
	if t == nil {
		// no value to look at, or it was NULL
		return "VARCHAR", false
	}
	if t == timeType {
		return "TIMESTAMP", false
	}
	switch t.Kind() {
	case reflect.Bool:
		return "BIT", false
	case reflect.Int8, reflect.Int16:
		return "SMALLINT", false
	case reflect.Uint8, reflect.Uint16:
		return "SMALLINT", true
	case reflect.Int32:
		return "INTEGER", false
	case reflect.Uint32:
		return "INTEGER", true
	case reflect.Int, reflect.Int64:
		return "BIGINT", false
	case reflect.Uint, reflect.Uint64:
		return "BIGINT", true
	case reflect.Float32:
		return "REAL", false
	case reflect.Float64:
		return "DOUBLE", false
	case reflect.String:
		return "VARCHAR", false
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "VARBINARY", false
		}
	}
	return "", false
}

// typeNameForValue names the SQL type of a column the driver did not
// describe at all, from a value read from it. Text comes back as bytes from
// most drivers, so valid UTF-8 is taken as character data.
func typeNameForValue(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return typeNameForScanType(nil)
	case []byte:
		if utf8.Valid(v) {
			return "VARCHAR", false
		}
		return "VARBINARY", false
	}
	if name, unsigned := typeNameForScanType(reflect.TypeOf(v)); name != "" {
		return name, unsigned
	}
	return "VARCHAR", false
}

// described reports whether the driver gave a type for the column, either a
// type name or a concrete scan type.
func described(ct *sql.ColumnType) bool {
	if ct.DatabaseTypeName() != "" {
		return true
	}
	t := ct.ScanType()
	return t != nil && t.Kind() != reflect.Interface
}

// fieldForColumn derives the Arrow field of a result column. Columns of
// types without a mapping are rejected with NotImplemented. sample is the
// column's value in the first row, or nil, and is only consulted when the
// driver did not describe the column.
func fieldForColumn(ct *sql.ColumnType, sample any) (arrow.Field, error) {
	name, unsigned := normalizeTypeName(ct.DatabaseTypeName())
	dt := arrowTypeForName(name, unsigned)
	if dt == nil && name == "" {
		if described(ct) {
			name, unsigned = typeNameForScanType(ct.ScanType())
		} else {
			name, unsigned = typeNameForValue(sample)
		}
		dt = arrowTypeForName(name, unsigned)
	}
	if dt == nil {
		return arrow.Field{}, errHelper.NotImplemented("column '%s': unsupported ODBC data type '%s'", ct.Name(), ct.DatabaseTypeName())
	}
	if unsigned {
		name += " UNSIGNED"
	}

	nullable, ok := ct.Nullable()
	if !ok {
		nullable = true
	}
	return arrow.Field{
		Name:     ct.Name(),
		Type:     dt,
		Nullable: nullable,
		Metadata: arrow.NewMetadata([]string{MetadataKeyDataType}, []string{name}),
	}, nil
}

// needsSample reports whether any column can only be typed from its values.
func needsSample(cols []*sql.ColumnType) bool {
	for _, ct := range cols {
		if !described(ct) {
			return true
		}
	}
	return false
}

// schemaForColumns builds the result schema. sample holds the first row of
// the result, or is nil when none was read.
func schemaForColumns(cols []*sql.ColumnType, sample []any) (*arrow.Schema, error) {
	fields := make([]arrow.Field, len(cols))
	for i, ct := range cols {
		var v any
		if i < len(sample) {
			v = sample[i]
		}
		f, err := fieldForColumn(ct, v)
		if err != nil {
			return nil, err
		}
		fields[i] = f
	}
	return arrow.NewSchema(fields, nil), nil
}
