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

package xdbc

import (
	"context"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// InfoValue reads the reply to a GetInfo call made for a single code. The
// first row of the first batch must carry the requested code; its union
// value is returned as a one-element array. Anything else means the driver
// broke the GetInfo contract and is reported as StatusInternal.
func InfoValue(rdr array.RecordReader, code adbc.InfoCode) (arrow.Array, error) {
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil {
			return nil, err
		}
		return nil, Errorf(adbc.StatusInternal, "failed to get info")
	}

	rec := rdr.Record()
	if rec.NumCols() < 2 || rec.NumRows() < 1 {
		return nil, Errorf(adbc.StatusInternal, "failed to get info")
	}
	names, ok := rec.Column(0).(*array.Uint32)
	if !ok || names.IsNull(0) || adbc.InfoCode(names.Value(0)) != code {
		return nil, Errorf(adbc.StatusInternal, "invalid get info reply")
	}
	values, ok := rec.Column(1).(array.Union)
	if !ok {
		return nil, Errorf(adbc.StatusInternal, "invalid get info reply")
	}
	return unionValue(values, 0), nil
}

// unionValue extracts row i of a union array as a one-element array of the
// selected child's type.
func unionValue(u array.Union, i int) arrow.Array {
	child := u.Field(u.ChildID(i))
	offset := i
	if dense, ok := u.(*array.DenseUnion); ok {
		offset = int(dense.ValueOffset(i))
	}
	return array.NewSlice(child, int64(offset), int64(offset+1))
}

// ConnectionInfo issues GetInfo for one code on an open connection.
func ConnectionInfo(ctx context.Context, conn Connection, code adbc.InfoCode) (arrow.Array, error) {
	rdr, err := conn.GetInfo(ctx, []adbc.InfoCode{code})
	if err != nil {
		return nil, err
	}
	return InfoValue(rdr, code)
}

func infoString(ctx context.Context, db DatabaseInfo, code adbc.InfoCode) (string, error) {
	arr, err := db.GetInfo(ctx, code)
	if err != nil {
		return "", err
	}
	defer arr.Release()
	str, ok := arr.(*array.String)
	if !ok || str.Len() != 1 {
		return "", Errorf(adbc.StatusInternal, "info code %d: expected a string value, got %s", uint32(code), arr.DataType())
	}
	return str.Value(0), nil
}

func infoBool(ctx context.Context, db DatabaseInfo, code adbc.InfoCode) (bool, error) {
	arr, err := db.GetInfo(ctx, code)
	if err != nil {
		return false, err
	}
	defer arr.Release()
	b, ok := arr.(*array.Boolean)
	if !ok || b.Len() != 1 {
		return false, Errorf(adbc.StatusInternal, "info code %d: expected a boolean value, got %s", uint32(code), arr.DataType())
	}
	return b.Value(0), nil
}

func infoInt(ctx context.Context, db DatabaseInfo, code adbc.InfoCode) (int64, error) {
	arr, err := db.GetInfo(ctx, code)
	if err != nil {
		return 0, err
	}
	defer arr.Release()
	n, ok := arr.(*array.Int64)
	if !ok || n.Len() != 1 {
		return 0, Errorf(adbc.StatusInternal, "info code %d: expected an int64 value, got %s", uint32(code), arr.DataType())
	}
	return n.Value(0), nil
}

func VendorName(ctx context.Context, db DatabaseInfo) (string, error) {
	return infoString(ctx, db, adbc.InfoVendorName)
}

func VendorVersion(ctx context.Context, db DatabaseInfo) (string, error) {
	return infoString(ctx, db, adbc.InfoVendorVersion)
}

func VendorArrowVersion(ctx context.Context, db DatabaseInfo) (string, error) {
	return infoString(ctx, db, adbc.InfoVendorArrowVersion)
}

// VendorSql reports whether the database accepts SQL queries.
func VendorSql(ctx context.Context, db DatabaseInfo) (bool, error) {
	return infoBool(ctx, db, adbc.InfoVendorSql)
}

// VendorSubstrait reports whether the database accepts Substrait plans.
func VendorSubstrait(ctx context.Context, db DatabaseInfo) (bool, error) {
	return infoBool(ctx, db, adbc.InfoVendorSubstrait)
}

func DriverName(ctx context.Context, db DatabaseInfo) (string, error) {
	return infoString(ctx, db, adbc.InfoDriverName)
}

func DriverVersion(ctx context.Context, db DatabaseInfo) (string, error) {
	return infoString(ctx, db, adbc.InfoDriverVersion)
}

func DriverArrowVersion(ctx context.Context, db DatabaseInfo) (string, error) {
	return infoString(ctx, db, adbc.InfoDriverArrowVersion)
}

// DriverADBCVersion returns the ADBC API version implemented by the driver,
// e.g. adbc.AdbcVersion1_1_0.
func DriverADBCVersion(ctx context.Context, db DatabaseInfo) (int64, error) {
	return infoInt(ctx, db, adbc.InfoDriverADBCVersion)
}
