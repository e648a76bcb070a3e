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

package driverbase_test

import (
	"testing"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/driver/internal/driverbase"
	"github.com/stretchr/testify/require"
)

func TestDriverInfo(t *testing.T) {
	driverInfo := driverbase.DefaultDriverInfo("test")
	require.Equal(t, "test", driverInfo.GetName())

	require.ElementsMatch(t, []adbc.InfoCode{
		adbc.InfoVendorName,
		adbc.InfoVendorVersion,
		adbc.InfoVendorArrowVersion,
		adbc.InfoVendorSql,
		adbc.InfoVendorSubstrait,
		adbc.InfoDriverName,
		adbc.InfoDriverVersion,
		adbc.InfoDriverArrowVersion,
		adbc.InfoDriverADBCVersion,
	}, driverInfo.InfoSupportedCodes())

	driverName, ok := driverInfo.GetInfoForInfoCode(adbc.InfoDriverName)
	require.True(t, ok)
	require.Equal(t, "xdbc test Driver - Go", driverName)

	require.NoError(t, driverInfo.RegisterInfoCode(adbc.InfoVendorVersion, "8.1"))
	require.Error(t, driverInfo.RegisterInfoCode(adbc.InfoVendorVersion, 8))
	require.Error(t, driverInfo.RegisterInfoCode(adbc.InfoVendorSql, "yes"))

	require.NoError(t, driverInfo.RegisterInfoCode(adbc.InfoCode(10_001), "vendor specific"))
	require.Error(t, driverInfo.RegisterInfoCode(adbc.InfoCode(10_002), 1.5))
	require.Contains(t, driverInfo.InfoSupportedCodes(), adbc.InfoCode(10_001))
}

func TestDriverInfoGetInfo(t *testing.T) {
	alloc := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer alloc.AssertSize(t, 0)

	driverInfo := driverbase.DefaultDriverInfo("MockDB")
	require.NoError(t, driverInfo.RegisterInfoCode(adbc.InfoVendorVersion, "8.1"))

	rdr, err := driverInfo.GetInfo(alloc, []adbc.InfoCode{adbc.InfoVendorName})
	require.NoError(t, err)
	value, err := xdbc.InfoValue(rdr, adbc.InfoVendorName)
	require.NoError(t, err)
	require.Equal(t, "MockDB", value.(*array.String).Value(0))
	value.Release()

	rdr, err = driverInfo.GetInfo(alloc, nil)
	require.NoError(t, err)
	defer rdr.Release()
	require.True(t, rdr.Next())
	require.EqualValues(t, len(driverInfo.InfoSupportedCodes()), rdr.Record().NumRows())
	require.False(t, rdr.Next())
}
