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

//go:build cgo

package drivermgr_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/drivermgr"
	"github.com/dbt-labs/xdbc/validation"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

var sqliteBackend = xdbc.Generic("adbc_driver_sqlite", "")

type sqliteQuirks struct {
	mgr *drivermgr.Manager
}

func (q sqliteQuirks) SetupDatabase(t *testing.T) xdbc.Database {
	uri := "file:" + filepath.Join(t.TempDir(), "validation.db")
	db, err := q.mgr.NewDatabase(context.Background(), sqliteBackend, []xdbc.Option{
		{Key: xdbc.OptionURI, Value: xdbc.StringValue(uri)},
	})
	require.NoError(t, err)
	return db
}

func (sqliteQuirks) ConnectionOptions() []xdbc.Option { return nil }
func (sqliteQuirks) VendorName() string               { return "SQLite" }
func (sqliteQuirks) SupportsTransactions() bool       { return true }

func (sqliteQuirks) CreateTableSQL(table string) string {
	return "CREATE TABLE " + table + " (id INTEGER PRIMARY KEY, name TEXT)"
}

func TestSqliteDriverManager(t *testing.T) {
	mgr := drivermgr.NewManager(drivermgr.WithStatementLimit(4))
	defer validation.CheckedClose(t, mgr)

	// the driver library is an optional system package
	db, err := mgr.NewDatabase(context.Background(), sqliteBackend, nil)
	if err != nil {
		t.Skipf("adbc_driver_sqlite is not available: %v", err)
	}
	require.NoError(t, db.Close())

	q := sqliteQuirks{mgr: mgr}
	suite.Run(t, &validation.DatabaseTests{Quirks: q})
	suite.Run(t, &validation.ConnectionTests{Quirks: q})
	suite.Run(t, &validation.StatementTests{Quirks: q})
}
