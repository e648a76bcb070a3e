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

// Package validation is a backend-agnostic test suite for xdbc databases.
// A backend provides Quirks describing how to reach it and what it
// supports; the suites then check that the database, its connections and
// its statements follow the behavior callers rely on.
package validation

import (
	"context"
	"io"
	"testing"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dbt-labs/xdbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type Quirks interface {
	// Called in SetupTest to create the database under test
	SetupDatabase(*testing.T) xdbc.Database
	// Options for NewConnectionWithOptions; nil uses NewConnection
	ConnectionOptions() []xdbc.Option
	// Expected vendor name reported through GetInfo
	VendorName() string
	// Whether Commit and Rollback are supported
	SupportsTransactions() bool
	// SQL creating a table with an integer "id" and a string "name" column
	CreateTableSQL(table string) string
}

// CheckedClose closes c and fails the test if that fails.
func CheckedClose(t *testing.T, c io.Closer) {
	t.Helper()
	assert.NoError(t, c.Close())
}

func connect(ctx context.Context, db xdbc.Database, q Quirks) (xdbc.Connection, error) {
	if opts := q.ConnectionOptions(); opts != nil {
		return db.NewConnectionWithOptions(ctx, opts)
	}
	return db.NewConnection(ctx)
}

type DatabaseTests struct {
	suite.Suite

	Quirks Quirks
	DB     xdbc.Database
}

func (d *DatabaseTests) SetupTest() {
	d.DB = d.Quirks.SetupDatabase(d.T())
}

func (d *DatabaseTests) TearDownTest() {
	d.NoError(d.DB.Close())
	d.DB = nil
}

func (d *DatabaseTests) TestVendorName() {
	name, err := xdbc.VendorName(context.Background(), d.DB)
	d.Require().NoError(err)
	d.Equal(d.Quirks.VendorName(), name)
}

func (d *DatabaseTests) TestDriverName() {
	name, err := xdbc.DriverName(context.Background(), d.DB)
	d.Require().NoError(err)
	d.NotEmpty(name)
}

func (d *DatabaseTests) TestNewConn() {
	cnxn, err := connect(context.Background(), d.DB, d.Quirks)
	d.Require().NoError(err)
	d.Equal(d.DB.Backend(), cnxn.Backend())
	d.NoError(cnxn.Close())
}

func (d *DatabaseTests) TestCloseConnTwice() {
	cnxn, err := connect(context.Background(), d.DB, d.Quirks)
	d.Require().NoError(err)
	d.NoError(cnxn.Close())
	d.NoError(cnxn.Close())
}

func (d *DatabaseTests) TestConcurrent() {
	ctx := context.Background()
	cnxn, err := connect(ctx, d.DB, d.Quirks)
	d.Require().NoError(err)
	cnxn2, err := connect(ctx, d.DB, d.Quirks)
	d.Require().NoError(err)

	d.NoError(cnxn.Close())
	d.NoError(cnxn2.Close())
}

type ConnectionTests struct {
	suite.Suite

	Quirks Quirks
	DB     xdbc.Database
	Cnxn   xdbc.Connection
}

func (c *ConnectionTests) SetupTest() {
	c.DB = c.Quirks.SetupDatabase(c.T())
	var err error
	c.Cnxn, err = connect(context.Background(), c.DB, c.Quirks)
	c.Require().NoError(err)
}

func (c *ConnectionTests) TearDownTest() {
	c.NoError(c.Cnxn.Close())
	c.NoError(c.DB.Close())
}

func (c *ConnectionTests) TestAutocommitDefault() {
	if c.Quirks.SupportsTransactions() {
		c.T().Skip("backend supports transactions")
	}
	ctx := context.Background()
	// without a transaction there is nothing to commit
	var adbcErr adbc.Error
	c.ErrorAs(c.Cnxn.Commit(ctx), &adbcErr)
	c.Equal(adbc.StatusInvalidState, adbcErr.Code)
	c.ErrorAs(c.Cnxn.Rollback(ctx), &adbcErr)
	c.Equal(adbc.StatusInvalidState, adbcErr.Code)
}

func (c *ConnectionTests) TestMetadataGetInfo() {
	rdr, err := c.Cnxn.GetInfo(context.Background(), []adbc.InfoCode{adbc.InfoVendorName})
	c.Require().NoError(err)
	c.True(adbc.GetInfoSchema.Equal(rdr.Schema()), rdr.Schema().String())

	// InfoValue releases the reader
	arr, err := xdbc.InfoValue(rdr, adbc.InfoVendorName)
	c.Require().NoError(err)
	defer arr.Release()
	c.Require().IsType((*array.String)(nil), arr)
	c.Equal(c.Quirks.VendorName(), arr.(*array.String).Value(0))
}

type StatementTests struct {
	suite.Suite

	Quirks Quirks
	DB     xdbc.Database
	Cnxn   xdbc.Connection
	ctx    context.Context
}

func (s *StatementTests) SetupTest() {
	s.ctx = context.Background()
	s.DB = s.Quirks.SetupDatabase(s.T())
	var err error
	s.Cnxn, err = connect(s.ctx, s.DB, s.Quirks)
	s.Require().NoError(err)
}

func (s *StatementTests) TearDownTest() {
	s.NoError(s.Cnxn.Close())
	s.NoError(s.DB.Close())
}

func (s *StatementTests) run(query string) int64 {
	stmt, err := s.Cnxn.NewStatement(s.ctx)
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)
	s.Require().NoError(stmt.SetSqlQuery(query))
	n, err := stmt.ExecuteUpdate(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *StatementTests) TestNewStatement() {
	stmt, err := s.Cnxn.NewStatement(s.ctx)
	s.Require().NoError(err)
	s.NoError(stmt.Close())
	s.NoError(stmt.Close())
}

func (s *StatementTests) TestExecuteWithoutQuery() {
	stmt, err := s.Cnxn.NewStatement(s.ctx)
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)

	_, err = stmt.ExecuteQuery(s.ctx)
	var adbcErr adbc.Error
	s.ErrorAs(err, &adbcErr)
	s.Equal(adbc.StatusInvalidState, adbcErr.Code)
}

func (s *StatementTests) TestUpdateThenQuery() {
	s.run(s.Quirks.CreateTableSQL("validation_people"))
	s.EqualValues(2, s.run("INSERT INTO validation_people (id, name) VALUES (1, 'ada'), (2, 'grace')"))

	stmt, err := s.Cnxn.NewStatement(s.ctx)
	s.Require().NoError(err)
	defer CheckedClose(s.T(), stmt)
	s.Require().NoError(stmt.SetSqlQuery("SELECT name FROM validation_people ORDER BY id"))
	rdr, err := stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	var names []string
	for rdr.Next() {
		col := rdr.RecordBatch().Column(0).(*array.String)
		for i := 0; i < col.Len(); i++ {
			names = append(names, col.Value(i))
		}
	}
	s.NoError(rdr.Err())
	s.Equal([]string{"ada", "grace"}, names)
}
