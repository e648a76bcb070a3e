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
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dbt-labs/xdbc"
	"github.com/stretchr/testify/suite"
)

type StatementSuite struct {
	suite.Suite

	ctx   context.Context
	alloc *memory.CheckedAllocator
	mock  sqlmock.Sqlmock
	conn  *Connection
	stmt  *Statement

	connClosed bool
}

func TestStatementSuite(t *testing.T) {
	suite.Run(t, new(StatementSuite))
}

func (s *StatementSuite) SetupTest() {
	s.ctx = context.Background()
	s.connClosed = false
	s.alloc = memory.NewCheckedAllocator(memory.DefaultAllocator)

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	s.Require().NoError(err)
	s.mock = mock

	env := NewEnv(WithDBFactory(&recordingFactory{db: sqlDB}), WithAllocator(s.alloc))
	db, err := NewDatabase(xdbc.DatabricksODBC, env, nil)
	s.Require().NoError(err)
	conn, err := db.NewConnectionWithOptions(s.ctx, []xdbc.Option{xdbc.StringOption("DSN", "mock")})
	s.Require().NoError(err)
	s.conn = conn.(*Connection)

	stmt, err := s.conn.NewStatement(s.ctx)
	s.Require().NoError(err)
	s.stmt = stmt.(*Statement)
}

func (s *StatementSuite) TearDownTest() {
	if !s.connClosed {
		s.mock.ExpectClose()
		s.NoError(s.conn.Close())
	}
	s.NoError(s.mock.ExpectationsWereMet())
	s.alloc.AssertSize(s.T(), 0)
}

func peopleRows() *sqlmock.Rows {
	return sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
		sqlmock.NewColumn("name").OfType("VARCHAR(32)", ""),
		sqlmock.NewColumn("score").OfType("DOUBLE", float64(0)),
		sqlmock.NewColumn("active").OfType("BIT", false),
	)
}

// drain reads every batch of rdr and returns the batch sizes.
func (s *StatementSuite) drain(rdr array.RecordReader) []int64 {
	var sizes []int64
	for rdr.Next() {
		sizes = append(sizes, rdr.RecordBatch().NumRows())
	}
	return sizes
}

func (s *StatementSuite) TestExecuteQueryValues() {
	s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(
		peopleRows().
			AddRow(int64(1), "ada", 9.5, true).
			AddRow(int64(2), nil, nil, false))

	s.Require().NoError(s.stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	schema := rdr.Schema()
	s.Require().Len(schema.Fields(), 4)
	s.Equal(arrow.PrimitiveTypes.Int64, schema.Field(0).Type)
	s.False(schema.Field(0).Nullable)
	s.Equal(arrow.BinaryTypes.String, schema.Field(1).Type)
	s.Equal(arrow.PrimitiveTypes.Float64, schema.Field(2).Type)
	s.Equal(arrow.FixedWidthTypes.Boolean, schema.Field(3).Type)
	typeName, ok := schema.Field(1).Metadata.GetValue(MetadataKeyDataType)
	s.True(ok)
	s.Equal("VARCHAR", typeName)

	s.Require().True(rdr.Next())
	rec := rdr.RecordBatch()
	s.EqualValues(2, rec.NumRows())
	s.Equal([]int64{1, 2}, rec.Column(0).(*array.Int64).Int64Values())
	names := rec.Column(1).(*array.String)
	s.Equal("ada", names.Value(0))
	s.True(names.IsNull(1))
	s.True(rec.Column(2).IsNull(1))
	s.InDelta(9.5, rec.Column(2).(*array.Float64).Value(0), 0)
	s.True(rec.Column(3).(*array.Boolean).Value(0))

	s.False(rdr.Next())
	s.NoError(rdr.Err())
}

func (s *StatementSuite) TestBatchSize() {
	rows := peopleRows()
	for i := range 5 {
		rows.AddRow(int64(i), "x", 1.0, false)
	}
	s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(rows)

	s.Require().NoError(s.stmt.SetBatchSize(2))
	s.Require().NoError(s.stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Equal([]int64{2, 2, 1}, s.drain(rdr))
	s.NoError(rdr.Err())
}

func (s *StatementSuite) TestBatchesFollowSuggestedSize() {
	for _, tc := range []struct {
		batchSize int
		want      []int64
	}{
		{0, []int64{3}},
		{3, []int64{3}},
		{2, []int64{2, 1}},
	} {
		rows := peopleRows().
			AddRow(int64(1), "a", 1.0, true).
			AddRow(int64(2), "b", 2.0, true).
			AddRow(int64(3), "c", 3.0, false)
		s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(rows)

		st, err := s.conn.NewStatement(s.ctx)
		s.Require().NoError(err)
		stmt := st.(*Statement)
		if tc.batchSize > 0 {
			s.Require().NoError(stmt.SetBatchSize(tc.batchSize))
		}
		s.Require().NoError(stmt.SetSqlQuery("SELECT * FROM people"))
		rdr, err := stmt.ExecuteQuery(s.ctx)
		s.Require().NoError(err)

		s.Equal(tc.want, s.drain(rdr), "batch size %d", tc.batchSize)
		s.NoError(rdr.Err())
		rdr.Release()
		s.NoError(stmt.Close())
	}
}

func (s *StatementSuite) TestResultWithoutColumns() {
	s.mock.ExpectPrepare("CREATE TABLE t (a INT)").ExpectQuery().WillReturnRows(sqlmock.NewRows(nil))

	s.Require().NoError(s.stmt.SetSqlQuery("CREATE TABLE t (a INT)"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Empty(rdr.Schema().Fields())
	s.False(rdr.Next())
	s.NoError(rdr.Err())
}

func (s *StatementSuite) TestCannotChangeQueryAfterPrepare() {
	s.mock.ExpectPrepare("SELECT 1")

	s.Require().NoError(s.stmt.SetSqlQuery("SELECT 1"))
	s.Require().NoError(s.stmt.Prepare(s.ctx))

	err := s.stmt.SetSqlQuery("SELECT 2")
	s.Require().Error(err)
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(err))
	s.Contains(err.Error(), "cannot change query after preparing")
}

func (s *StatementSuite) TestPrepareWithoutQuery() {
	err := s.stmt.Prepare(s.ctx)
	s.Require().Error(err)
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(err))
	s.Contains(err.Error(), "no query to prepare")

	_, err = s.stmt.ExecuteQuery(s.ctx)
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(err))
}

func (s *StatementSuite) TestPrepareFailureCarriesDiagnostics() {
	s.mock.ExpectPrepare("SELEC 1").WillReturnError(diagError{
		{SQLState: "42000", NativeError: 1064, Message: "syntax error"},
	})

	s.Require().NoError(s.stmt.SetSqlQuery("SELEC 1"))
	err := s.stmt.Prepare(s.ctx)
	s.Require().Error(err)
	s.Equal("42000", xdbc.SqlStateOf(err))
	s.EqualValues(1064, xdbc.VendorCodeOf(err))
	s.Equal("[ODBC] failed to prepare query: syntax error", errMsg(err))
}

func (s *StatementSuite) TestCancelInvalidatesCursor() {
	rows := peopleRows()
	for i := range 3 {
		rows.AddRow(int64(i), "x", 1.0, false)
	}
	s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(rows)

	s.Require().NoError(s.stmt.SetBatchSize(1))
	s.Require().NoError(s.stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().True(rdr.Next())
	s.Require().NoError(s.stmt.Cancel())

	s.False(rdr.Next())
	s.Require().Error(rdr.Err())
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(rdr.Err()))
	s.Contains(rdr.Err().Error(), "cursor is no longer valid")

	// the statement is back to its initial state
	err = s.stmt.Prepare(s.ctx)
	s.Contains(err.Error(), "no query to prepare")
}

func (s *StatementSuite) TestCloseInvalidatesCursor() {
	s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(
		peopleRows().AddRow(int64(1), "ada", 1.0, true))

	s.Require().NoError(s.stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().NoError(s.stmt.Close())
	s.False(rdr.Next())
	s.Contains(rdr.Err().Error(), "cursor is no longer valid")
}

func (s *StatementSuite) TestFetchErrorIsTerminal() {
	rows := peopleRows()
	for i := range 4 {
		rows.AddRow(int64(i), "x", 1.0, false)
	}
	rows.RowError(2, errors.New("connection reset"))
	s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(rows)

	s.Require().NoError(s.stmt.SetBatchSize(2))
	s.Require().NoError(s.stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().True(rdr.Next())
	s.False(rdr.Next())
	first := rdr.Err()
	s.Require().Error(first)
	s.Equal(adbc.StatusIO, xdbc.StatusOf(first))
	s.Contains(first.Error(), "connection reset")

	s.False(rdr.Next())
	s.Equal(first, rdr.Err())
}

func (s *StatementSuite) TestInvalidCursorStateBeforeFirstBatch() {
	rows := peopleRows().AddRow(int64(1), "ada", 1.0, true)
	rows.RowError(0, diagError{{SQLState: "24000", Message: "Invalid cursor state"}})
	s.mock.ExpectPrepare("EXEC proc").ExpectQuery().WillReturnRows(rows)

	s.Require().NoError(s.stmt.SetSqlQuery("EXEC proc"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.False(rdr.Next())
	s.NoError(rdr.Err())
}

func (s *StatementSuite) TestInvalidCursorStateAfterFirstBatch() {
	rows := peopleRows().
		AddRow(int64(1), "ada", 1.0, true).
		AddRow(int64(2), "bob", 2.0, false)
	rows.RowError(1, diagError{{SQLState: "24000", Message: "Invalid cursor state"}})
	s.mock.ExpectPrepare("SELECT * FROM people").ExpectQuery().WillReturnRows(rows)

	s.Require().NoError(s.stmt.SetBatchSize(1))
	s.Require().NoError(s.stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().True(rdr.Next())
	s.False(rdr.Next())
	s.Require().Error(rdr.Err())
	s.Equal("24000", xdbc.SqlStateOf(rdr.Err()))
}

func (s *StatementSuite) TestUnsupportedColumnType() {
	s.mock.ExpectPrepare("SELECT g FROM shapes").ExpectQuery().WillReturnRows(
		sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("g").OfType("GEOMETRY", []byte(nil))).
			AddRow([]byte{1}))

	s.Require().NoError(s.stmt.SetSqlQuery("SELECT g FROM shapes"))
	_, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().Error(err)
	s.Equal(adbc.StatusNotImplemented, xdbc.StatusOf(err))
	s.Contains(err.Error(), "GEOMETRY")
}

func (s *StatementSuite) TestFloatOutOfRangeForIntegerColumn() {
	s.mock.ExpectPrepare("SELECT n FROM t").ExpectQuery().WillReturnRows(
		sqlmock.NewRowsWithColumnDefinition(sqlmock.NewColumn("n").OfType("INTEGER", int64(0))).
			AddRow(float64(7)).
			AddRow(1e12))

	s.Require().NoError(s.stmt.SetSqlQuery("SELECT n FROM t"))
	rdr, err := s.stmt.ExecuteQuery(s.ctx)
	s.Require().NoError(err)
	defer rdr.Release()

	s.False(rdr.Next())
	s.Require().Error(rdr.Err())
	s.Equal(adbc.StatusInvalidData, xdbc.StatusOf(rdr.Err()))
	s.Equal("[ODBC] column 'n': value 1e+12 out of range for int32", errMsg(rdr.Err()))
}

func (s *StatementSuite) TestExecuteUpdate() {
	prep := s.mock.ExpectPrepare("DELETE FROM people")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 3))
	prep.ExpectExec().WillReturnResult(sqlmock.NewErrorResult(errors.New("unknown")))

	s.Require().NoError(s.stmt.SetSqlQuery("DELETE FROM people"))
	n, err := s.stmt.ExecuteUpdate(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(3, n)

	n, err = s.stmt.ExecuteUpdate(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(-1, n)
}

func (s *StatementSuite) TestExecuteUpdateFailure() {
	s.mock.ExpectPrepare("DELETE FROM gone").ExpectExec().WillReturnError(diagError{
		{SQLState: "42S02", Message: "table not found"},
		{SQLState: "01000", Message: "statement discarded"},
	})

	s.Require().NoError(s.stmt.SetSqlQuery("DELETE FROM gone"))
	n, err := s.stmt.ExecuteUpdate(s.ctx)
	s.Require().Error(err)
	s.EqualValues(-1, n)
	s.Equal("[ODBC] failed to execute update: table not found\n  statement discarded", errMsg(err))
}

func (s *StatementSuite) TestConnectionGetInfo() {
	rdr, err := s.conn.GetInfo(s.ctx, []adbc.InfoCode{adbc.InfoVendorName, adbc.InfoDriverName})
	s.Require().NoError(err)
	defer rdr.Release()

	s.Require().True(rdr.Next())
	rec := rdr.RecordBatch()
	s.EqualValues(2, rec.NumRows())
	values := rec.Column(1).(*array.DenseUnion)
	strs := values.Field(0).(*array.String)
	s.Equal("Databricks", strs.Value(int(values.ValueOffset(0))))
	s.Equal("xdbc ODBC (odbc)", strs.Value(int(values.ValueOffset(1))))
}

func (s *StatementSuite) TestAutoCommitOnly() {
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(s.conn.Commit(s.ctx)))
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(s.conn.Rollback(s.ctx)))
}

func (s *StatementSuite) TestConnectionCloseClosesStatements() {
	s.mock.ExpectClose()
	s.Require().NoError(s.conn.Close())
	s.connClosed = true
	s.NoError(s.conn.Close())

	err := s.stmt.SetSqlQuery("SELECT 1")
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(err))
	_, err = s.conn.NewStatement(s.ctx)
	s.Equal(adbc.StatusInvalidState, xdbc.StatusOf(err))
}
