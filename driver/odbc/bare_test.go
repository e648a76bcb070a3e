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
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dbt-labs/xdbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bareConnector stands in for a native driver binding that describes result
// columns by name only and whose connect ignores the context.
type bareConnector struct {
	columns []string
	rows    [][]driver.Value
	// when set, Connect blocks until it is closed
	gate chan struct{}
}

func (c *bareConnector) Connect(context.Context) (driver.Conn, error) {
	if c.gate != nil {
		<-c.gate
	}
	return bareConn{c}, nil
}

func (c *bareConnector) Driver() driver.Driver { return bareDriver{c} }

type bareDriver struct{ c *bareConnector }

func (d bareDriver) Open(string) (driver.Conn, error) { return d.c.Connect(context.Background()) }

type bareConn struct{ c *bareConnector }

func (c bareConn) Prepare(string) (driver.Stmt, error) { return bareStmt(c), nil }
func (bareConn) Close() error                          { return nil }
func (bareConn) Begin() (driver.Tx, error)             { return nil, errors.New("transactions are not supported") }

type bareStmt struct{ c *bareConnector }

func (bareStmt) Close() error  { return nil }
func (bareStmt) NumInput() int { return -1 }

func (bareStmt) Exec([]driver.Value) (driver.Result, error) { return driver.RowsAffected(0), nil }

func (s bareStmt) Query([]driver.Value) (driver.Rows, error) {
	return &bareRows{columns: s.c.columns, rows: s.c.rows}, nil
}

// bareRows implements nothing beyond driver.Rows.
type bareRows struct {
	columns []string
	rows    [][]driver.Value
	next    int
}

func (r *bareRows) Columns() []string { return r.columns }
func (r *bareRows) Close() error      { return nil }

func (r *bareRows) Next(dest []driver.Value) error {
	if r.next >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.next])
	r.next++
	return nil
}

func bareEnv(c *bareConnector, opts ...EnvOption) *Env {
	factory := DBFactoryFunc(func(context.Context, string, string) (*sql.DB, error) {
		return sql.OpenDB(c), nil
	})
	return NewEnv(append([]EnvOption{WithDBFactory(factory)}, opts...)...)
}

func bareStatement(t *testing.T, c *bareConnector, mem memory.Allocator) *Statement {
	t.Helper()
	db, err := NewDatabase(xdbc.DatabricksODBC, bareEnv(c, WithAllocator(mem)), nil)
	require.NoError(t, err)
	cnxn, err := db.NewConnection(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, cnxn.Close()) })
	st, err := cnxn.NewStatement(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, st.Close()) })
	return st.(*Statement)
}

func TestResultTypesFromValues(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	created := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	stmt := bareStatement(t, &bareConnector{
		columns: []string{"id", "total", "name", "score", "payload", "active", "created", "note"},
		rows: [][]driver.Value{
			{int32(1), int64(10), []byte("alice"), 1.5, []byte{0xff, 0xfe}, true, created, nil},
			{int32(2), int64(20), "bob", 2.5, []byte{0x00}, false, created.Add(time.Hour), "x"},
		},
	}, mem)

	require.NoError(t, stmt.SetSqlQuery("SELECT * FROM people"))
	rdr, err := stmt.ExecuteQuery(context.Background())
	require.NoError(t, err)
	defer rdr.Release()

	want := []arrow.DataType{
		arrow.PrimitiveTypes.Int32,
		arrow.PrimitiveTypes.Int64,
		arrow.BinaryTypes.String,
		arrow.PrimitiveTypes.Float64,
		arrow.BinaryTypes.Binary,
		arrow.FixedWidthTypes.Boolean,
		arrow.FixedWidthTypes.Timestamp_us,
		arrow.BinaryTypes.String,
	}
	schema := rdr.Schema()
	require.Len(t, schema.Fields(), len(want))
	for i, dt := range want {
		f := schema.Field(i)
		assert.Truef(t, arrow.TypeEqual(dt, f.Type), "column %s: got %s, want %s", f.Name, f.Type, dt)
		assert.True(t, f.Nullable)
	}

	require.True(t, rdr.Next())
	rec := rdr.RecordBatch()
	require.EqualValues(t, 2, rec.NumRows())
	assert.Equal(t, []int32{1, 2}, rec.Column(0).(*array.Int32).Int32Values())
	assert.Equal(t, []int64{10, 20}, rec.Column(1).(*array.Int64).Int64Values())
	assert.Equal(t, "alice", rec.Column(2).(*array.String).Value(0))
	assert.Equal(t, "bob", rec.Column(2).(*array.String).Value(1))
	assert.Equal(t, []byte{0xff, 0xfe}, rec.Column(4).(*array.Binary).Value(0))
	assert.True(t, rec.Column(5).(*array.Boolean).Value(0))
	assert.True(t, rec.Column(7).IsNull(0))
	assert.Equal(t, "x", rec.Column(7).(*array.String).Value(1))
	assert.False(t, rdr.Next())
	assert.NoError(t, rdr.Err())
}

func TestResultTypesFromValuesAcrossBatches(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	stmt := bareStatement(t, &bareConnector{
		columns: []string{"id"},
		rows:    [][]driver.Value{{int64(1)}, {int64(2)}, {int64(3)}},
	}, mem)
	require.NoError(t, stmt.SetBatchSize(2))

	require.NoError(t, stmt.SetSqlQuery("SELECT id FROM t"))
	rdr, err := stmt.ExecuteQuery(context.Background())
	require.NoError(t, err)
	defer rdr.Release()

	var ids []int64
	for rdr.Next() {
		ids = append(ids, rdr.RecordBatch().Column(0).(*array.Int64).Int64Values()...)
	}
	require.NoError(t, rdr.Err())
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestResultTypesWithoutRows(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.DefaultAllocator)
	defer mem.AssertSize(t, 0)

	stmt := bareStatement(t, &bareConnector{columns: []string{"id", "name"}}, mem)

	require.NoError(t, stmt.SetSqlQuery("SELECT id, name FROM empty"))
	rdr, err := stmt.ExecuteQuery(context.Background())
	require.NoError(t, err)
	defer rdr.Release()

	for _, f := range rdr.Schema().Fields() {
		assert.Truef(t, arrow.TypeEqual(arrow.BinaryTypes.String, f.Type), "column %s: got %s", f.Name, f.Type)
	}
	assert.False(t, rdr.Next())
	assert.NoError(t, rdr.Err())
}

func TestLoginTimeout(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	env := bareEnv(&bareConnector{gate: gate}, WithLoginTimeout(50*time.Millisecond))
	db, err := NewDatabase(xdbc.DatabricksODBC, env, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = db.NewConnectionWithOptions(context.Background(), []xdbc.Option{xdbc.StringOption("Host", "h")})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, adbc.StatusTimeout, xdbc.StatusOf(err))
	assert.Equal(t, "[ODBC] failed to connect: login timed out after 50ms", errMsg(err))
}

func TestLoginCancelled(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	db, err := NewDatabase(xdbc.DatabricksODBC, bareEnv(&bareConnector{gate: gate}), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err = db.NewConnection(ctx)
	require.Error(t, err)
	assert.Equal(t, adbc.StatusCancelled, xdbc.StatusOf(err))
}

func TestDefaultLoginTimeout(t *testing.T) {
	assert.Equal(t, DefaultLoginTimeout, NewEnv().loginTimeout)
	assert.Equal(t, DefaultLoginTimeout, NewEnv(WithLoginTimeout(0)).loginTimeout)
	assert.Equal(t, time.Second, NewEnv(WithLoginTimeout(time.Second)).loginTimeout)
}
