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
	"errors"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dbt-labs/xdbc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Statement runs queries on an ODBC connection.
//
// A statement moves through: no query, query set, prepared, executed. Any
// change of state (a new query, a prepare, an execution, a cancel)
// invalidates the cursors handed out before it, so a reader can never
// observe the results of a later execution.
type Statement struct {
	conn *Connection

	mu sync.Mutex
	// guarded by mu
	query     string
	hasQuery  bool
	prepared  *sql.Stmt
	rows      *sql.Rows
	pending   []any
	hasData   bool
	schema    *arrow.Schema
	cursor    uint64
	batchSize int
	closed    bool

	// cancels the running execution; guarded by cancelMu so Cancel does not
	// wait for a fetch in progress
	cancelMu   sync.Mutex
	cancelExec context.CancelFunc
}

var _ xdbc.Statement = (*Statement)(nil)

func newStatement(c *Connection) *Statement {
	return &Statement{conn: c, batchSize: DefaultBatchSize}
}

func (s *Statement) wrap(err error, status adbc.Status, format string, args ...any) error {
	return withDiagnostics(err, s.conn.env.diagFields, status, format, args...)
}

// SetBatchSize sets the number of rows per batch of the readers created
// after the call.
func (s *Statement) SetBatchSize(n int) error {
	if n <= 0 {
		return errHelper.InvalidArgument("batch size must be positive, got %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchSize = n
	return nil
}

func (s *Statement) SetSqlQuery(query string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errHelper.InvalidState("statement is closed")
	}
	if s.prepared != nil {
		return errHelper.InvalidState("cannot change query after preparing")
	}
	s.closeRowsLocked()
	s.query = query
	s.hasQuery = true
	s.hasData = false
	s.cursor++
	return nil
}

func (s *Statement) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepareLocked(ctx)
}

func (s *Statement) prepareLocked(ctx context.Context) error {
	if s.closed {
		return errHelper.InvalidState("statement is closed")
	}
	if !s.hasQuery {
		return errHelper.InvalidState("no query to prepare")
	}
	s.closeRowsLocked()
	if s.prepared != nil {
		_ = s.prepared.Close()
		s.prepared = nil
	}
	stmt, err := s.conn.conn.PrepareContext(ctx, s.query)
	if err != nil {
		return s.wrap(err, adbc.StatusInvalidArgument, "failed to prepare query")
	}
	s.prepared = stmt
	s.hasData = false
	s.cursor++
	return nil
}

// executeLocked runs the prepared query, preparing it first if needed. The
// result is kept in the statement for the next BatchReader call.
func (s *Statement) executeLocked(ctx context.Context) error {
	if s.prepared == nil {
		if err := s.prepareLocked(ctx); err != nil {
			return err
		}
	}
	s.closeRowsLocked()
	s.cursor++

	execCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	rows, err := s.prepared.QueryContext(execCtx)
	if err != nil {
		s.setCancel(nil)
		cancel()
		return s.wrap(err, adbc.StatusIO, "failed to execute query")
	}

	cols, err := rows.ColumnTypes()
	if err != nil {
		_ = rows.Close()
		s.setCancel(nil)
		cancel()
		return s.wrap(err, adbc.StatusIO, "failed to describe result columns")
	}
	if len(cols) == 0 {
		_ = rows.Close()
		s.setCancel(nil)
		cancel()
		s.hasData = false
		s.schema = arrow.NewSchema(nil, nil)
		return nil
	}

	var sample []any
	if needsSample(cols) {
		// the driver did not describe every column; type them from the
		// first row and hand that row to the reader
		if sample, err = s.peekRow(rows, len(cols)); err != nil {
			_ = rows.Close()
			s.setCancel(nil)
			cancel()
			return err
		}
	}
	schema, err := schemaForColumns(cols, sample)
	if err != nil {
		_ = rows.Close()
		s.setCancel(nil)
		cancel()
		return err
	}
	s.rows = rows
	s.pending = sample
	s.hasData = true
	s.schema = schema
	return nil
}

// peekRow reads the first row of rows. It returns nil when the result is
// empty.
func (s *Statement) peekRow(rows *sql.Rows, n int) ([]any, error) {
	if !rows.Next() {
		err := rows.Err()
		if err == nil {
			return nil, nil
		}
		err = s.wrap(err, adbc.StatusIO, "failed to fetch rows")
		if xdbc.SqlStateOf(err) == sqlStateInvalidCursorState {
			return nil, nil
		}
		return nil, err
	}
	values := make([]any, n)
	ptrs := make([]any, n)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, s.wrap(err, adbc.StatusInvalidData, "failed to read row")
	}
	return values, nil
}

func (s *Statement) setCancel(cancel context.CancelFunc) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	s.cancelExec = cancel
}

func (s *Statement) takeCancel() context.CancelFunc {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	cancel := s.cancelExec
	s.cancelExec = nil
	return cancel
}

func (s *Statement) closeRowsLocked() {
	if s.rows != nil {
		_ = s.rows.Close()
		s.rows = nil
	}
	s.pending = nil
	if cancel := s.takeCancel(); cancel != nil {
		cancel()
	}
}

// BatchReader returns a reader over the result of the last execution. A
// statement without a result yields a reader with no batches.
func (s *Statement) BatchReader() *Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batchReaderLocked()
}

func (s *Statement) batchReaderLocked() *Cursor {
	schema := s.schema
	if schema == nil || !s.hasData {
		schema = arrow.NewSchema(nil, nil)
	}
	c := newCursor(s, s.rows, schema, s.hasData, s.cursor, s.batchSize)
	// the peeked row belongs to the first reader of the result
	c.pending, s.pending = s.pending, nil
	return c
}

func (s *Statement) ExecuteQuery(ctx context.Context) (array.RecordReader, error) {
	ctx, span := s.conn.env.telemetry.StartSpan(ctx, "ExecuteQuery")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.query.text", s.queryText()),
		attribute.String("xdbc.connection_id", s.conn.id.String()))

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.executeLocked(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return s.batchReaderLocked(), nil
}

// ExecuteUpdate runs the query for its side effects and returns the number
// of rows affected, or -1 when the driver cannot tell.
func (s *Statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	ctx, span := s.conn.env.telemetry.StartSpan(ctx, "ExecuteUpdate")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.query.text", s.queryText()),
		attribute.String("xdbc.connection_id", s.conn.id.String()))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prepared == nil {
		if err := s.prepareLocked(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return -1, err
		}
	}
	s.closeRowsLocked()
	s.hasData = false
	s.cursor++

	execCtx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer s.closeRowsLocked()
	res, err := s.prepared.ExecContext(execCtx)
	if err != nil {
		err = s.wrap(err, adbc.StatusIO, "failed to execute update")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return -1, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = -1
	}
	span.SetAttributes(attribute.Int64("xdbc.rows_affected", n))
	return n, nil
}

func (s *Statement) queryText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Cancel stops the running execution, if any, and resets the statement to
// its initial state. Readers created before the call stop with an error.
func (s *Statement) Cancel() error {
	if cancel := s.takeCancel(); cancel != nil {
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeRowsLocked()
	if s.prepared != nil {
		_ = s.prepared.Close()
		s.prepared = nil
	}
	s.query = ""
	s.hasQuery = false
	s.hasData = false
	s.cursor++
	return nil
}

func (s *Statement) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.closeRowsLocked()
	s.cursor++
	var err error
	if s.prepared != nil {
		if cerr := s.prepared.Close(); cerr != nil && !errors.Is(cerr, sql.ErrConnDone) {
			err = s.wrap(cerr, adbc.StatusIO, "failed to close statement")
		}
		s.prepared = nil
	}
	s.mu.Unlock()

	s.conn.forget(s)
	return err
}
