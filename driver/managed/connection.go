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

package managed

import (
	"context"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dbt-labs/xdbc"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type canceler interface {
	Cancel() error
}

// Connection is a connection opened by a managed Database. It keeps the
// database alive until it is closed.
type Connection struct {
	db   *Database
	conn adbc.Connection
	id   uuid.UUID

	closeOnce sync.Once
}

var _ xdbc.Connection = (*Connection)(nil)

func (c *Connection) Backend() xdbc.Backend { return c.db.backend }

// ID identifies the connection in logs and traces.
func (c *Connection) ID() uuid.UUID { return c.id }

// NewStatement creates a statement. When the database has a statement
// semaphore, this blocks until a permit is available or ctx is done; the
// permit is returned when the statement is closed.
func (c *Connection) NewStatement(ctx context.Context) (xdbc.Statement, error) {
	release := func() {}
	if sem := c.db.sem; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, errHelper.Wrap(err, adbc.StatusCancelled, "waiting for a statement slot")
		}
		release = func() { sem.Release(1) }
	}

	stmt, err := c.conn.NewStatement()
	if err != nil {
		release()
		return nil, err
	}
	return &Statement{conn: c, stmt: stmt, release: sync.OnceFunc(release)}, nil
}

func (c *Connection) GetInfo(ctx context.Context, infoCodes []adbc.InfoCode) (array.RecordReader, error) {
	return c.conn.GetInfo(ctx, infoCodes)
}

func (c *Connection) GetObjects(ctx context.Context, depth adbc.ObjectDepth, catalog, dbSchema, tableName, columnName *string, tableType []string) (array.RecordReader, error) {
	return c.conn.GetObjects(ctx, depth, catalog, dbSchema, tableName, columnName, tableType)
}

func (c *Connection) GetTableSchema(ctx context.Context, catalog, dbSchema *string, tableName string) (*arrow.Schema, error) {
	return c.conn.GetTableSchema(ctx, catalog, dbSchema, tableName)
}

func (c *Connection) GetTableTypes(ctx context.Context) (array.RecordReader, error) {
	return c.conn.GetTableTypes(ctx)
}

func (c *Connection) Commit(ctx context.Context) error   { return c.conn.Commit(ctx) }
func (c *Connection) Rollback(ctx context.Context) error { return c.conn.Rollback(ctx) }

// Cancel cancels in-flight work if the driver supports it.
func (c *Connection) Cancel() error {
	if cc, ok := c.conn.(canceler); ok {
		return cc.Cancel()
	}
	return nil
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
		c.db.logger.Debug("connection closed", "connection_id", c.id.String())
		if relErr := c.db.release(); err == nil {
			err = relErr
		}
	})
	return err
}

// Statement wraps a vendor statement and holds a statement permit, if the
// database has a semaphore, until it is closed.
type Statement struct {
	conn    *Connection
	stmt    adbc.Statement
	release func()
	query   string

	closeOnce sync.Once
}

var _ xdbc.Statement = (*Statement)(nil)

func (s *Statement) SetSqlQuery(query string) error {
	if err := s.stmt.SetSqlQuery(query); err != nil {
		return err
	}
	s.query = query
	return nil
}

// SetOption sets a statement option through the ADBC option setters.
func (s *Statement) SetOption(o xdbc.Option) error {
	return xdbc.SetTypedOption(s.stmt, o)
}

func (s *Statement) Prepare(ctx context.Context) error { return s.stmt.Prepare(ctx) }

func (s *Statement) ExecuteQuery(ctx context.Context) (array.RecordReader, error) {
	ctx, span := s.conn.db.telemetry.StartSpan(ctx, "ExecuteQuery")
	defer span.End()
	span.SetAttributes(
		attribute.String("xdbc.connection_id", s.conn.id.String()),
		attribute.String("db.query.text", s.query))

	rdr, _, err := s.stmt.ExecuteQuery(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rdr, nil
}

func (s *Statement) ExecuteUpdate(ctx context.Context) (int64, error) {
	ctx, span := s.conn.db.telemetry.StartSpan(ctx, "ExecuteUpdate")
	defer span.End()
	span.SetAttributes(
		attribute.String("xdbc.connection_id", s.conn.id.String()),
		attribute.String("db.query.text", s.query))

	n, err := s.stmt.ExecuteUpdate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return -1, err
	}
	span.SetAttributes(attribute.Int64("xdbc.rows_affected", n))
	return n, nil
}

func (s *Statement) Cancel() error {
	if cc, ok := s.stmt.(canceler); ok {
		return cc.Cancel()
	}
	return nil
}

// Close closes the vendor statement and returns its permit. Calling Close
// more than once is a no-op.
func (s *Statement) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.stmt.Close()
		s.release()
	})
	return err
}
