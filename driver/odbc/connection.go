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
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/driver/internal/driverbase"
	"github.com/google/uuid"
)

// Connection is an ODBC session pinned to a single driver connection.
// Statements of a connection may be used from different goroutines, but
// the driver runs one call at a time.
type Connection struct {
	backend xdbc.Backend
	env     *Env
	info    *driverbase.DriverInfo
	id      uuid.UUID

	db   *sql.DB
	conn *sql.Conn

	mu     sync.Mutex
	stmts  map[*Statement]struct{}
	closed bool
}

var _ xdbc.Connection = (*Connection)(nil)

func (c *Connection) Backend() xdbc.Backend { return c.backend }

func (c *Connection) ID() uuid.UUID { return c.id }

func (c *Connection) NewStatement(context.Context) (xdbc.Statement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errHelper.InvalidState("connection is closed")
	}
	s := newStatement(c)
	c.stmts[s] = struct{}{}
	return s, nil
}

func (c *Connection) forget(s *Statement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stmts, s)
}

func (c *Connection) GetInfo(_ context.Context, infoCodes []adbc.InfoCode) (array.RecordReader, error) {
	return c.info.GetInfo(c.env.alloc, infoCodes)
}

// ODBC connections run in auto-commit mode.

func (c *Connection) Commit(context.Context) error {
	return errHelper.InvalidState("cannot commit in auto-commit mode")
}

func (c *Connection) Rollback(context.Context) error {
	return errHelper.InvalidState("cannot roll back in auto-commit mode")
}

// Cancel cancels the statements running on the connection.
func (c *Connection) Cancel() error {
	c.mu.Lock()
	stmts := make([]*Statement, 0, len(c.stmts))
	for s := range c.stmts {
		stmts = append(stmts, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range stmts {
		errs = append(errs, s.Cancel())
	}
	return errors.Join(errs...)
}

// Close closes the open statements and the driver connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stmts := make([]*Statement, 0, len(c.stmts))
	for s := range c.stmts {
		stmts = append(stmts, s)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range stmts {
		errs = append(errs, s.Close())
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, withDiagnostics(err, c.env.diagFields, adbc.StatusIO, "failed to close connection"))
	}
	if err := c.db.Close(); err != nil {
		errs = append(errs, withDiagnostics(err, c.env.diagFields, adbc.StatusIO, "failed to close connection"))
	}
	c.env.logger.Debug("connection closed", "connection_id", c.id.String())
	return errors.Join(errs...)
}
