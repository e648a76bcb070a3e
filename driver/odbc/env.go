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

// Package odbc implements the xdbc interfaces for backends reached through
// an ODBC driver.
//
// ODBC has no notion of a database handle, so a Database only carries the
// options that make up the connection string of every connection created
// from it. Connections are opened through database/sql; the native driver
// manager binding lives in the unixodbc subpackage and registers itself
// under the "odbc" driver name. Query results are read row by row and
// assembled into Arrow record batches.
package odbc

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/driver/internal/driverbase"
)

const DefaultDriverName = "odbc"

var errHelper = xdbc.ErrorHelper{Name: "ODBC"}

// DBFactory opens the database/sql handle a connection is created from.
type DBFactory interface {
	CreateDB(ctx context.Context, driverName, connString string) (*sql.DB, error)
}

// DBFactoryFunc adapts a function to DBFactory.
type DBFactoryFunc func(ctx context.Context, driverName, connString string) (*sql.DB, error)

func (f DBFactoryFunc) CreateDB(ctx context.Context, driverName, connString string) (*sql.DB, error) {
	return f(ctx, driverName, connString)
}

type defaultDBFactory struct{}

func (defaultDBFactory) CreateDB(_ context.Context, driverName, connString string) (*sql.DB, error) {
	return sql.Open(driverName, connString)
}

// Env is shared by every ODBC database of a process. It names the
// database/sql driver used to open connections and holds the settings
// common to all of them.
type Env struct {
	driverName string
	factory    DBFactory
	alloc      memory.Allocator
	logger     *slog.Logger
	telemetry  *driverbase.Telemetry
	ownsTel    bool
	diagFields []DiagField
	// bounds opening a connection
	loginTimeout time.Duration
}

type EnvOption func(*Env)

// WithDriverName sets the database/sql driver name. Defaults to "odbc".
func WithDriverName(name string) EnvOption {
	return func(e *Env) { e.driverName = name }
}

func WithDBFactory(f DBFactory) EnvOption {
	return func(e *Env) { e.factory = f }
}

func WithAllocator(alloc memory.Allocator) EnvOption {
	return func(e *Env) { e.alloc = alloc }
}

func WithLogger(logger *slog.Logger) EnvOption {
	return func(e *Env) { e.logger = logger }
}

func WithTelemetry(t *driverbase.Telemetry) EnvOption {
	return func(e *Env) { e.telemetry = t }
}

// WithDiagFields selects which fields of the diagnostic records after the
// first one are appended to error messages. Defaults to the message text.
func WithDiagFields(fields ...DiagField) EnvOption {
	return func(e *Env) { e.diagFields = fields }
}

// WithLoginTimeout bounds how long opening a connection may take. Defaults
// to DefaultLoginTimeout.
func WithLoginTimeout(d time.Duration) EnvOption {
	return func(e *Env) { e.loginTimeout = d }
}

func NewEnv(opts ...EnvOption) *Env {
	e := &Env{
		driverName:   DefaultDriverName,
		factory:      defaultDBFactory{},
		alloc:        memory.DefaultAllocator,
		diagFields:   []DiagField{DiagMessageText},
		loginTimeout: DefaultLoginTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loginTimeout <= 0 {
		e.loginTimeout = DefaultLoginTimeout
	}
	e.logger = driverbase.LoggerOrNil(e.logger)
	if e.telemetry == nil {
		tel, err := driverbase.NewTelemetry(context.Background(), "odbc", driverbase.DriverVersion())
		if err != nil {
			e.logger.Warn("tracing disabled", "error", err)
			tel = driverbase.NopTelemetry()
		}
		e.telemetry, e.ownsTel = tel, true
	}
	return e
}

// Close flushes the traces recorded through the environment. Databases
// created from it remain usable but stop recording spans.
func (e *Env) Close(ctx context.Context) error {
	if !e.ownsTel {
		return nil
	}
	return e.telemetry.Shutdown(ctx)
}

func (e *Env) DriverName() string { return e.driverName }
