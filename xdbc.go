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

// Package xdbc is a uniform access layer over warehouse drivers that speak
// either ADBC (Arrow Database Connectivity) or ODBC.
//
// A Backend plus a list of typed options produces a Database; a Database
// produces Connections; a Connection produces Statements, and executing a
// Statement yields an Arrow array.RecordReader. The concrete
// implementations live in the driver/managed (ADBC) and driver/odbc (ODBC)
// packages, and drivermgr resolves a Backend to the right one.
//
// All errors produced by this module are adbc.Error values so that callers
// can branch on the status code, the SQLSTATE and the vendor code the same
// way regardless of the underlying protocol.
package xdbc

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
)

// Protocol is the client API a backend's driver speaks.
type Protocol int8

const (
	ProtocolADBC Protocol = iota
	ProtocolODBC
)

func (p Protocol) String() string {
	switch p {
	case ProtocolADBC:
		return "ADBC"
	case ProtocolODBC:
		return "ODBC"
	}
	return fmt.Sprintf("Protocol(%d)", int8(p))
}

// BackendKind enumerates the warehouse/driver families known to xdbc.
type BackendKind int8

const (
	KindSnowflake BackendKind = iota
	KindBigQuery
	KindPostgres
	KindDatabricks
	KindRedshift
	KindDatabricksODBC
	KindRedshiftODBC
	KindGeneric
)

// Backend identifies the target warehouse and the driver family used to
// reach it. Backend values are comparable and can be used as map keys.
type Backend struct {
	Kind BackendKind
	// LibraryName and EntrypointName are only meaningful for KindGeneric.
	LibraryName    string
	EntrypointName string
}

var (
	Snowflake      = Backend{Kind: KindSnowflake}
	BigQuery       = Backend{Kind: KindBigQuery}
	Postgres       = Backend{Kind: KindPostgres}
	Databricks     = Backend{Kind: KindDatabricks}
	Redshift       = Backend{Kind: KindRedshift}
	DatabricksODBC = Backend{Kind: KindDatabricksODBC}
	RedshiftODBC   = Backend{Kind: KindRedshiftODBC}
)

// Generic returns a backend loaded from an arbitrary ADBC driver library.
// An empty entrypoint lets the driver manager derive it from the library name.
func Generic(libraryName, entrypoint string) Backend {
	return Backend{Kind: KindGeneric, LibraryName: libraryName, EntrypointName: entrypoint}
}

func (b Backend) String() string {
	switch b.Kind {
	case KindSnowflake:
		return "Snowflake"
	case KindBigQuery:
		return "BigQuery"
	case KindPostgres:
		return "PostgreSQL"
	case KindDatabricks, KindDatabricksODBC:
		return "Databricks"
	case KindRedshift, KindRedshiftODBC:
		return "Redshift"
	case KindGeneric:
		return "Generic(" + b.LibraryName + ")"
	}
	return fmt.Sprintf("Backend(%d)", int8(b.Kind))
}

// Protocol returns the client API used to talk to the backend.
func (b Backend) Protocol() Protocol {
	switch b.Kind {
	case KindDatabricksODBC, KindRedshiftODBC:
		return ProtocolODBC
	default:
		return ProtocolADBC
	}
}

// Library returns the name of the ADBC driver library for the backend, or
// the empty string for ODBC backends.
func (b Backend) Library() string {
	switch b.Kind {
	case KindSnowflake:
		return "adbc_driver_snowflake"
	case KindBigQuery:
		return "adbc_driver_bigquery"
	case KindPostgres, KindRedshift:
		return "adbc_driver_postgresql"
	case KindDatabricks:
		return "adbc_driver_databricks"
	case KindGeneric:
		return b.LibraryName
	}
	return ""
}

// Entrypoint returns the driver initialization symbol, if the backend
// requires a non-default one.
func (b Backend) Entrypoint() string {
	switch b.Kind {
	case KindSnowflake:
		return "SnowflakeDriverInit"
	case KindGeneric:
		return b.EntrypointName
	}
	return ""
}

// ParseBackend parses a backend name as found in configuration files.
// Generic backends are written as "generic:<library>[:<entrypoint>]".
func ParseBackend(name string) (Backend, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	switch lower {
	case "snowflake":
		return Snowflake, nil
	case "bigquery":
		return BigQuery, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "databricks":
		return Databricks, nil
	case "redshift":
		return Redshift, nil
	case "databricks_odbc", "databricks-odbc":
		return DatabricksODBC, nil
	case "redshift_odbc", "redshift-odbc":
		return RedshiftODBC, nil
	}
	if rest, ok := strings.CutPrefix(strings.TrimSpace(name), "generic:"); ok && rest != "" {
		lib, entrypoint, _ := strings.Cut(rest, ":")
		return Generic(lib, entrypoint), nil
	}
	return Backend{}, Errorf(adbc.StatusInvalidArgument, "unknown backend '%s'", name)
}

// DatabaseInfo exposes the driver metadata of a database.
type DatabaseInfo interface {
	// GetInfo returns the value reported by the driver for a single info
	// code as a one-element array.
	GetInfo(ctx context.Context, code adbc.InfoCode) (arrow.Array, error)
}

// Database holds state shared by multiple connections: configuration and
// whatever caches the driver keeps. It is safe for concurrent use.
type Database interface {
	DatabaseInfo

	Backend() Backend
	NewConnection(ctx context.Context) (Connection, error)
	NewConnectionWithOptions(ctx context.Context, opts []Option) (Connection, error)

	SetOption(key OptionKey, value OptionValue) error
	GetOptionString(key OptionKey) (string, error)
	GetOptionBytes(key OptionKey) ([]byte, error)
	GetOptionInt(key OptionKey) (int64, error)
	GetOptionDouble(key OptionKey) (float64, error)

	Close() error
}

// Connection is a single session with the warehouse. Connections are not
// required to be safe for concurrent use.
type Connection interface {
	Backend() Backend
	NewStatement(ctx context.Context) (Statement, error)
	// GetInfo returns the driver metadata for the given codes. An empty
	// list asks for every code the driver supports.
	GetInfo(ctx context.Context, codes []adbc.InfoCode) (array.RecordReader, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Cancel is best effort and may be called at any time.
	Cancel() error
	Close() error
}

// Statement is a container for a single query.
type Statement interface {
	SetSqlQuery(query string) error
	Prepare(ctx context.Context) error
	// ExecuteQuery runs the query and returns a reader over the results.
	ExecuteQuery(ctx context.Context) (array.RecordReader, error)
	// ExecuteUpdate runs the query and returns the number of rows affected,
	// or -1 if unknown.
	ExecuteUpdate(ctx context.Context) (int64, error)
	Cancel() error
	Close() error
}
