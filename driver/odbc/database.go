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
	"strings"
	"sync"
	"time"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/driver/internal/driverbase"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultLoginTimeout bounds how long opening a connection may take.
const DefaultLoginTimeout = 10 * time.Second

// Connection string keys the generic option keys are translated to.
const (
	KeyURI      = "URI"
	KeyUsername = "UID"
	KeyPassword = "PWD"
)

type connOption struct {
	name  string
	value xdbc.OptionValue
}

// connOptionName translates an option key to its connection string key.
func connOptionName(key xdbc.OptionKey) (string, error) {
	switch {
	case key.IsNamed():
		return key.Name(), nil
	case key.IsURI():
		return KeyURI, nil
	case key.IsUsername():
		return KeyUsername, nil
	case key.IsPassword():
		return KeyPassword, nil
	}
	return "", errHelper.InvalidArgument("option '%s' is not supported by ODBC databases", key.Name())
}

func appendConnOption(opts []connOption, o xdbc.Option) ([]connOption, error) {
	name, err := connOptionName(o.Key)
	if err != nil {
		return nil, err
	}
	return append(opts, connOption{name: name, value: o.Value}), nil
}

// Database holds the options shared by the connections of an ODBC backend.
// It is safe for concurrent use.
type Database struct {
	backend xdbc.Backend
	env     *Env
	info    *driverbase.DriverInfo

	mu      sync.RWMutex
	options []connOption
	closed  bool
}

var _ xdbc.Database = (*Database)(nil)

// NewDatabase validates opts and returns a database for backend. No
// connection is made until NewConnection or NewConnectionWithOptions is
// called.
func NewDatabase(backend xdbc.Backend, env *Env, opts []xdbc.Option) (*Database, error) {
	if env == nil {
		env = NewEnv()
	}
	d := &Database{
		backend: backend,
		env:     env,
		info:    newDriverInfo(backend, env),
	}
	for _, o := range opts {
		var err error
		if d.options, err = appendConnOption(d.options, o); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func newDriverInfo(backend xdbc.Backend, env *Env) *driverbase.DriverInfo {
	info := driverbase.DefaultDriverInfo(backend.String())
	// the name is a string, so registration cannot fail
	_ = info.RegisterInfoCode(adbc.InfoDriverName, "xdbc ODBC ("+env.driverName+")")
	return info
}

func (d *Database) Backend() xdbc.Backend { return d.backend }

// NewConnection opens a connection configured by the database options
// alone.
func (d *Database) NewConnection(ctx context.Context) (xdbc.Connection, error) {
	return d.NewConnectionWithOptions(ctx, nil)
}

// ConnectionString renders the database options followed by opts as an
// ODBC connection string. Only string and integer values can be used.
func (d *Database) ConnectionString(opts []xdbc.Option) (string, error) {
	d.mu.RLock()
	all := append([]connOption(nil), d.options...)
	d.mu.RUnlock()
	for _, o := range opts {
		var err error
		if all, err = appendConnOption(all, o); err != nil {
			return "", err
		}
	}
	return connectionString(all)
}

func connectionString(opts []connOption) (string, error) {
	var sb strings.Builder
	for _, o := range opts {
		s, err := o.value.AsString()
		if err != nil {
			return "", errHelper.InvalidArgument("invalid option value type for ODBC driver: %s", o.value.Kind())
		}
		// TODO: escape values containing ';' or braces once a driver needs it
		sb.WriteString(o.name)
		sb.WriteByte('=')
		sb.WriteString(s)
		sb.WriteByte(';')
	}
	return sb.String(), nil
}

func (d *Database) NewConnectionWithOptions(ctx context.Context, opts []xdbc.Option) (xdbc.Connection, error) {
	ctx, span := d.env.telemetry.StartSpan(ctx, "NewConnection")
	defer span.End()
	span.SetAttributes(attribute.String("xdbc.backend", d.backend.String()))

	conn, err := d.connect(ctx, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return conn, nil
}

func (d *Database) connect(ctx context.Context, opts []xdbc.Option) (*Connection, error) {
	d.mu.RLock()
	closed := d.closed
	dbOpts := append([]connOption(nil), d.options...)
	d.mu.RUnlock()
	if closed {
		return nil, errHelper.InvalidState("database is closed")
	}

	connString, err := d.ConnectionString(opts)
	if err != nil {
		return nil, err
	}

	db, sqlConn, err := d.login(ctx, connString, dbOpts)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		backend: d.backend,
		env:     d.env,
		info:    d.info,
		db:      db,
		conn:    sqlConn,
		id:      uuid.New(),
		stmts:   make(map[*Statement]struct{}),
	}
	d.env.logger.DebugContext(ctx, "connection opened", "backend", d.backend.String(), "connection_id", c.id.String())
	return c, nil
}

type login struct {
	db   *sql.DB
	conn *sql.Conn
	err  error
}

// login opens the database/sql handle and its single connection within the
// login timeout. Drivers that ignore the context are not waited on past the
// deadline; whatever they eventually open is closed.
func (d *Database) login(ctx context.Context, connString string, dbOpts []connOption) (*sql.DB, *sql.Conn, error) {
	loginCtx, cancel := context.WithTimeout(ctx, d.env.loginTimeout)
	defer cancel()

	done := make(chan login, 1)
	go func() {
		db, err := d.env.factory.CreateDB(loginCtx, d.env.driverName, connString)
		if err != nil {
			done <- login{err: d.connectError(err, dbOpts)}
			return
		}
		// every connection owns its pool
		db.SetMaxOpenConns(1)
		conn, err := db.Conn(loginCtx)
		if err != nil {
			_ = db.Close()
			done <- login{err: d.connectError(err, dbOpts)}
			return
		}
		done <- login{db: db, conn: conn}
	}()

	select {
	case l := <-done:
		return l.db, l.conn, l.err
	case <-loginCtx.Done():
	}
	go func() {
		if l := <-done; l.err == nil {
			_ = l.conn.Close()
			_ = l.db.Close()
		}
	}()
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil, nil, errHelper.Errorf(adbc.StatusCancelled, "connection cancelled")
	}
	return nil, nil, errHelper.Errorf(adbc.StatusTimeout, "failed to connect: login timed out after %s", d.env.loginTimeout)
}

func (d *Database) connectError(err error, dbOpts []connOption) error {
	err = withDiagnostics(err, d.env.diagFields, adbc.StatusIO, "failed to connect")
	return withDriverHint(err, d.backend, dbOpts)
}

// SetOption adds or replaces an option of future connections.
func (d *Database) SetOption(key xdbc.OptionKey, value xdbc.OptionValue) error {
	name, err := connOptionName(key)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.options {
		if d.options[i].name == name {
			d.options[i].value = value
			return nil
		}
	}
	d.options = append(d.options, connOption{name: name, value: value})
	return nil
}

func (d *Database) lookup(key xdbc.OptionKey) (xdbc.OptionValue, error) {
	name, err := connOptionName(key)
	if err != nil {
		return xdbc.OptionValue{}, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i := len(d.options) - 1; i >= 0; i-- {
		if d.options[i].name == name {
			return d.options[i].value, nil
		}
	}
	return xdbc.OptionValue{}, errHelper.Errorf(adbc.StatusNotFound, "option '%s' is not set", name)
}

func wrongKind(key xdbc.OptionKey, v xdbc.OptionValue, want string) error {
	return errHelper.InvalidArgument("option '%s' holds a %s value, not %s", key.Name(), v.Kind(), want)
}

func (d *Database) GetOptionString(key xdbc.OptionKey) (string, error) {
	v, err := d.lookup(key)
	if err != nil {
		return "", err
	}
	s, err := v.AsString()
	if err != nil {
		return "", wrongKind(key, v, "a string")
	}
	return s, nil
}

func (d *Database) GetOptionBytes(key xdbc.OptionKey) ([]byte, error) {
	v, err := d.lookup(key)
	if err != nil {
		return nil, err
	}
	b, ok := v.Bytes()
	if !ok {
		return nil, wrongKind(key, v, "bytes")
	}
	return b, nil
}

func (d *Database) GetOptionInt(key xdbc.OptionKey) (int64, error) {
	v, err := d.lookup(key)
	if err != nil {
		return 0, err
	}
	i, ok := v.Int()
	if !ok {
		return 0, wrongKind(key, v, "an int")
	}
	return i, nil
}

func (d *Database) GetOptionDouble(key xdbc.OptionKey) (float64, error) {
	v, err := d.lookup(key)
	if err != nil {
		return 0, err
	}
	f, ok := v.Double()
	if !ok {
		return 0, wrongKind(key, v, "a double")
	}
	return f, nil
}

// GetInfo answers from the driver metadata without connecting.
func (d *Database) GetInfo(_ context.Context, code adbc.InfoCode) (arrow.Array, error) {
	rdr, err := d.info.GetInfo(d.env.alloc, []adbc.InfoCode{code})
	if err != nil {
		return nil, errHelper.Internal("failed to get info: %v", err)
	}
	return xdbc.InfoValue(rdr, code)
}

// Close marks the database closed. Open connections are unaffected.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
