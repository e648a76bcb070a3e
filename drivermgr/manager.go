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

// Package drivermgr resolves a Backend to the driver that reaches it and
// hands out xdbc databases.
//
// Snowflake and BigQuery use the pure Go ADBC drivers. Every other ADBC
// backend is loaded as a shared library through the native ADBC driver
// manager, which needs cgo. ODBC backends go through the system ODBC driver
// manager. Drivers are loaded once per backend and cached for the life of
// the Manager.
package drivermgr

import (
	"context"
	"log/slog"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/driver/bigquery"
	"github.com/apache/arrow-adbc/go/adbc/driver/snowflake"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/bluele/gcache"
	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/driver/managed"
	"github.com/dbt-labs/xdbc/driver/odbc"
	"github.com/dbt-labs/xdbc/driver/odbc/unixodbc"
	"golang.org/x/sync/semaphore"
)

const (
	// option keys understood by the native driver manager
	optionDriver     = "driver"
	optionEntrypoint = "entrypoint"

	defaultDatabaseCacheSize = 16
	driverCacheSize          = 32
)

var errHelper = xdbc.ErrorHelper{Name: "drivermgr"}

type Option func(*Manager)

func WithAllocator(alloc memory.Allocator) Option {
	return func(m *Manager) { m.alloc = alloc }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithStatementLimit caps the number of statements open at once across
// every ADBC database created by the manager.
func WithStatementLimit(n int64) Option {
	return func(m *Manager) {
		if n > 0 {
			m.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithDatabaseCacheSize sets how many databases Database keeps open.
func WithDatabaseCacheSize(n int) Option {
	return func(m *Manager) { m.cacheSize = n }
}

// WithDriver makes the manager use drv for backend instead of loading one.
func WithDriver(backend xdbc.Backend, drv adbc.Driver) Option {
	return func(m *Manager) { m.overrides[backend] = drv }
}

// WithODBCEnv sets the environment ODBC databases are created in.
// Defaults to the native driver manager.
func WithODBCEnv(env *odbc.Env) Option {
	return func(m *Manager) { m.odbcEnv = env }
}

// WithDatabaseOptions adds options applied to every managed ADBC database.
func WithDatabaseOptions(opts ...managed.DatabaseOption) Option {
	return func(m *Manager) { m.dbOpts = append(m.dbOpts, opts...) }
}

// Manager creates databases for any backend. It is safe for concurrent use.
type Manager struct {
	alloc     memory.Allocator
	logger    *slog.Logger
	sem       *semaphore.Weighted
	cacheSize int
	overrides map[xdbc.Backend]adbc.Driver
	odbcEnv   *odbc.Env
	ownsEnv   bool
	dbOpts    []managed.DatabaseOption

	drivers gcache.Cache

	// serializes Database so one fingerprint opens one database
	mu        sync.Mutex
	databases gcache.Cache
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		alloc:     memory.DefaultAllocator,
		cacheSize: defaultDatabaseCacheSize,
		overrides: make(map[xdbc.Backend]adbc.Driver),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	if m.odbcEnv == nil {
		m.odbcEnv = unixodbc.NewEnv(odbc.WithAllocator(m.alloc), odbc.WithLogger(m.logger))
		m.ownsEnv = true
	}

	m.drivers = gcache.New(driverCacheSize).LRU().
		LoaderFunc(func(key interface{}) (interface{}, error) {
			return m.loadDriver(key.(xdbc.Backend))
		}).Build()

	closeDatabase := func(key, value interface{}) {
		if err := value.(xdbc.Database).Close(); err != nil {
			k := key.(databaseKey)
			m.logger.Warn("failed to close cached database", "backend", k.backend.String(), "fingerprint", k.fp.String(), "error", err)
		}
	}
	m.databases = gcache.New(m.cacheSize).LRU().
		EvictedFunc(closeDatabase).
		PurgeVisitorFunc(closeDatabase).
		Build()
	return m
}

func (m *Manager) loadDriver(backend xdbc.Backend) (adbc.Driver, error) {
	if drv, ok := m.overrides[backend]; ok {
		return drv, nil
	}
	switch backend.Kind {
	case xdbc.KindSnowflake:
		return snowflake.NewDriver(m.alloc), nil
	case xdbc.KindBigQuery:
		return bigquery.NewDriver(m.alloc), nil
	case xdbc.KindDatabricksODBC, xdbc.KindRedshiftODBC:
		return nil, errHelper.InvalidArgument("%s is reached through ODBC and has no ADBC driver", backend)
	}
	if backend.Library() == "" {
		return nil, errHelper.InvalidArgument("backend %s has no driver library", backend)
	}
	return nativeDriver()
}

// Driver returns the ADBC driver of backend, loading it on first use.
func (m *Manager) Driver(backend xdbc.Backend) (adbc.Driver, error) {
	v, err := m.drivers.Get(backend)
	if err != nil {
		return nil, err
	}
	return v.(adbc.Driver), nil
}

// usesNativeManager reports whether backend is loaded from a shared library.
func (m *Manager) usesNativeManager(backend xdbc.Backend) bool {
	if _, ok := m.overrides[backend]; ok {
		return false
	}
	switch backend.Kind {
	case xdbc.KindSnowflake, xdbc.KindBigQuery:
		return false
	}
	return true
}

// NewDatabase creates a database for backend. The caller owns it.
func (m *Manager) NewDatabase(ctx context.Context, backend xdbc.Backend, opts []xdbc.Option) (xdbc.Database, error) {
	if backend.Protocol() == xdbc.ProtocolODBC {
		db, err := odbc.NewDatabase(backend, m.odbcEnv, opts)
		if err != nil {
			return nil, err
		}
		m.logger.DebugContext(ctx, "created ODBC database", "backend", backend.String(), "driver", m.odbcEnv.DriverName())
		return db, nil
	}

	drv, err := m.Driver(backend)
	if err != nil {
		return nil, err
	}
	if m.usesNativeManager(backend) {
		opts = append(nativeOptions(backend), opts...)
	}

	dbOpts := []managed.DatabaseOption{managed.WithLogger(m.logger)}
	if m.sem != nil {
		dbOpts = append(dbOpts, managed.WithSemaphore(m.sem))
	}
	dbOpts = append(dbOpts, m.dbOpts...)
	db, err := managed.NewDatabase(backend, drv, opts, dbOpts...)
	if err != nil {
		return nil, err
	}
	m.logger.DebugContext(ctx, "created ADBC database", "backend", backend.String())
	return db, nil
}

func nativeOptions(backend xdbc.Backend) []xdbc.Option {
	opts := []xdbc.Option{xdbc.StringOption(optionDriver, backend.Library())}
	if ep := backend.Entrypoint(); ep != "" {
		opts = append(opts, xdbc.StringOption(optionEntrypoint, ep))
	}
	return opts
}

// databaseKey identifies a cached database. Equal options select different
// databases on different backends.
type databaseKey struct {
	backend xdbc.Backend
	fp      xdbc.Fingerprint
}

// Database returns the database configured by b, creating it on first use.
// Builders with the same backend and fingerprint share one database. The
// database is borrowed: callers must not close it. The manager closes it
// when it falls out of the cache or when the manager is closed, so a caller
// holding it across many other Database calls should open its own with
// NewDatabase instead.
func (m *Manager) Database(ctx context.Context, b *xdbc.Builder) (xdbc.Database, error) {
	fp := b.Fingerprint()
	key := databaseKey{backend: b.Backend(), fp: fp}

	m.mu.Lock()
	defer m.mu.Unlock()
	if v, err := m.databases.Get(key); err == nil {
		return v.(xdbc.Database), nil
	}
	db, err := m.NewDatabase(ctx, b.Backend(), b.Options())
	if err != nil {
		return nil, err
	}
	if err := m.databases.Set(key, db); err != nil {
		_ = db.Close()
		return nil, errHelper.Internal("caching database: %v", err)
	}
	m.logger.DebugContext(ctx, "cached database", "backend", b.Backend().String(), "fingerprint", fp.String())
	return db, nil
}

// Close closes every cached database.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.databases.Purge()
	m.drivers.Purge()
	if m.ownsEnv {
		return m.odbcEnv.Close(context.Background())
	}
	return nil
}
