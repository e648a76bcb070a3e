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

// Package managed wraps ADBC vendor databases with the connection
// management xdbc needs on top of them.
//
// A managed Database serializes option changes against connection creation
// with a readers-writer lock. Connection attempts normally share the lock;
// the exclusive path is only taken for the first attempt, after a failed
// attempt, or when a pre-connection hook (the Snowflake OAuth token
// refresh) produced database options that have to be applied. A single
// retry papers over Snowflake invalidating a cached ID token between uses.
package managed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/driver/internal/driverbase"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

var errHelper = xdbc.ErrorHelper{Name: "managed"}

// Options consumed by this package and never forwarded to the driver.
var localOptions = map[string]struct{}{
	xdbc.SnowflakeClientID:     {},
	xdbc.SnowflakeClientSecret: {},
	xdbc.SnowflakeRefreshToken: {},
}

// Options that configure the token refresher.
var refresherOptions = map[string]struct{}{
	xdbc.SnowflakeClientID:     {},
	xdbc.SnowflakeClientSecret: {},
	xdbc.SnowflakeRefreshToken: {},
	xdbc.SnowflakeAccount:      {},
}

type config struct {
	sem           *semaphore.Weighted
	logger        *slog.Logger
	httpClient    *http.Client
	tokenURL      func(account string) string
	meterProvider metric.MeterProvider
	telemetry     *driverbase.Telemetry
}

type DatabaseOption func(*config)

// WithSemaphore limits the number of statements open at once across all
// connections of the database. Databases may share a semaphore.
func WithSemaphore(sem *semaphore.Weighted) DatabaseOption {
	return func(c *config) { c.sem = sem }
}

func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(c *config) { c.logger = logger }
}

// WithHTTPClient sets the client used for OAuth token refreshes.
func WithHTTPClient(client *http.Client) DatabaseOption {
	return func(c *config) { c.httpClient = client }
}

// WithTokenURL overrides how the OAuth token endpoint is derived from the
// account name. Defaults to SnowflakeTokenURL.
func WithTokenURL(f func(account string) string) DatabaseOption {
	return func(c *config) { c.tokenURL = f }
}

func WithMeterProvider(mp metric.MeterProvider) DatabaseOption {
	return func(c *config) { c.meterProvider = mp }
}

func WithTelemetry(t *driverbase.Telemetry) DatabaseOption {
	return func(c *config) { c.telemetry = t }
}

// Database is a managed ADBC database. It is safe for concurrent use.
//
// The vendor database stays open while the Database or any connection
// created from it is open.
type Database struct {
	backend xdbc.Backend

	lock upgradableLock
	// guarded by lock
	vendor    adbc.Database
	known     []xdbc.Option
	refresher *TokenRefresher

	connAttempts    atomic.Int64
	lastConnSuccess atomic.Int64

	sem        *semaphore.Weighted
	logger     *slog.Logger
	telemetry  *driverbase.Telemetry
	ownsTel    bool
	ins        *instruments
	httpClient *http.Client
	tokenURL   func(string) string

	refs      atomic.Int64
	closeOnce sync.Once
	// set under lock so an attempt holding it either finishes first or
	// sees the handle closed
	closed atomic.Bool

	// test hooks
	connectFault      func() error
	sharedConnects    atomic.Int64
	exclusiveConnects atomic.Int64
}

var _ xdbc.Database = (*Database)(nil)

// NewDatabase creates a vendor database from drv and wraps it. String
// options are passed to drv.NewDatabase, the others are set on the new
// database through the typed ADBC setters.
func NewDatabase(backend xdbc.Backend, drv adbc.Driver, opts []xdbc.Option, dbOpts ...DatabaseOption) (*Database, error) {
	cfg := config{}
	for _, opt := range dbOpts {
		opt(&cfg)
	}
	if cfg.meterProvider == nil {
		cfg.meterProvider = otel.GetMeterProvider()
	}
	ins, err := newInstruments(cfg.meterProvider, backend.String())
	if err != nil {
		return nil, errHelper.Wrap(err, adbc.StatusInternal, "creating metric instruments")
	}
	ownsTelemetry := false
	if cfg.telemetry == nil {
		tel, err := driverbase.NewTelemetry(context.Background(), backend.String(), driverbase.DriverVersion())
		if err != nil {
			return nil, errHelper.Wrap(err, adbc.StatusInvalidArgument, "setting up tracing")
		}
		cfg.telemetry, ownsTelemetry = tel, true
	}
	fail := func(err error) (*Database, error) {
		if ownsTelemetry {
			_ = cfg.telemetry.Shutdown(context.Background())
		}
		return nil, err
	}

	forwarded := make([]xdbc.Option, 0, len(opts))
	for _, o := range opts {
		if !isLocal(o.Key) {
			forwarded = append(forwarded, o)
		}
	}
	strs, typed := xdbc.SplitOptions(forwarded)
	vendor, err := drv.NewDatabase(strs)
	if err != nil {
		return fail(errHelper.Wrap(err, adbc.StatusInternal, "creating %s database", backend))
	}
	for _, o := range typed {
		if err := setDatabaseOption(vendor, o); err != nil {
			_ = vendor.Close()
			return fail(err)
		}
	}

	db := &Database{
		backend:    backend,
		vendor:     vendor,
		known:      slices.Clone(opts),
		sem:        cfg.sem,
		logger:     driverbase.LoggerOrNil(cfg.logger),
		telemetry:  cfg.telemetry,
		ownsTel:    ownsTelemetry,
		ins:        ins,
		httpClient: cfg.httpClient,
		tokenURL:   cfg.tokenURL,
	}
	db.lastConnSuccess.Store(-1)
	db.refs.Store(1)
	db.refresher = TokenRefresherFor(backend, db.known, db.tokenURL, db.httpClient)
	if db.refresher != nil {
		db.logger.Debug("oauth token refresh enabled", "backend", backend.String(), "token_url", db.refresher.TokenURL())
	}
	return db, nil
}

func isLocal(key xdbc.OptionKey) bool {
	if !key.IsNamed() {
		return false
	}
	_, ok := localOptions[key.Name()]
	return ok
}

func setDatabaseOption(db adbc.Database, o xdbc.Option) error {
	if setter, ok := db.(adbc.PostInitOptions); ok {
		return xdbc.SetTypedOption(setter, o)
	}
	if s, ok := o.Value.Str(); ok {
		return db.SetOptions(map[string]string{o.Key.Name(): s})
	}
	return errHelper.NotImplemented("driver does not support %s option '%s'", o.Value.Kind(), o.Key.Name())
}

func (d *Database) Backend() xdbc.Backend { return d.backend }

func (d *Database) NewConnection(ctx context.Context) (xdbc.Connection, error) {
	return d.NewConnectionWithOptions(ctx, nil)
}

// NewConnectionWithOptions opens a connection and applies opts to it. If
// Snowflake reports that its cached ID token became invalid, the attempt is
// repeated once; every other error is returned as is.
func (d *Database) NewConnectionWithOptions(ctx context.Context, opts []xdbc.Option) (xdbc.Connection, error) {
	ctx, span := d.telemetry.StartSpan(ctx, "NewConnection",
		trace.WithAttributes(attribute.String("xdbc.backend", d.backend.String())))
	defer span.End()

	conn, err := d.tryNewConnectionOnce(ctx, slices.Clone(opts))
	if err != nil && d.retryable(err) {
		d.logger.DebugContext(ctx, "retrying connection after invalid ID token",
			"backend", d.backend.String(), "error", err)
		d.ins.retry(ctx)
		span.AddEvent("retry")
		conn, err = d.tryNewConnectionOnce(ctx, slices.Clone(opts))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return conn, nil
}

func (d *Database) retryable(err error) bool {
	return d.backend == xdbc.Snowflake &&
		xdbc.VendorCodeOf(err) == xdbc.SnowflakeInvalidIDTokenCode &&
		xdbc.SqlStateOf(err) == xdbc.SnowflakeInvalidIDTokenSqlState
}

func (d *Database) tryNewConnectionOnce(ctx context.Context, connOpts []xdbc.Option) (*Connection, error) {
	guard := d.lock.UpgradableRLock()
	defer guard.Release()
	if d.closed.Load() {
		return nil, errHelper.InvalidState("database is closed")
	}

	// Go exclusive for the first attempt and for any attempt that does not
	// directly follow a success.
	attempt := d.connAttempts.Add(1) - 1
	last := d.lastConnSuccess.Load()
	if last == -1 || last+1 < attempt {
		guard.Upgrade()
	}

	dbOpts, err := d.willOpenConnection(ctx)
	if err != nil {
		d.ins.failure(ctx)
		return nil, err
	}
	if len(dbOpts) > 0 {
		guard.Upgrade()
		for _, o := range dbOpts {
			if err := setDatabaseOption(d.vendor, o); err != nil {
				d.ins.failure(ctx)
				return nil, err
			}
		}
	}

	if guard.Exclusive() {
		d.exclusiveConnects.Add(1)
	} else {
		d.sharedConnects.Add(1)
	}
	d.ins.attempt(ctx, guard.Exclusive())
	d.logger.DebugContext(ctx, "opening connection",
		"backend", d.backend.String(), "attempt", attempt, "exclusive", guard.Exclusive())

	if d.connectFault != nil {
		if err := d.connectFault(); err != nil {
			d.ins.failure(ctx)
			return nil, err
		}
	}
	vendorConn, err := d.open(ctx, connOpts)
	if err != nil {
		d.ins.failure(ctx)
		return nil, err
	}

	guard.Upgrade()
	d.lastConnSuccess.Store(d.connAttempts.Load() - 1)
	return d.newConnection(ctx, vendorConn), nil
}

// willOpenConnection runs the pre-connection hooks and returns the database
// options they want set before connecting. It must not touch d.lock: the
// caller already holds it.
func (d *Database) willOpenConnection(ctx context.Context) ([]xdbc.Option, error) {
	if d.refresher == nil {
		return nil, nil
	}
	ctx, span := d.telemetry.StartSpan(ctx, "RefreshAuthToken")
	defer span.End()

	d.ins.refresh(ctx)
	token, err := d.refresher.RefreshedAuthToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	d.logger.DebugContext(ctx, "refreshed oauth access token", "backend", d.backend.String())
	return []xdbc.Option{xdbc.StringOption(xdbc.SnowflakeAuthToken, token)}, nil
}

func (d *Database) open(ctx context.Context, connOpts []xdbc.Option) (adbc.Connection, error) {
	conn, err := d.vendor.Open(ctx)
	if err != nil {
		return nil, err
	}
	if len(connOpts) == 0 {
		return conn, nil
	}
	setter, ok := conn.(adbc.PostInitOptions)
	if !ok {
		_ = conn.Close()
		return nil, errHelper.NotImplemented("%s connections do not accept options", d.backend)
	}
	for _, o := range connOpts {
		if err := xdbc.SetTypedOption(setter, o); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (d *Database) newConnection(ctx context.Context, conn adbc.Connection) *Connection {
	d.refs.Add(1)
	c := &Connection{db: d, conn: conn, id: uuid.New()}
	d.logger.DebugContext(ctx, "connection opened", "backend", d.backend.String(), "connection_id", c.id.String())
	return c
}

// GetInfo opens a connection and asks it for the value of code.
func (d *Database) GetInfo(ctx context.Context, code adbc.InfoCode) (arrow.Array, error) {
	conn, err := d.NewConnection(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	d.lock.RLock()
	defer d.lock.RUnlock()
	return xdbc.ConnectionInfo(ctx, conn, code)
}

// SetOption changes a database option. Options that configure the token
// refresher rebuild it.
func (d *Database) SetOption(key xdbc.OptionKey, value xdbc.OptionValue) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	o := xdbc.Option{Key: key, Value: value}
	if !isLocal(key) {
		if err := setDatabaseOption(d.vendor, o); err != nil {
			return err
		}
	}
	d.known = append(d.known, o)
	if _, ok := refresherOptions[key.Name()]; ok && key.IsNamed() {
		d.refresher = TokenRefresherFor(d.backend, d.known, d.tokenURL, d.httpClient)
	}
	return nil
}

func (d *Database) localOption(key xdbc.OptionKey) (xdbc.OptionValue, error) {
	v, ok := xdbc.LookupOption(d.known, key)
	if !ok {
		return xdbc.OptionValue{}, errHelper.Errorf(adbc.StatusNotFound, "option '%s' is not set", key.Name())
	}
	return v, nil
}

func (d *Database) vendorGetter(key xdbc.OptionKey) (adbc.GetSetOptions, error) {
	getter, ok := d.vendor.(adbc.GetSetOptions)
	if !ok {
		return nil, errHelper.NotImplemented("%s databases do not report option '%s'", d.backend, key.Name())
	}
	return getter, nil
}

func wrongKind(key xdbc.OptionKey, v xdbc.OptionValue) error {
	return errHelper.InvalidArgument("option '%s' holds a %s value", key.Name(), v.Kind())
}

func (d *Database) GetOptionString(key xdbc.OptionKey) (string, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if isLocal(key) {
		v, err := d.localOption(key)
		if err != nil {
			return "", err
		}
		return v.AsString()
	}
	getter, err := d.vendorGetter(key)
	if err != nil {
		return "", err
	}
	return getter.GetOption(key.Name())
}

func (d *Database) GetOptionBytes(key xdbc.OptionKey) ([]byte, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if isLocal(key) {
		v, err := d.localOption(key)
		if err != nil {
			return nil, err
		}
		if b, ok := v.Bytes(); ok {
			return b, nil
		}
		if s, ok := v.Str(); ok {
			return []byte(s), nil
		}
		return nil, wrongKind(key, v)
	}
	getter, err := d.vendorGetter(key)
	if err != nil {
		return nil, err
	}
	return getter.GetOptionBytes(key.Name())
}

func (d *Database) GetOptionInt(key xdbc.OptionKey) (int64, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if isLocal(key) {
		v, err := d.localOption(key)
		if err != nil {
			return 0, err
		}
		if i, ok := v.Int(); ok {
			return i, nil
		}
		return 0, wrongKind(key, v)
	}
	getter, err := d.vendorGetter(key)
	if err != nil {
		return 0, err
	}
	return getter.GetOptionInt(key.Name())
}

func (d *Database) GetOptionDouble(key xdbc.OptionKey) (float64, error) {
	d.lock.RLock()
	defer d.lock.RUnlock()
	if isLocal(key) {
		v, err := d.localOption(key)
		if err != nil {
			return 0, err
		}
		if f, ok := v.Double(); ok {
			return f, nil
		}
		return 0, wrongKind(key, v)
	}
	getter, err := d.vendorGetter(key)
	if err != nil {
		return 0, err
	}
	return getter.GetOptionDouble(key.Name())
}

// Close releases the handle. No connections can be opened from it
// afterwards. The vendor database is closed once the last connection
// created from it is closed as well.
func (d *Database) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.lock.Lock()
		d.closed.Store(true)
		d.lock.Unlock()
		err = d.release()
	})
	return err
}

func (d *Database) release() error {
	if d.refs.Add(-1) > 0 {
		return nil
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.logger.Debug("closing database", "backend", d.backend.String())
	err := d.vendor.Close()
	if d.ownsTel {
		err = errors.Join(err, d.telemetry.Shutdown(context.Background()))
	}
	return err
}
