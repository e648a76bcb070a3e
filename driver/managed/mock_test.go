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
	"maps"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/dbt-labs/xdbc/driver/internal/driverbase"
)

func notFound(key string) error {
	return adbc.Error{Code: adbc.StatusNotFound, Msg: "[mock] unknown option " + key}
}

type mockDriver struct {
	db      *mockDatabase
	created map[string]string
}

func (d *mockDriver) NewDatabase(opts map[string]string) (adbc.Database, error) {
	d.created = maps.Clone(opts)
	d.db.SetOptions(opts)
	return d.db, nil
}

// mockDatabase records the options it receives and fails Open with the
// queued errors, one per call.
type mockDatabase struct {
	mu       sync.Mutex
	opts     map[string]string
	ints     map[string]int64
	openErrs []error
	opens    int
	closed   bool
	conns    []*mockConnection
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{opts: map[string]string{}, ints: map[string]int64{}}
}

func (m *mockDatabase) SetOptions(opts map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	maps.Copy(m.opts, opts)
	return nil
}

func (m *mockDatabase) SetOption(key, value string) error {
	return m.SetOptions(map[string]string{key: value})
}

func (m *mockDatabase) SetOptionBytes(key string, value []byte) error {
	return adbc.Error{Code: adbc.StatusNotImplemented, Msg: "[mock] bytes options"}
}

func (m *mockDatabase) SetOptionInt(key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ints[key] = value
	return nil
}

func (m *mockDatabase) SetOptionDouble(key string, value float64) error {
	return adbc.Error{Code: adbc.StatusNotImplemented, Msg: "[mock] double options"}
}

func (m *mockDatabase) GetOption(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.opts[key]; ok {
		return v, nil
	}
	return "", notFound(key)
}

func (m *mockDatabase) GetOptionBytes(key string) ([]byte, error) { return nil, notFound(key) }

func (m *mockDatabase) GetOptionInt(key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.ints[key]; ok {
		return v, nil
	}
	return 0, notFound(key)
}

func (m *mockDatabase) GetOptionDouble(key string) (float64, error) { return 0, notFound(key) }

func (m *mockDatabase) option(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts[key]
}

func (m *mockDatabase) Open(ctx context.Context) (adbc.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens++
	if len(m.openErrs) > 0 {
		err := m.openErrs[0]
		m.openErrs = m.openErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	conn := &mockConnection{opts: map[string]string{}}
	m.conns = append(m.conns, conn)
	return conn, nil
}

func (m *mockDatabase) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockDatabase) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

type mockConnection struct {
	adbc.Connection

	opts      map[string]string
	closed    bool
	cancelled bool
}

func (c *mockConnection) SetOption(key, value string) error {
	c.opts[key] = value
	return nil
}

func (c *mockConnection) GetInfo(_ context.Context, codes []adbc.InfoCode) (array.RecordReader, error) {
	return driverbase.DefaultDriverInfo("MockDB").GetInfo(memory.DefaultAllocator, codes)
}

func (c *mockConnection) NewStatement() (adbc.Statement, error) {
	return &mockStatement{}, nil
}

func (c *mockConnection) Cancel() error {
	c.cancelled = true
	return nil
}

func (c *mockConnection) Close() error {
	c.closed = true
	return nil
}

type mockStatement struct {
	adbc.Statement

	query  string
	closes int
}

func (s *mockStatement) SetSqlQuery(query string) error {
	s.query = query
	return nil
}

func (s *mockStatement) ExecuteUpdate(context.Context) (int64, error) {
	if s.query == "" {
		return -1, adbc.Error{Code: adbc.StatusInvalidState, Msg: "[mock] no query"}
	}
	return 7, nil
}

func (s *mockStatement) Close() error {
	s.closes++
	return nil
}
