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
	"database/sql"
	"sync/atomic"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/dbt-labs/xdbc"
)

const (
	DefaultBatchSize = 1024
	// builders start small and grow; most results are tiny
	initialBatchCapacity = 8
)

// Cursor reads the result of a statement execution in batches of up to the
// statement's batch size. It stops for good after the last batch or the
// first error.
type Cursor struct {
	refCount atomic.Int64

	stmt      *Statement
	rows      *sql.Rows
	schema    *arrow.Schema
	hasData   bool
	id        uint64
	batchSize int

	values []any
	ptrs   []any
	// a row read ahead while typing the result, returned first
	pending []any

	fetchedFirst bool
	done         bool
	cur          arrow.RecordBatch
	err          error
}

var _ array.RecordReader = (*Cursor)(nil)

func newCursor(stmt *Statement, rows *sql.Rows, schema *arrow.Schema, hasData bool, id uint64, batchSize int) *Cursor {
	c := &Cursor{
		stmt:      stmt,
		rows:      rows,
		schema:    schema,
		hasData:   hasData,
		id:        id,
		batchSize: batchSize,
	}
	c.refCount.Store(1)
	n := len(schema.Fields())
	c.values = make([]any, n)
	c.ptrs = make([]any, n)
	for i := range c.values {
		c.ptrs[i] = &c.values[i]
	}
	return c
}

func (c *Cursor) Retain() { c.refCount.Add(1) }

func (c *Cursor) Release() {
	if c.refCount.Add(-1) == 0 {
		c.releaseCurrent()
	}
}

func (c *Cursor) releaseCurrent() {
	if c.cur != nil {
		c.cur.Release()
		c.cur = nil
	}
}

func (c *Cursor) Schema() *arrow.Schema { return c.schema }

func (c *Cursor) Next() bool {
	c.releaseCurrent()
	if !c.hasData || c.done {
		return false
	}
	rec, err := c.fetch()
	if err != nil {
		c.err = err
		c.done = true
		return false
	}
	if rec == nil {
		c.done = true
		return false
	}
	c.cur = rec
	return true
}

func (c *Cursor) RecordBatch() arrow.RecordBatch { return c.cur }

// Record returns the current batch.
//
// Deprecated: use RecordBatch.
func (c *Cursor) Record() arrow.RecordBatch { return c.cur }

func (c *Cursor) Err() error { return c.err }

// fetch reads the next batch. It returns nil once the result is exhausted.
func (c *Cursor) fetch() (arrow.RecordBatch, error) {
	s := c.stmt
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor != c.id {
		return nil, errHelper.InvalidState("cursor is no longer valid")
	}

	bldr := array.NewRecordBuilder(s.conn.env.alloc, c.schema)
	defer bldr.Release()
	columns, err := newColumnBuilders(bldr, initialBatchCapacity)
	if err != nil {
		return nil, err
	}

	n := 0
	for n < c.batchSize {
		if c.pending != nil {
			copy(c.values, c.pending)
			c.pending = nil
		} else if !c.rows.Next() {
			err := c.rows.Err()
			if err == nil {
				break
			}
			err = s.wrap(err, adbc.StatusIO, "failed to fetch rows")
			// some drivers report a statement that produced no result set
			// as an invalid cursor state on the first fetch
			if !c.fetchedFirst && xdbc.SqlStateOf(err) == sqlStateInvalidCursorState {
				break
			}
			return nil, err
		} else if err := c.rows.Scan(c.ptrs...); err != nil {
			return nil, s.wrap(err, adbc.StatusInvalidData, "failed to read row")
		}
		for i, col := range columns {
			if err := col.Append(c.values[i]); err != nil {
				return nil, errHelper.InvalidData("column '%s': %v", c.schema.Field(i).Name, err)
			}
		}
		n++
	}
	if n == 0 {
		return nil, nil
	}
	c.fetchedFirst = true
	return bldr.NewRecord(), nil
}
