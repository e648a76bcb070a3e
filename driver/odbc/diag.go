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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/dbt-labs/xdbc"
)

// SQLSTATE values with special handling.
const (
	sqlStateGeneralWarning     = "01000"
	sqlStateInvalidCursorState = "24000"
)

// DiagRecord is one diagnostic record attached to a failed ODBC call.
type DiagRecord struct {
	SQLState    string
	NativeError int32
	Message     string
}

// DiagField selects a field of a DiagRecord.
type DiagField int8

const (
	DiagMessageText DiagField = iota
	DiagSQLState
	DiagNativeError
)

func (f DiagField) value(rec DiagRecord) string {
	switch f {
	case DiagMessageText:
		return rec.Message
	case DiagSQLState:
		return rec.SQLState
	case DiagNativeError:
		if rec.NativeError == 0 {
			return ""
		}
		return strconv.FormatInt(int64(rec.NativeError), 10)
	}
	return ""
}

// Diagnostic is implemented by driver errors that carry diagnostic records.
type Diagnostic interface {
	DiagRecords() []DiagRecord
}

// DiagExtractor returns the diagnostic records of err, if it recognizes it.
type DiagExtractor func(err error) ([]DiagRecord, bool)

var extractors struct {
	mu  sync.RWMutex
	fns []DiagExtractor
}

// RegisterDiagExtractor teaches the package how to read diagnostic records
// out of the errors of a database/sql driver that does not implement
// Diagnostic.
func RegisterDiagExtractor(fn DiagExtractor) {
	extractors.mu.Lock()
	defer extractors.mu.Unlock()
	extractors.fns = append(extractors.fns, fn)
}

// DiagRecordsOf returns the diagnostic records carried by err, if any.
func DiagRecordsOf(err error) []DiagRecord {
	var d Diagnostic
	if errors.As(err, &d) {
		return d.DiagRecords()
	}
	extractors.mu.RLock()
	defer extractors.mu.RUnlock()
	for _, fn := range extractors.fns {
		if recs, ok := fn(err); ok {
			return recs
		}
	}
	return nil
}

// withDiagnostics converts a driver error into an adbc.Error. The message
// is the formatted context, followed by the text of the first diagnostic
// record and then the selected fields of every other record, one per line.
// The SQLSTATE and native error code come from the first record.
func withDiagnostics(err error, fields []DiagField, status adbc.Status, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		status = adbc.StatusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		status = adbc.StatusTimeout
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, format, args...)
	out := adbc.Error{Code: status}

	records := DiagRecordsOf(err)
	if len(records) == 0 {
		msg.WriteString(": ")
		msg.WriteString(err.Error())
	} else {
		first := records[0]
		if first.Message != "" {
			msg.WriteString(": ")
			msg.WriteString(first.Message)
		}
		out.SqlState = xdbc.SqlState(first.SQLState)
		out.VendorCode = first.NativeError
		for _, rec := range records[1:] {
			for _, f := range fields {
				if v := f.value(rec); v != "" {
					msg.WriteString("\n  ")
					msg.WriteString(v)
				}
			}
		}
	}
	out.Msg = "[" + errHelper.Name + "] " + msg.String()
	return out
}
