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

package xdbc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/snowflakedb/gosnowflake"
)

// ErrorHelper formats adbc.Error values tagged with a component name.
type ErrorHelper struct {
	Name string
}

func (h ErrorHelper) Errorf(code adbc.Status, message string, args ...any) error {
	msg := fmt.Sprintf(message, args...)
	if h.Name != "" {
		msg = fmt.Sprintf("[%s] %s", h.Name, msg)
	}
	return adbc.Error{Code: code, Msg: msg}
}

func (h ErrorHelper) InvalidArgument(message string, args ...any) error {
	return h.Errorf(adbc.StatusInvalidArgument, message, args...)
}

func (h ErrorHelper) InvalidState(message string, args ...any) error {
	return h.Errorf(adbc.StatusInvalidState, message, args...)
}

func (h ErrorHelper) InvalidData(message string, args ...any) error {
	return h.Errorf(adbc.StatusInvalidData, message, args...)
}

func (h ErrorHelper) NotImplemented(message string, args ...any) error {
	return h.Errorf(adbc.StatusNotImplemented, message, args...)
}

func (h ErrorHelper) Internal(message string, args ...any) error {
	return h.Errorf(adbc.StatusInternal, message, args...)
}

func (h ErrorHelper) IO(message string, args ...any) error {
	return h.Errorf(adbc.StatusIO, message, args...)
}

// Wrap converts err into an adbc.Error with the given default status. An
// error that already is an adbc.Error is returned untouched; otherwise any
// SQLSTATE and vendor code found on err are carried over and err stays
// reachable through errors.Is and errors.As.
func (h ErrorHelper) Wrap(err error, defaultStatus adbc.Status, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) {
		return err
	}

	status := defaultStatus
	switch {
	case errors.Is(err, context.Canceled):
		status = adbc.StatusCancelled
	case errors.Is(err, context.DeadlineExceeded):
		status = adbc.StatusTimeout
	}

	out := h.Errorf(status, "%s: %v", fmt.Sprintf(format, args...), err).(adbc.Error)
	out.VendorCode = VendorCodeOf(err)
	if state := SqlStateOf(err); state != "" {
		out.SqlState = SqlState(state)
	}
	return &wrappedError{err: out, cause: err}
}

// wrappedError is an adbc.Error that keeps the error it was built from
// reachable. Its message already includes the cause.
type wrappedError struct {
	err   adbc.Error
	cause error
}

func (e *wrappedError) Error() string   { return e.err.Error() }
func (e *wrappedError) Unwrap() []error { return []error{e.err, e.cause} }

var defaultHelper = ErrorHelper{Name: "xdbc"}

// Errorf builds an adbc.Error with the given status.
func Errorf(code adbc.Status, message string, args ...any) error {
	return defaultHelper.Errorf(code, message, args...)
}

// SqlState packs a SQLSTATE string into the fixed-size form used by
// adbc.Error. Longer strings are truncated, shorter ones NUL padded.
func SqlState(state string) (out [5]byte) {
	copy(out[:], state)
	return
}

// SqlStateOf returns the 5-character SQLSTATE carried by err, or the empty
// string if there is none.
func SqlStateOf(err error) string {
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) && adbcErr.SqlState[0] != 0 {
		return strings.TrimRight(string(adbcErr.SqlState[:]), "\x00")
	}
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		return sfErr.SQLState
	}
	return ""
}

// VendorCodeOf returns the vendor-specific error code carried by err, or 0.
func VendorCodeOf(err error) int32 {
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) && adbcErr.VendorCode != 0 {
		return adbcErr.VendorCode
	}
	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		return int32(sfErr.Number)
	}
	return 0
}

// StatusOf returns the ADBC status of err, or adbc.StatusUnknown for errors
// that do not come from an ADBC driver.
func StatusOf(err error) adbc.Status {
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) {
		return adbcErr.Code
	}
	return adbc.StatusUnknown
}
