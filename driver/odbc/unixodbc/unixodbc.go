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

//go:build cgo

// Package unixodbc connects the ODBC layer to the system driver manager
// (unixODBC, iODBC or the Windows one). Importing it registers the "odbc"
// database/sql driver and teaches the ODBC layer to read its diagnostic
// records.
package unixodbc

import (
	"errors"

	"github.com/alexbrainman/odbc"
	xodbc "github.com/dbt-labs/xdbc/driver/odbc"
)

func init() {
	xodbc.RegisterDiagExtractor(Diagnostics)
}

// Available reports whether the native driver manager is linked in.
const Available = true

// Diagnostics returns the diagnostic records of a driver manager error.
func Diagnostics(err error) ([]xodbc.DiagRecord, bool) {
	var odbcErr *odbc.Error
	if !errors.As(err, &odbcErr) {
		return nil, false
	}
	recs := make([]xodbc.DiagRecord, len(odbcErr.Diag))
	for i, d := range odbcErr.Diag {
		recs[i] = xodbc.DiagRecord{
			SQLState:    d.State,
			NativeError: int32(d.NativeError),
			Message:     d.Message,
		}
	}
	return recs, true
}

// NewEnv returns an ODBC environment bound to the native driver manager.
func NewEnv(opts ...xodbc.EnvOption) *xodbc.Env {
	return xodbc.NewEnv(append([]xodbc.EnvOption{xodbc.WithDriverName(xodbc.DefaultDriverName)}, opts...)...)
}
