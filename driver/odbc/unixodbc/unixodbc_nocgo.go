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

//go:build !cgo

package unixodbc

import (
	xodbc "github.com/dbt-labs/xdbc/driver/odbc"
)

// Available reports whether the native driver manager is linked in.
const Available = false

func Diagnostics(error) ([]xodbc.DiagRecord, bool) { return nil, false }

// NewEnv returns an ODBC environment. Without cgo no driver is registered
// under the default name, so connecting fails unless opts select another.
func NewEnv(opts ...xodbc.EnvOption) *xodbc.Env {
	return xodbc.NewEnv(opts...)
}
