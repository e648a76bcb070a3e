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

	"github.com/apache/arrow-adbc/go/adbc"
)

// diagError is a driver error carrying diagnostic records.
type diagError []DiagRecord

func (e diagError) Error() string {
	msgs := make([]string, len(e))
	for i, r := range e {
		msgs[i] = r.SQLState + ": " + r.Message
	}
	return strings.Join(msgs, "; ")
}

func (e diagError) DiagRecords() []DiagRecord { return e }

// recordingFactory hands out a fixed *sql.DB and remembers the connection
// strings it was asked for.
type recordingFactory struct {
	mu          sync.Mutex
	db          *sql.DB
	err         error
	connStrings []string
}

func (f *recordingFactory) CreateDB(_ context.Context, _, connString string) (*sql.DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connStrings = append(f.connStrings, connString)
	if f.err != nil {
		return nil, f.err
	}
	return f.db, nil
}

func (f *recordingFactory) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connStrings) == 0 {
		return ""
	}
	return f.connStrings[len(f.connStrings)-1]
}

// parseConnString splits "k=v;k=v;" into a map.
func parseConnString(s string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(s, ";") {
		if k, v, ok := strings.Cut(part, "="); ok {
			out[k] = v
		}
	}
	return out
}

// errMsg returns the message of an adbc.Error without the status prefix.
func errMsg(err error) string {
	var adbcErr adbc.Error
	if errors.As(err, &adbcErr) {
		return adbcErr.Msg
	}
	return err.Error()
}
