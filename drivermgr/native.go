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

package drivermgr

import (
	"github.com/apache/arrow-adbc/go/adbc"
	adbcdrivermgr "github.com/apache/arrow-adbc/go/adbc/drivermgr"
)

// NativeAvailable reports whether drivers can be loaded from shared
// libraries.
const NativeAvailable = true

func nativeDriver() (adbc.Driver, error) {
	return adbcdrivermgr.Driver{}, nil
}
