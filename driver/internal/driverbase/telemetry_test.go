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

package driverbase

import (
	"context"
	"testing"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/stretchr/testify/require"
)

func TestTelemetryExporterSelection(t *testing.T) {
	ctx := context.Background()

	tel, err := newTelemetry(ctx, "", "test", "v0")
	require.NoError(t, err)
	require.NotNil(t, tel.Tracer)
	require.NoError(t, tel.Shutdown(ctx))

	tel, err = newTelemetry(ctx, "none", "test", "v0")
	require.NoError(t, err)
	_, span := tel.StartSpan(ctx, "noop")
	require.False(t, span.SpanContext().IsValid())
	span.End()

	tel, err = newTelemetry(ctx, "console", "test", "v0")
	require.NoError(t, err)
	_, span = tel.StartSpan(ctx, "console")
	require.True(t, span.SpanContext().IsValid())
	SetOTelDriverInfoAttributes(DefaultDriverInfo("test"), span)
	span.End()
	require.NoError(t, tel.Shutdown(ctx))
	require.NoError(t, tel.Shutdown(ctx))

	_, err = newTelemetry(ctx, "carrier-pigeon", "test", "v0")
	var adbcErr adbc.Error
	require.ErrorAs(t, err, &adbcErr)
	require.Equal(t, adbc.StatusInvalidArgument, adbcErr.Code)
}

func TestLoggerOrNil(t *testing.T) {
	require.NotNil(t, LoggerOrNil(nil))
	require.False(t, LoggerOrNil(nil).Enabled(context.Background(), 8))
}
