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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/dbt-labs/xdbc/driver/managed"

	lockAttr   = attribute.Key("xdbc.lock")
	backendKey = attribute.Key("xdbc.backend")
)

type instruments struct {
	attempts  metric.Int64Counter
	retries   metric.Int64Counter
	failures  metric.Int64Counter
	refreshes metric.Int64Counter
	backend   attribute.KeyValue
}

func newInstruments(mp metric.MeterProvider, backend string) (*instruments, error) {
	meter := mp.Meter(meterName)
	var (
		ins = &instruments{backend: backendKey.String(backend)}
		err error
	)
	if ins.attempts, err = meter.Int64Counter("xdbc.connection.attempts",
		metric.WithDescription("Connection attempts made against the driver.")); err != nil {
		return nil, err
	}
	if ins.retries, err = meter.Int64Counter("xdbc.connection.retries",
		metric.WithDescription("Connection attempts repeated after a transient error.")); err != nil {
		return nil, err
	}
	if ins.failures, err = meter.Int64Counter("xdbc.connection.failures",
		metric.WithDescription("Connection attempts that failed.")); err != nil {
		return nil, err
	}
	if ins.refreshes, err = meter.Int64Counter("xdbc.token.refreshes",
		metric.WithDescription("OAuth access tokens requested before connecting.")); err != nil {
		return nil, err
	}
	return ins, nil
}

func (i *instruments) attempt(ctx context.Context, exclusive bool) {
	lock := "shared"
	if exclusive {
		lock = "exclusive"
	}
	i.attempts.Add(ctx, 1, metric.WithAttributes(i.backend, lockAttr.String(lock)))
}

func (i *instruments) retry(ctx context.Context) {
	i.retries.Add(ctx, 1, metric.WithAttributes(i.backend))
}

func (i *instruments) failure(ctx context.Context) {
	i.failures.Add(ctx, 1, metric.WithAttributes(i.backend))
}

func (i *instruments) refresh(ctx context.Context) {
	i.refreshes.Add(ctx, 1, metric.WithAttributes(i.backend))
}
