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

// Package driverbase holds the plumbing shared by the xdbc drivers: driver
// metadata and GetInfo replies, logger defaults and OpenTelemetry setup.
package driverbase

import (
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	UnknownVersion               = "(unknown or development build)"
	DefaultInfoDriverADBCVersion = adbc.AdbcVersion1_1_0
)

var (
	infoDriverVersion      = UnknownVersion
	infoDriverArrowVersion = UnknownVersion
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, dep := range info.Deps {
		switch {
		case dep.Path == "github.com/dbt-labs/xdbc":
			infoDriverVersion = dep.Version
		case strings.HasPrefix(dep.Path, "github.com/apache/arrow-go/"):
			infoDriverArrowVersion = dep.Version
		}
	}
	if info.Main.Path == "github.com/dbt-labs/xdbc" && info.Main.Version != "" {
		infoDriverVersion = info.Main.Version
	}
}

var infoValueTypeCodeForInfoCode = map[adbc.InfoCode]adbc.InfoValueTypeCode{
	adbc.InfoVendorName:         adbc.InfoValueStringType,
	adbc.InfoVendorVersion:      adbc.InfoValueStringType,
	adbc.InfoVendorArrowVersion: adbc.InfoValueStringType,
	adbc.InfoDriverName:         adbc.InfoValueStringType,
	adbc.InfoDriverVersion:      adbc.InfoValueStringType,
	adbc.InfoDriverArrowVersion: adbc.InfoValueStringType,
	adbc.InfoDriverADBCVersion:  adbc.InfoValueInt64Type,
	adbc.InfoVendorSql:          adbc.InfoValueBooleanType,
	adbc.InfoVendorSubstrait:    adbc.InfoValueBooleanType,
}

const otelInfoSemConv attribute.Key = "xdbc.info."

var otelAttrForInfoCode = map[adbc.InfoCode]attribute.Key{
	adbc.InfoVendorName:         otelInfoSemConv + "vendor.name",
	adbc.InfoVendorVersion:      otelInfoSemConv + "vendor.version",
	adbc.InfoVendorArrowVersion: otelInfoSemConv + "vendor.arrow.version",
	adbc.InfoVendorSql:          otelInfoSemConv + "vendor.sql",
	adbc.InfoDriverName:         otelInfoSemConv + "driver.name",
	adbc.InfoDriverVersion:      otelInfoSemConv + "driver.version",
	adbc.InfoDriverArrowVersion: otelInfoSemConv + "driver.arrow.version",
	adbc.InfoDriverADBCVersion:  otelInfoSemConv + "driver.adbc.version",
}

// DriverInfo is the metadata a driver reports through GetInfo.
type DriverInfo struct {
	name string
	info map[adbc.InfoCode]any
}

// DefaultDriverInfo returns the metadata every driver starts from. The
// vendor name is the given name; versions are taken from the build info.
func DefaultDriverInfo(name string) *DriverInfo {
	return &DriverInfo{
		name: name,
		info: map[adbc.InfoCode]any{
			adbc.InfoVendorName:         name,
			adbc.InfoVendorVersion:      UnknownVersion,
			adbc.InfoVendorArrowVersion: UnknownVersion,
			adbc.InfoVendorSql:          true,
			adbc.InfoVendorSubstrait:    false,
			adbc.InfoDriverName:         fmt.Sprintf("xdbc %s Driver - Go", name),
			adbc.InfoDriverVersion:      infoDriverVersion,
			adbc.InfoDriverArrowVersion: infoDriverArrowVersion,
			adbc.InfoDriverADBCVersion:  DefaultInfoDriverADBCVersion,
		},
	}
}

// DriverVersion is the version of this module as recorded in the build info.
func DriverVersion() string { return infoDriverVersion }

func (di *DriverInfo) GetName() string { return di.name }

// InfoSupportedCodes lists every code with a registered value, sorted.
func (di *DriverInfo) InfoSupportedCodes() []adbc.InfoCode {
	codes := make([]adbc.InfoCode, 0, len(di.info))
	for code := range di.info {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// RegisterInfoCode sets the value of a code. Values of standard codes are
// type checked; vendor codes accept string, int64 and bool.
func (di *DriverInfo) RegisterInfoCode(code adbc.InfoCode, value any) error {
	want, standard := infoValueTypeCodeForInfoCode[code]
	if !standard {
		switch value.(type) {
		case string, int64, bool, nil:
			di.info[code] = value
			return nil
		}
		return fmt.Errorf("info code %d: unsupported info_value type %T", uint32(code), value)
	}

	var ok bool
	switch want {
	case adbc.InfoValueStringType:
		_, ok = value.(string)
	case adbc.InfoValueInt64Type:
		_, ok = value.(int64)
	case adbc.InfoValueBooleanType:
		_, ok = value.(bool)
	}
	if !ok {
		return fmt.Errorf("info code %d: info_value %v has unexpected type %T", uint32(code), value, value)
	}
	di.info[code] = value
	return nil
}

func (di *DriverInfo) GetInfoForInfoCode(code adbc.InfoCode) (any, bool) {
	val, ok := di.info[code]
	return val, ok
}

// GetInfo builds a reply following adbc.GetInfoSchema. Codes without a
// value are returned as nulls; an empty request returns every supported code.
func (di *DriverInfo) GetInfo(alloc memory.Allocator, infoCodes []adbc.InfoCode) (array.RecordReader, error) {
	if alloc == nil {
		alloc = memory.DefaultAllocator
	}
	if len(infoCodes) == 0 {
		infoCodes = di.InfoSupportedCodes()
	}

	bldr := array.NewRecordBuilder(alloc, adbc.GetInfoSchema)
	defer bldr.Release()
	bldr.Reserve(len(infoCodes))

	names := bldr.Field(0).(*array.Uint32Builder)
	values := bldr.Field(1).(*array.DenseUnionBuilder)
	strs := values.Child(int(adbc.InfoValueStringType)).(*array.StringBuilder)
	ints := values.Child(int(adbc.InfoValueInt64Type)).(*array.Int64Builder)
	bools := values.Child(int(adbc.InfoValueBooleanType)).(*array.BooleanBuilder)

	for _, code := range infoCodes {
		names.Append(uint32(code))
		value, ok := di.info[code]
		// nulls need a type; pick string
		if value == nil {
			value, ok = "", false
		}

		switch v := value.(type) {
		case string:
			values.Append(adbc.InfoValueStringType)
			if ok {
				strs.Append(v)
			} else {
				strs.AppendNull()
			}
		case int64:
			values.Append(adbc.InfoValueInt64Type)
			ints.Append(v)
		case bool:
			values.Append(adbc.InfoValueBooleanType)
			bools.Append(v)
		default:
			return nil, fmt.Errorf("no defined type code for info_value of type %T", v)
		}
	}

	rec := bldr.NewRecord()
	defer rec.Release()
	return array.NewRecordReader(adbc.GetInfoSchema, []arrow.Record{rec})
}

// SetOTelDriverInfoAttributes tags span with the standard info values.
func SetOTelDriverInfoAttributes(di *DriverInfo, span trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(otelAttrForInfoCode))
	for _, code := range di.InfoSupportedCodes() {
		key, ok := otelAttrForInfoCode[code]
		if !ok {
			continue
		}
		switch v := di.info[code].(type) {
		case string:
			attrs = append(attrs, key.String(v))
		case bool:
			attrs = append(attrs, key.Bool(v))
		case int64:
			attrs = append(attrs, key.Int64(v))
		}
	}
	span.SetAttributes(attrs...)
}
