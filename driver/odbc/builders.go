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
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"golang.org/x/exp/constraints"
)

// ColumnBuilder appends the values of one result column to an Arrow
// builder. A nil value appends a null.
type ColumnBuilder interface {
	Append(v any) error
}

type appender[T any] interface {
	Append(T)
	AppendNull()
}

type numericColumn[T constraints.Integer | constraints.Float] struct {
	b appender[T]
}

func (c numericColumn[T]) Append(v any) error {
	if v == nil {
		c.b.AppendNull()
		return nil
	}
	n, err := toNumber[T](v)
	if err != nil {
		return err
	}
	c.b.Append(n)
	return nil
}

type boolColumn struct{ b *array.BooleanBuilder }

func (c boolColumn) Append(v any) error {
	if v == nil {
		c.b.AppendNull()
		return nil
	}
	b, err := toBool(v)
	if err != nil {
		return err
	}
	c.b.Append(b)
	return nil
}

type stringColumn struct{ b *array.StringBuilder }

func (c stringColumn) Append(v any) error {
	switch v := v.(type) {
	case nil:
		c.b.AppendNull()
	case string:
		c.b.Append(v)
	case []byte:
		c.b.Append(string(v))
	default:
		c.b.Append(fmt.Sprint(v))
	}
	return nil
}

type binaryColumn struct{ b *array.BinaryBuilder }

func (c binaryColumn) Append(v any) error {
	switch v := v.(type) {
	case nil:
		c.b.AppendNull()
	case []byte:
		c.b.Append(v)
	case string:
		c.b.AppendString(v)
	default:
		return fmt.Errorf("cannot convert %T to binary", v)
	}
	return nil
}

type date32Column struct{ b *array.Date32Builder }

func (c date32Column) Append(v any) error {
	if v == nil {
		c.b.AppendNull()
		return nil
	}
	t, err := toTime(v)
	if err != nil {
		return err
	}
	c.b.Append(arrow.Date32FromTime(t))
	return nil
}

type timestampColumn struct{ b *array.TimestampBuilder }

func (c timestampColumn) Append(v any) error {
	if v == nil {
		c.b.AppendNull()
		return nil
	}
	t, err := toTime(v)
	if err != nil {
		return err
	}
	c.b.AppendTime(t)
	return nil
}

// newColumnBuilder binds a ColumnBuilder to the builder of a field.
func newColumnBuilder(dt arrow.DataType, b array.Builder) (ColumnBuilder, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return boolColumn{b.(*array.BooleanBuilder)}, nil
	case arrow.INT16:
		return numericColumn[int16]{b.(*array.Int16Builder)}, nil
	case arrow.UINT16:
		return numericColumn[uint16]{b.(*array.Uint16Builder)}, nil
	case arrow.INT32:
		return numericColumn[int32]{b.(*array.Int32Builder)}, nil
	case arrow.UINT32:
		return numericColumn[uint32]{b.(*array.Uint32Builder)}, nil
	case arrow.INT64:
		return numericColumn[int64]{b.(*array.Int64Builder)}, nil
	case arrow.UINT64:
		return numericColumn[uint64]{b.(*array.Uint64Builder)}, nil
	case arrow.FLOAT32:
		return numericColumn[float32]{b.(*array.Float32Builder)}, nil
	case arrow.FLOAT64:
		return numericColumn[float64]{b.(*array.Float64Builder)}, nil
	case arrow.STRING:
		return stringColumn{b.(*array.StringBuilder)}, nil
	case arrow.BINARY:
		return binaryColumn{b.(*array.BinaryBuilder)}, nil
	case arrow.DATE32:
		return date32Column{b.(*array.Date32Builder)}, nil
	case arrow.TIMESTAMP:
		return timestampColumn{b.(*array.TimestampBuilder)}, nil
	}
	return nil, errHelper.NotImplemented("no column builder for Arrow type %s", dt)
}

// newColumnBuilders reserves room for capacity rows in every field of bldr
// and binds a ColumnBuilder to each of them.
func newColumnBuilders(bldr *array.RecordBuilder, capacity int) ([]ColumnBuilder, error) {
	bldr.Reserve(capacity)
	fields := bldr.Schema().Fields()
	out := make([]ColumnBuilder, len(fields))
	for i, f := range fields {
		fb := bldr.Field(i)
		switch fb := fb.(type) {
		case *array.StringBuilder:
			fb.ReserveData(capacity * 2)
		case *array.BinaryBuilder:
			fb.ReserveData(capacity * 2)
		}
		cb, err := newColumnBuilder(f.Type, fb)
		if err != nil {
			return nil, err
		}
		out[i] = cb
	}
	return out, nil
}

func toNumber[T constraints.Integer | constraints.Float](v any) (T, error) {
	var zero T
	switch v := v.(type) {
	case int64:
		return checked[T](float64(v), T(v), v == int64(T(v)))
	case int:
		return checked[T](float64(v), T(v), int64(v) == int64(T(v)))
	case int32:
		return checked[T](float64(v), T(v), int64(v) == int64(T(v)))
	case int16:
		return checked[T](float64(v), T(v), int64(v) == int64(T(v)))
	case int8:
		return checked[T](float64(v), T(v), int64(v) == int64(T(v)))
	case uint64:
		return checked[T](float64(v), T(v), v == uint64(T(v)))
	case uint32:
		return checked[T](float64(v), T(v), uint64(v) == uint64(T(v)))
	case uint16:
		return checked[T](float64(v), T(v), uint64(v) == uint64(T(v)))
	case uint8:
		return checked[T](float64(v), T(v), uint64(v) == uint64(T(v)))
	case float64:
		return fromFloat[T](v)
	case float32:
		return fromFloat[T](float64(v))
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseNumber[T](string(v))
	case string:
		return parseNumber[T](v)
	}
	return zero, fmt.Errorf("cannot convert %T to %T", v, zero)
}

// checked rejects integer conversions that lose information.
func checked[T constraints.Integer | constraints.Float](orig float64, converted T, exact bool) (T, error) {
	switch any(converted).(type) {
	case float32, float64:
		return converted, nil
	}
	if !exact || (orig < 0) != (converted < 0) {
		var zero T
		return zero, fmt.Errorf("value %v out of range for %T", orig, zero)
	}
	return converted, nil
}

// fromFloat converts f, rejecting NaN, fractions and values out of range
// when T is an integer type.
func fromFloat[T constraints.Integer | constraints.Float](f float64) (T, error) {
	var zero T
	var lo, hi float64 // hi is exclusive
	switch any(zero).(type) {
	case float32, float64:
		return T(f), nil
	case int8:
		lo, hi = math.MinInt8, -math.MinInt8
	case int16:
		lo, hi = math.MinInt16, -math.MinInt16
	case int32:
		lo, hi = math.MinInt32, -math.MinInt32
	case int64, int:
		lo, hi = math.MinInt64, 0x1p63
	case uint8:
		hi = 0x1p8
	case uint16:
		hi = 0x1p16
	case uint32:
		hi = 0x1p32
	default:
		hi = 0x1p64
	}
	if math.IsNaN(f) || f != math.Trunc(f) {
		return zero, fmt.Errorf("value %v is not an integer", f)
	}
	if f < lo || f >= hi {
		return zero, fmt.Errorf("value %v out of range for %T", f, zero)
	}
	return T(f), nil
}

func parseNumber[T constraints.Integer | constraints.Float](s string) (T, error) {
	var zero T
	switch any(zero).(type) {
	case int16, int32, int64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return zero, fmt.Errorf("cannot convert %q to %T: %w", s, zero, err)
		}
		return checked[T](float64(n), T(n), n == int64(T(n)))
	case uint16, uint32, uint64:
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return zero, fmt.Errorf("cannot convert %q to %T: %w", s, zero, err)
		}
		return checked[T](float64(n), T(n), n == uint64(T(n)))
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return zero, fmt.Errorf("cannot convert %q to %T: %w", s, zero, err)
		}
		return T(f), nil
	}
}

func toBool(v any) (bool, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int16:
		return v != 0, nil
	case int8:
		return v != 0, nil
	case uint64:
		return v != 0, nil
	case uint32:
		return v != 0, nil
	case uint16:
		return v != 0, nil
	case uint8:
		return v != 0, nil
	case uint:
		return v != 0, nil
	case []byte:
		return strconv.ParseBool(string(v))
	case string:
		return strconv.ParseBool(v)
	}
	return false, fmt.Errorf("cannot convert %T to bool", v)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func toTime(v any) (time.Time, error) {
	var s string
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case []byte:
		s = string(v)
	case string:
		s = v
	default:
		return time.Time{}, fmt.Errorf("cannot convert %T to a date or timestamp", v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date or timestamp", s)
}
