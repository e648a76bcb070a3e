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
	"fmt"
	"strconv"

	"github.com/apache/arrow-adbc/go/adbc"
)

// ValueKind tags the variant held by an OptionValue.
type ValueKind int8

const (
	KindString ValueKind = iota
	KindBytes
	KindInt
	KindDouble
)

func (k ValueKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindInt:
		return "int"
	case KindDouble:
		return "double"
	}
	return fmt.Sprintf("ValueKind(%d)", int8(k))
}

// OptionValue is the value of a database or connection option: exactly one
// of a string, a byte slice, an int64 or a float64.
type OptionValue struct {
	kind ValueKind
	str  string
	b    []byte
	i    int64
	f    float64
}

func StringValue(v string) OptionValue  { return OptionValue{kind: KindString, str: v} }
func BytesValue(v []byte) OptionValue   { return OptionValue{kind: KindBytes, b: v} }
func IntValue(v int64) OptionValue      { return OptionValue{kind: KindInt, i: v} }
func DoubleValue(v float64) OptionValue { return OptionValue{kind: KindDouble, f: v} }

func (v OptionValue) Kind() ValueKind { return v.kind }

// Str returns the string payload and whether the value is a string.
func (v OptionValue) Str() (string, bool) { return v.str, v.kind == KindString }

// Bytes returns the byte payload and whether the value is bytes.
func (v OptionValue) Bytes() ([]byte, bool) { return v.b, v.kind == KindBytes }

// Int returns the integer payload and whether the value is an int.
func (v OptionValue) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Double returns the float payload and whether the value is a double.
func (v OptionValue) Double() (float64, bool) { return v.f, v.kind == KindDouble }

// AsString renders String and Int values as text. Bytes and Double values
// have no canonical text form and produce an InvalidArgument error.
func (v OptionValue) AsString() (string, error) {
	switch v.kind {
	case KindString:
		return v.str, nil
	case KindInt:
		return strconv.FormatInt(v.i, 10), nil
	}
	return "", Errorf(adbc.StatusInvalidArgument, "option value of kind %s cannot be used as a string", v.kind)
}

// Equal reports whether two values hold the same variant and payload.
func (v OptionValue) Equal(o OptionValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBytes:
		return string(v.b) == string(o.b)
	case KindInt:
		return v.i == o.i
	default:
		return v.f == o.f
	}
}

func (v OptionValue) String() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("bytes[%d]", len(v.b))
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
}

type keyKind int8

const (
	keyURI keyKind = iota + 1
	keyUsername
	keyPassword
	keyNamed
	keyWellKnown
)

// OptionKey names a database or connection option. It is either one of the
// well-known ADBC keys or an opaque, driver-specific name.
type OptionKey struct {
	kind keyKind
	name string
}

var (
	OptionURI      = OptionKey{kind: keyURI}
	OptionUsername = OptionKey{kind: keyUsername}
	OptionPassword = OptionKey{kind: keyPassword}
)

// NamedOption returns the key for a driver-specific option.
func NamedOption(name string) OptionKey {
	switch name {
	case adbc.OptionKeyURI:
		return OptionURI
	case adbc.OptionKeyUsername:
		return OptionUsername
	case adbc.OptionKeyPassword:
		return OptionPassword
	}
	return OptionKey{kind: keyNamed, name: name}
}

// WellKnownOption returns the key for a standard ADBC option other than
// uri, username and password, such as adbc.OptionKeyAutoCommit.
func WellKnownOption(name string) OptionKey {
	switch name {
	case adbc.OptionKeyURI:
		return OptionURI
	case adbc.OptionKeyUsername:
		return OptionUsername
	case adbc.OptionKeyPassword:
		return OptionPassword
	}
	return OptionKey{kind: keyWellKnown, name: name}
}

// Name returns the string key understood by ADBC drivers.
func (k OptionKey) Name() string {
	switch k.kind {
	case keyURI:
		return adbc.OptionKeyURI
	case keyUsername:
		return adbc.OptionKeyUsername
	case keyPassword:
		return adbc.OptionKeyPassword
	}
	return k.name
}

func (k OptionKey) IsURI() bool      { return k.kind == keyURI }
func (k OptionKey) IsUsername() bool { return k.kind == keyUsername }
func (k OptionKey) IsPassword() bool { return k.kind == keyPassword }

// IsNamed reports whether the key is an opaque driver-specific name.
func (k OptionKey) IsNamed() bool { return k.kind == keyNamed }

// IsWellKnown reports whether the key is a standard ADBC key.
func (k OptionKey) IsWellKnown() bool { return k.kind != keyNamed }

func (k OptionKey) String() string { return k.Name() }

// Option is a single key/value pair.
type Option struct {
	Key   OptionKey
	Value OptionValue
}

// StringOption is shorthand for a named option with a string value.
func StringOption(name, value string) Option {
	return Option{Key: NamedOption(name), Value: StringValue(value)}
}

// LookupOption returns the last value set for key in opts.
func LookupOption(opts []Option, key OptionKey) (OptionValue, bool) {
	for i := len(opts) - 1; i >= 0; i-- {
		if opts[i].Key == key {
			return opts[i].Value, true
		}
	}
	return OptionValue{}, false
}

// SplitOptions separates options that can be passed to an ADBC driver as a
// plain map[string]string from those that need a typed setter.
func SplitOptions(opts []Option) (strs map[string]string, typed []Option) {
	strs = make(map[string]string, len(opts))
	for _, o := range opts {
		if s, ok := o.Value.Str(); ok {
			strs[o.Key.Name()] = s
			continue
		}
		typed = append(typed, o)
	}
	return strs, typed
}

// SetTypedOption applies an option through the ADBC option interfaces of a
// database, connection or statement. String values use SetOption, other
// kinds require the target to implement the typed setters.
func SetTypedOption(target adbc.PostInitOptions, o Option) error {
	if s, ok := o.Value.Str(); ok {
		return target.SetOption(o.Key.Name(), s)
	}
	setter, ok := target.(adbc.GetSetOptions)
	if !ok {
		return Errorf(adbc.StatusNotImplemented, "driver does not support %s option '%s'", o.Value.Kind(), o.Key.Name())
	}
	switch o.Value.Kind() {
	case KindBytes:
		v, _ := o.Value.Bytes()
		return setter.SetOptionBytes(o.Key.Name(), v)
	case KindInt:
		v, _ := o.Value.Int()
		return setter.SetOptionInt(o.Key.Name(), v)
	default:
		v, _ := o.Value.Double()
		return setter.SetOptionDouble(o.Key.Name(), v)
	}
}
