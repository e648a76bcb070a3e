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
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/dchest/siphash"
)

// Fingerprint identifies a database configuration within this process. It
// is a keyed 128-bit hash of an option list and must only be used as a
// cache or equality key: the key is random per process, so fingerprints
// are not stable across runs.
type Fingerprint struct {
	H1, H2 uint64
}

var fingerprintKey = sync.OnceValues(func() (uint64, uint64) {
	var key [16]byte
	if _, err := rand.Read(key[:]); err != nil {
		panic(fmt.Sprintf("xdbc: reading fingerprint key: %v", err))
	}
	return binary.LittleEndian.Uint64(key[:8]), binary.LittleEndian.Uint64(key[8:])
})

// Hash returns a 64-bit digest suitable for hash tables.
func (f Fingerprint) Hash() uint64 { return f.H1 }

// Compare orders fingerprints by H1, then H2.
func (f Fingerprint) Compare(o Fingerprint) int {
	switch {
	case f.H1 < o.H1:
		return -1
	case f.H1 > o.H1:
		return 1
	case f.H2 < o.H2:
		return -1
	case f.H2 > o.H2:
		return 1
	}
	return 0
}

func (f Fingerprint) Less(o Fingerprint) bool { return f.Compare(o) < 0 }

func (f Fingerprint) String() string { return fmt.Sprintf("%016x%016x", f.H1, f.H2) }

// tags written ahead of each key and value
const (
	tagKeyURI uint64 = iota + 1
	tagKeyUsername
	tagKeyPassword
	tagKeyNamed
	tagKeyWellKnown
)

const (
	tagValueString uint64 = iota + 1
	tagValueBytes
	tagValueInt
	tagValueDouble
)

// FingerprintOptions hashes an ordered option list. Every key and value is
// written with a variant tag and variable-length payloads carry their
// length, so option lists that only differ in how data is split between
// keys and values hash differently.
func FingerprintOptions(opts []Option) Fingerprint {
	buf := make([]byte, 0, 64*len(opts))
	putU64 := func(v uint64) { buf = binary.LittleEndian.AppendUint64(buf, v) }
	putBytes := func(tag uint64, b []byte) {
		putU64(tag)
		putU64(uint64(len(b)))
		buf = append(buf, b...)
	}

	for _, o := range opts {
		switch o.Key.kind {
		case keyURI:
			putU64(tagKeyURI)
		case keyUsername:
			putU64(tagKeyUsername)
		case keyPassword:
			putU64(tagKeyPassword)
		case keyNamed:
			putBytes(tagKeyNamed, []byte(o.Key.name))
		default:
			putBytes(tagKeyWellKnown, []byte(o.Key.name))
		}

		switch o.Value.kind {
		case KindString:
			putBytes(tagValueString, []byte(o.Value.str))
		case KindBytes:
			putBytes(tagValueBytes, o.Value.b)
		case KindInt:
			putU64(tagValueInt)
			putU64(uint64(o.Value.i))
		case KindDouble:
			putU64(tagValueDouble)
			putU64(math.Float64bits(o.Value.f))
		}
	}

	k0, k1 := fingerprintKey()
	h1, h2 := siphash.Hash128(k0, k1, buf)
	return Fingerprint{H1: h1, H2: h2}
}
