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
	"encoding/pem"
	"net/url"
	"strings"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/youmark/pkcs8"
)

const hidden = "*****"

// sensitive option names contain one of these
var sensitiveOptionFragments = []string{
	"auth_token",
	"jwt_private_key_pkcs8_value",
	"jwt_private_key_pkcs8_password",
}

// Builder accumulates the options of a database before it is created.
// The zero value is not usable; call NewBuilder.
type Builder struct {
	backend  Backend
	uri      *url.URL
	username *string
	password *string
	other    []Option
}

func NewBuilder(backend Backend) *Builder {
	return &Builder{backend: backend}
}

func (b *Builder) Backend() Backend { return b.backend }

// WithURI sets the connection URI. Credentials in the URI's user info
// override any username or password set earlier.
func (b *Builder) WithURI(uri *url.URL) *Builder {
	if uri.User != nil {
		if name := uri.User.Username(); name != "" {
			b.WithUsername(name)
		}
		if pass, ok := uri.User.Password(); ok {
			b.WithPassword(pass)
		}
	}
	b.uri = uri
	return b
}

// WithParseURI parses and sets the connection URI.
func (b *Builder) WithParseURI(raw string) (*Builder, error) {
	uri, err := url.Parse(raw)
	if err != nil {
		return b, Errorf(adbc.StatusInvalidArgument, "invalid uri: %s", err)
	}
	return b.WithURI(uri), nil
}

func (b *Builder) WithUsername(username string) *Builder {
	b.username = &username
	return b
}

func (b *Builder) WithPassword(password string) *Builder {
	b.password = &password
	return b
}

// WithTypedOption sets any option. URI, username and password must be
// strings; other well-known keys are not accepted at database level.
func (b *Builder) WithTypedOption(key OptionKey, value OptionValue) (*Builder, error) {
	switch key.kind {
	case keyURI:
		s, ok := value.Str()
		if !ok {
			return b, Errorf(adbc.StatusInvalidArgument, "uri must be a string")
		}
		return b.WithParseURI(s)
	case keyUsername:
		s, ok := value.Str()
		if !ok {
			return b, Errorf(adbc.StatusInvalidArgument, "username must be a string")
		}
		return b.WithUsername(s), nil
	case keyPassword:
		s, ok := value.Str()
		if !ok {
			return b, Errorf(adbc.StatusInvalidArgument, "password must be a string")
		}
		return b.WithPassword(s), nil
	case keyNamed:
		b.other = append(b.other, Option{Key: key, Value: value})
		return b, nil
	}
	return b, Errorf(adbc.StatusInvalidArgument, "option '%s' cannot be set on a database", key.Name())
}

// WithOption sets a string option by key.
func (b *Builder) WithOption(key OptionKey, value string) (*Builder, error) {
	return b.WithTypedOption(key, StringValue(value))
}

// WithNamedOption sets a driver-specific string option.
func (b *Builder) WithNamedOption(name, value string) (*Builder, error) {
	return b.WithTypedOption(NamedOption(name), StringValue(value))
}

// WithSnowflakePrivateKey configures key-pair authentication from a PEM
// encoded PKCS#8 key. Encrypted keys are decrypted with passphrase so the
// driver only ever sees an unencrypted key.
func (b *Builder) WithSnowflakePrivateKey(pemData []byte, passphrase string) (*Builder, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return b, Errorf(adbc.StatusInvalidArgument, "failed to parse PEM block containing the private key")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "ENCRYPTED PRIVATE KEY":
		if passphrase == "" {
			return b, Errorf(adbc.StatusInvalidArgument, "private key is encrypted but no passphrase was given")
		}
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, []byte(passphrase))
	case "PRIVATE KEY":
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return b, Errorf(adbc.StatusInvalidArgument, "%s is not supported", block.Type)
	}
	if err != nil {
		return b, Errorf(adbc.StatusInvalidArgument, "failed parsing PKCS8 private key: %s", err)
	}

	der, err := pkcs8.MarshalPrivateKey(key, nil, nil)
	if err != nil {
		return b, Errorf(adbc.StatusInvalidArgument, "failed encoding PKCS8 private key: %s", err)
	}
	encoded := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	if _, err := b.WithNamedOption(SnowflakeAuthType, SnowflakeAuthJwt); err != nil {
		return b, err
	}
	return b.WithNamedOption(SnowflakeJwtPrivateKeyPkcs8Value, string(encoded))
}

// Options returns the option list handed to the driver: uri, username and
// password first, followed by the other options in insertion order.
//
// PostgreSQL and Redshift drivers only take credentials through the
// connection URI, so for those backends username and password are moved
// into the URI query.
func (b *Builder) Options() []Option {
	opts := make([]Option, 0, len(b.other)+3)
	switch b.backend.Kind {
	case KindPostgres, KindRedshift:
		var uri url.URL
		if b.uri != nil {
			uri = *b.uri
		} else {
			uri = url.URL{Scheme: "postgres"}
		}
		query := uri.Query()
		if b.username != nil {
			query.Add("user", *b.username)
		}
		if b.password != nil {
			query.Add("password", *b.password)
		}
		uri.RawQuery = query.Encode()
		// url.URL renders an empty authority as "postgres:"; libpq wants "postgres://"
		s := uri.String()
		if uri.Host == "" && uri.User == nil && !strings.Contains(s, "://") {
			s = strings.Replace(s, ":", "://", 1)
		}
		opts = append(opts, Option{Key: OptionURI, Value: StringValue(s)})
	default:
		if b.uri != nil {
			opts = append(opts, Option{Key: OptionURI, Value: StringValue(b.uri.String())})
		}
		if b.username != nil {
			opts = append(opts, Option{Key: OptionUsername, Value: StringValue(*b.username)})
		}
		if b.password != nil {
			opts = append(opts, Option{Key: OptionPassword, Value: StringValue(*b.password)})
		}
	}
	return append(opts, b.other...)
}

// Fingerprint identifies the configuration built so far.
func (b *Builder) Fingerprint() Fingerprint {
	return FingerprintOptions(b.Options())
}

// String renders the builder with credentials and secret options masked.
func (b *Builder) String() string {
	var sb strings.Builder
	sb.WriteString("Builder{backend: ")
	sb.WriteString(b.backend.String())
	if b.uri != nil {
		sb.WriteString(", uri: ")
		sb.WriteString(redactURI(b.uri))
	}
	if b.username != nil {
		sb.WriteString(", username: ")
		sb.WriteString(*b.username)
	}
	if b.password != nil {
		sb.WriteString(", password: " + hidden)
	}
	for _, o := range b.other {
		sb.WriteString(", ")
		sb.WriteString(o.Key.Name())
		sb.WriteString(": ")
		if isSensitive(o.Key.Name()) {
			sb.WriteString(hidden)
		} else {
			sb.WriteString(o.Value.String())
		}
	}
	sb.WriteString("}")
	return sb.String()
}

func isSensitive(name string) bool {
	for _, frag := range sensitiveOptionFragments {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// redactURI drops user info and replaces credential query values with
// their parameter name.
func redactURI(uri *url.URL) string {
	safe := *uri
	safe.User = nil
	if safe.RawQuery != "" {
		query := safe.Query()
		for name := range query {
			switch name {
			case "user", "username", "password":
				query.Set(name, name)
			}
		}
		safe.RawQuery = query.Encode()
	}
	return safe.String()
}
