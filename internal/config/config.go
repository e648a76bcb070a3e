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

// Package config loads connection profiles for the xdbc command.
//
// Values are merged from, lowest to highest precedence: defaults, the YAML
// config file, XDBC_ environment variables and explicitly set flags.
// Environment variables map to keys by dropping the prefix, lower-casing
// and turning a double underscore into a level separator, so
// XDBC_PROFILES__DEV__PASSWORD sets profiles.dev.password.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/dbt-labs/xdbc"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultConfigFile = "xdbc.yaml"
	DefaultProfile    = "default"
	DefaultOutput     = "table"
	EnvPrefix         = "XDBC_"
)

// Profile describes how to reach one warehouse.
type Profile struct {
	Backend  string            `koanf:"backend"`
	URI      string            `koanf:"uri"`
	Username string            `koanf:"username"`
	Password string            `koanf:"password"`
	Options  map[string]string `koanf:"options"`

	// Snowflake key-pair authentication
	PrivateKeyPath       string `koanf:"private_key_path"`
	PrivateKeyPassphrase string `koanf:"private_key_passphrase"`
}

type Config struct {
	Profile        string             `koanf:"profile"`
	Output         string             `koanf:"output"`
	StatementLimit int64              `koanf:"statement_limit"`
	Profiles       map[string]Profile `koanf:"profiles"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// Load reads the configuration. An empty path reads xdbc.yaml from the
// working directory when it exists. Only flags the user set override other
// sources; flag names use dashes where keys use underscores.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"profile": DefaultProfile,
		"output":  DefaultOutput,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := path
	if used == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			used = DefaultConfigFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	return &cfg, nil
}

// Selected returns the profile named by the profile setting.
func (c *Config) Selected() (Profile, error) {
	p, ok := c.Profiles[c.Profile]
	if !ok {
		names := make([]string, 0, len(c.Profiles))
		for name := range c.Profiles {
			names = append(names, name)
		}
		slices.Sort(names)
		if len(names) == 0 {
			return Profile{}, fmt.Errorf("profile %q not found: no profiles configured", c.Profile)
		}
		return Profile{}, fmt.Errorf("profile %q not found (available: %s)", c.Profile, strings.Join(names, ", "))
	}
	return p, nil
}

// Builder turns the profile into a database builder. Extra options are
// applied in name order so equal profiles have equal fingerprints.
func (p Profile) Builder() (*xdbc.Builder, error) {
	if p.Backend == "" {
		return nil, errors.New("profile has no backend")
	}
	backend, err := xdbc.ParseBackend(p.Backend)
	if err != nil {
		return nil, err
	}

	b := xdbc.NewBuilder(backend)
	if p.URI != "" {
		if b, err = b.WithParseURI(p.URI); err != nil {
			return nil, err
		}
	}
	if p.Username != "" {
		b = b.WithUsername(p.Username)
	}
	if p.Password != "" {
		b = b.WithPassword(p.Password)
	}
	if p.PrivateKeyPath != "" {
		pem, err := os.ReadFile(p.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		if b, err = b.WithSnowflakePrivateKey(pem, p.PrivateKeyPassphrase); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(p.Options))
	for name := range p.Options {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if b, err = b.WithNamedOption(name, p.Options[name]); err != nil {
			return nil, err
		}
	}
	return b, nil
}
