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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dbt-labs/xdbc"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
profile: dev
statement_limit: 8
profiles:
  dev:
    backend: postgres
    uri: postgres://localhost:5432/analytics
    username: dbt
  warehouse:
    backend: databricks_odbc
    options:
      HTTPPath: /sql/1.0/warehouses/abc
      Driver: /opt/simba/spark/lib/64/libsparkodbc_sb64.so
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Profile)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.EqualValues(t, 8, cfg.StatementLimit)
	require.Len(t, cfg.Profiles, 2)
	assert.Equal(t, "/sql/1.0/warehouses/abc", cfg.Profiles["warehouse"].Options["HTTPPath"])
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	t.Setenv("XDBC_PROFILES__DEV__PASSWORD", "from-env")
	t.Setenv("XDBC_OUTPUT", "json")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("profile", "", "")
	flags.String("output", "", "")
	require.NoError(t, flags.Parse([]string{"--profile", "warehouse"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)
	// set flags win, unset flags do not clobber the environment
	assert.Equal(t, "warehouse", cfg.Profile)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, "from-env", cfg.Profiles["dev"].Password)
	assert.Equal(t, path, cfg.File)
}

func TestLoadWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.File)
	assert.Equal(t, DefaultProfile, cfg.Profile)

	_, err = cfg.Selected()
	assert.ErrorContains(t, err, "no profiles configured")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "error reading config file")
}

func TestSelected(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig), nil)
	require.NoError(t, err)

	p, err := cfg.Selected()
	require.NoError(t, err)
	assert.Equal(t, "postgres", p.Backend)

	cfg.Profile = "prod"
	_, err = cfg.Selected()
	assert.ErrorContains(t, err, `profile "prod" not found (available: dev, warehouse)`)
}

func TestProfileBuilder(t *testing.T) {
	p := Profile{
		Backend:  "postgres",
		URI:      "postgres://localhost:5432/analytics",
		Username: "dbt",
		Password: "secret",
		Options:  map[string]string{"adbc.postgresql.quirk": "on"},
	}
	b, err := p.Builder()
	require.NoError(t, err)
	assert.Equal(t, xdbc.Postgres, b.Backend())

	opts := b.Options()
	require.Len(t, opts, 2)
	uri, _ := opts[0].Value.Str()
	assert.Equal(t, "postgres://localhost:5432/analytics?password=secret&user=dbt", uri)

	same, err := p.Builder()
	require.NoError(t, err)
	assert.Equal(t, b.Fingerprint(), same.Fingerprint())

	p.Password = "other"
	other, err := p.Builder()
	require.NoError(t, err)
	assert.NotEqual(t, b.Fingerprint(), other.Fingerprint())
}

func TestProfileBuilderOptionOrder(t *testing.T) {
	p := Profile{Backend: "databricks_odbc", Options: map[string]string{"Port": "443", "Host": "h", "AuthMech": "3"}}
	b, err := p.Builder()
	require.NoError(t, err)

	var names []string
	for _, o := range b.Options() {
		names = append(names, o.Key.Name())
	}
	assert.Equal(t, []string{"AuthMech", "Host", "Port"}, names)
}

func TestProfileBuilderErrors(t *testing.T) {
	_, err := Profile{}.Builder()
	assert.ErrorContains(t, err, "no backend")

	_, err = Profile{Backend: "oracle"}.Builder()
	assert.ErrorContains(t, err, "unknown backend")

	_, err = Profile{Backend: "snowflake", PrivateKeyPath: filepath.Join(t.TempDir(), "missing.p8")}.Builder()
	assert.ErrorContains(t, err, "reading private key")
}
