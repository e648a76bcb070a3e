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

// Package cli implements the xdbc command.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/dbt-labs/xdbc"
	"github.com/dbt-labs/xdbc/drivermgr"
	"github.com/dbt-labs/xdbc/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

var outputFormats = []string{"table", "json", "csv", "markdown"}

// app is the state shared by the subcommands of one invocation.
type app struct {
	cfgFile     string
	verbose     bool
	cfg         *config.Config
	logger      *slog.Logger
	managerOpts []drivermgr.Option
}

// NewRootCmd creates the root command. opts are passed to every driver
// manager the command creates.
func NewRootCmd(opts ...drivermgr.Option) *cobra.Command {
	a := &app{managerOpts: opts}

	rootCmd := &cobra.Command{
		Use:   "xdbc",
		Short: "Query data warehouses through ADBC and ODBC drivers",
		Long: `xdbc connects to Snowflake, BigQuery, PostgreSQL, Databricks and Redshift
through their ADBC drivers, or through an ODBC driver where one is configured.

Connections are described by profiles in xdbc.yaml:

  profile: dev
  profiles:
    dev:
      backend: postgres
      uri: postgres://localhost:5432/analytics
      username: dbt`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "version", "completion", "__complete":
				return nil
			}
			return a.load(cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./"+config.DefaultConfigFile+")")
	flags.StringP("profile", "p", "", "profile to connect with")
	flags.StringP("output", "o", "", "output format (table|json|csv|markdown)")
	flags.Int64("statement-limit", 0, "maximum number of statements open at once (0 for no limit)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log driver activity to stderr")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return outputFormats, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		newQueryCommand(a),
		newInfoCommand(a),
		newProfilesCommand(a),
		newFingerprintCommand(a),
		newVersionCommand(),
	)
	return rootCmd
}

// Execute runs the root command with the process arguments.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func (a *app) load(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
	if err != nil {
		return err
	}
	if !slices.Contains(outputFormats, cfg.Output) {
		return fmt.Errorf("unknown output format %q", cfg.Output)
	}
	a.cfg = cfg

	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	if cfg.File != "" {
		a.logger.Debug("loaded config", "file", cfg.File, "profile", cfg.Profile)
	}
	return nil
}

// withDatabase opens the database of the selected profile for the length
// of fn.
func (a *app) withDatabase(ctx context.Context, fn func(xdbc.Database) error) (err error) {
	profile, err := a.cfg.Selected()
	if err != nil {
		return err
	}
	b, err := profile.Builder()
	if err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "opening database", "builder", b.String())

	opts := append([]drivermgr.Option{
		drivermgr.WithLogger(a.logger),
		drivermgr.WithStatementLimit(a.cfg.StatementLimit),
	}, a.managerOpts...)
	mgr := drivermgr.NewManager(opts...)
	defer func() {
		if cerr := mgr.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	db, err := mgr.Database(ctx, b)
	if err != nil {
		return err
	}
	return fn(db)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "xdbc %s\n", Version)
		},
	}
}

// closeQuietly closes c, logging failures.
func (a *app) closeQuietly(what string, c io.Closer) {
	if err := c.Close(); err != nil {
		a.logger.Warn("failed to close "+what, "error", err)
	}
}
