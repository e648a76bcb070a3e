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
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/dbt-labs/xdbc"
)

// Connection string key naming the driver library.
const DriverKey = "Driver"

// Environment variables overriding the default driver locations.
const (
	DatabricksDriverPathEnv = "DATABRICKS_DRIVER_PATH"
	RedshiftDriverPathEnv   = "REDSHIFT_DRIVER_PATH"
)

const databricksDownloadURL = "https://www.databricks.com/spark/odbc-drivers-download"

// DriverPath returns the suggested value of the Driver connection string
// key for an ODBC backend: the environment override if set, otherwise the
// location the vendor installer uses on this platform. It returns the empty
// string for backends without a known ODBC driver.
func DriverPath(backend xdbc.Backend) string {
	switch backend.Kind {
	case xdbc.KindDatabricksODBC:
		if p, ok := os.LookupEnv(DatabricksDriverPathEnv); ok {
			return p
		}
		switch runtime.GOOS {
		case "darwin":
			return "/Library/simba/spark/lib/libsparkodbc_sb64-universal.dylib"
		case "windows":
			return `C:\Program Files\Simba Spark ODBC Driver\lib\64\SparkODBC_sb64.dll`
		default:
			return "/opt/simba/spark/lib/64/libsparkodbc_sb64.so"
		}
	case xdbc.KindRedshiftODBC:
		if p, ok := os.LookupEnv(RedshiftDriverPathEnv); ok {
			return p
		}
		switch runtime.GOOS {
		case "darwin":
			return "/opt/amazon/redshift/lib/libamazonredshiftodbc.dylib"
		case "windows":
			// no fixed install location; set REDSHIFT_DRIVER_PATH
			return ""
		default:
			return "/opt/amazon/redshiftodbc/lib/64/libamazonredshiftodbc64.so"
		}
	}
	return ""
}

func redshiftInstallURL() string {
	platform := "linux"
	switch runtime.GOOS {
	case "darwin":
		platform = "mac"
	case "windows":
		platform = "windows"
	}
	return "https://docs.aws.amazon.com/redshift/latest/mgmt/odbc-driver-" + platform + "-how-to-install.html"
}

func driverNotFoundHint(backend xdbc.Backend) string {
	hint := fmt.Sprintf("\nHint: install the %s ODBC driver if you have not done so yet.", backend)
	const tail = ".\nIf you have already installed it and know the location of the driver in your system, " +
		"try setting the %s environment variable to the correct location and try again."
	switch backend.Kind {
	case xdbc.KindDatabricksODBC:
		hint += " The Databricks ODBC driver can be downloaded from " + databricksDownloadURL + " " +
			fmt.Sprintf(tail, DatabricksDriverPathEnv)
	case xdbc.KindRedshiftODBC:
		hint += " The Amazon Redshift ODBC driver can be downloaded from " + redshiftInstallURL() + " " +
			fmt.Sprintf(tail, RedshiftDriverPathEnv)
	}
	return hint
}

// withDriverHint appends installation instructions to a connection error
// caused by a driver library that does not exist. Driver managers report
// those as general warnings (SQLSTATE 01000).
func withDriverHint(err error, backend xdbc.Backend, opts []connOption) error {
	var adbcErr adbc.Error
	if !errors.As(err, &adbcErr) || xdbc.SqlStateOf(err) != sqlStateGeneralWarning {
		return err
	}
	hinted := false
	for _, o := range opts {
		if o.name != DriverKey {
			continue
		}
		path, ok := o.value.Str()
		if !ok {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			continue
		}
		adbcErr.Msg += driverNotFoundHint(backend)
		hinted = true
	}
	if !hinted {
		return err
	}
	return adbcErr
}
