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

// Snowflake database option names.
const (
	SnowflakeDatabase                   = "adbc.snowflake.sql.db"
	SnowflakeSchema                     = "adbc.snowflake.sql.schema"
	SnowflakeWarehouse                  = "adbc.snowflake.sql.warehouse"
	SnowflakeRole                       = "adbc.snowflake.sql.role"
	SnowflakeRegion                     = "adbc.snowflake.sql.region"
	SnowflakeAccount                    = "adbc.snowflake.sql.account"
	SnowflakeAuthType                   = "adbc.snowflake.sql.auth_type"
	SnowflakeLoginTimeout               = "adbc.snowflake.sql.client_option.login_timeout"
	SnowflakeAppName                    = "adbc.snowflake.sql.client_option.app_name"
	SnowflakeAuthToken                  = "adbc.snowflake.sql.client_option.auth_token"
	SnowflakeJwtPrivateKeyPkcs8Value    = "adbc.snowflake.sql.client_option.jwt_private_key_pkcs8_value"
	SnowflakeJwtPrivateKeyPkcs8Password = "adbc.snowflake.sql.client_option.jwt_private_key_pkcs8_password"
	SnowflakeKeepSessionAlive           = "adbc.snowflake.sql.client_option.keep_session_alive"

	// Client credentials for the refresh-token grant. These are consumed by
	// xdbc itself and never reach the Snowflake driver.
	SnowflakeClientID     = "adbc.snowflake.sql.client_option.client_id"
	SnowflakeClientSecret = "adbc.snowflake.sql.client_option.client_secret"
	SnowflakeRefreshToken = "adbc.snowflake.sql.client_option.refresh_token"
)

// Values for SnowflakeAuthType.
const (
	SnowflakeAuthDefault         = "auth_snowflake"
	SnowflakeAuthOAuth           = "auth_oauth"
	SnowflakeAuthExternalBrowser = "auth_ext_browser"
	SnowflakeAuthOkta            = "auth_okta"
	SnowflakeAuthJwt             = "auth_jwt"
	SnowflakeAuthMFA             = "auth_mfa"
)

// Snowflake error reported when a cached ID token was invalidated between
// uses. A fresh connection attempt succeeds.
const (
	SnowflakeInvalidIDTokenCode     int32 = 390195
	SnowflakeInvalidIDTokenSqlState       = "08004"
)
