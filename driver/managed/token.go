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

package managed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/dbt-labs/xdbc"
	"golang.org/x/oauth2"
)

const tokenRequestTimeout = 30 * time.Second

// SnowflakeTokenURL is the OAuth token endpoint of a Snowflake account.
func SnowflakeTokenURL(account string) string {
	return fmt.Sprintf("https://%s.snowflakecomputing.com/oauth/token-request", account)
}

// TokenRefresher exchanges a long-lived OAuth refresh token for a fresh
// access token. It holds only static configuration: every call performs a
// new request and nothing is cached between calls.
type TokenRefresher struct {
	config       oauth2.Config
	refreshToken string
	client       *http.Client
}

// NewTokenRefresher returns a refresher that posts a refresh_token grant to
// tokenURL, authenticating with HTTP Basic client credentials. A nil client
// uses one with a 30 second timeout.
func NewTokenRefresher(clientID, clientSecret, tokenURL, refreshToken string, client *http.Client) *TokenRefresher {
	if client == nil {
		client = &http.Client{Timeout: tokenRequestTimeout}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	withAuth := *client
	withAuth.Transport = basicAuthTransport{clientID: clientID, clientSecret: clientSecret, base: base}
	client = &withAuth
	return &TokenRefresher{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		refreshToken: refreshToken,
		client:       client,
	}
}

// basicAuthTransport sends the client credentials verbatim. oauth2
// URL-encodes them before encoding the header, which token endpoints
// expecting plain Basic credentials reject.
type basicAuthTransport struct {
	clientID, clientSecret string
	base                   http.RoundTripper
}

func (t basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.clientID, t.clientSecret)
	return t.base.RoundTrip(req)
}

// TokenRefresherFor builds the refresher configured by a database's
// options, or returns nil if the options do not describe a refresh-token
// setup. Only Snowflake databases refresh tokens.
func TokenRefresherFor(backend xdbc.Backend, opts []xdbc.Option, tokenURL func(account string) string, client *http.Client) *TokenRefresher {
	if backend != xdbc.Snowflake {
		return nil
	}
	get := func(name string) string {
		v, ok := xdbc.LookupOption(opts, xdbc.NamedOption(name))
		if !ok {
			return ""
		}
		s, _ := v.AsString()
		return s
	}
	clientID := get(xdbc.SnowflakeClientID)
	clientSecret := get(xdbc.SnowflakeClientSecret)
	account := get(xdbc.SnowflakeAccount)
	refreshToken := get(xdbc.SnowflakeRefreshToken)
	if clientID == "" || clientSecret == "" || account == "" || refreshToken == "" {
		return nil
	}
	if tokenURL == nil {
		tokenURL = SnowflakeTokenURL
	}
	return NewTokenRefresher(clientID, clientSecret, tokenURL(account), refreshToken, client)
}

func (r *TokenRefresher) TokenURL() string { return r.config.Endpoint.TokenURL }

// RefreshedAuthToken requests a new access token. Transport failures and
// error responses are StatusIO; a reply without a usable access token is
// StatusInvalidData.
func (r *TokenRefresher) RefreshedAuthToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, tokenRequestTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, r.client)

	// an access-token-less token forces the source to use the refresh grant
	tok, err := r.config.TokenSource(ctx, &oauth2.Token{RefreshToken: r.refreshToken}).Token()
	if err != nil {
		var (
			urlErr      *url.Error
			retrieveErr *oauth2.RetrieveError
		)
		if errors.As(err, &urlErr) || errors.As(err, &retrieveErr) {
			return "", errHelper.Errorf(adbc.StatusIO, "Failed to make request to %s: %v", r.TokenURL(), err)
		}
		return "", errHelper.Errorf(adbc.StatusInvalidData, "Failed to parse payload of auth token request: %v", err)
	}
	return tok.AccessToken, nil
}
