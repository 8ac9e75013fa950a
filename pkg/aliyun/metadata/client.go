// Copyright 2017 uSwitch
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/creds"
)

const (
	DefaultEndpoint  = "http://100.100.100.200"
	LoopbackEndpoint = "http://127.0.0.1"

	DefaultTimeout  = 5 * time.Second
	DefaultTokenTTL = 3600

	TokenPath       = "/latest/api/token"
	CredentialsPath = "/latest/meta-data/ram/security-credentials/"

	TokenTTLHeader = "X-aliyun-ecs-metadata-token-ttl-seconds"
	TokenHeader    = "X-aliyun-ecs-metadata-token"

	// maximum body accepted from the metadata service
	maxResponseSize = 1 << 20
)

// Client fetches RAM role credentials from the ECS instance metadata
// service. It performs no retries.
type Client struct {
	endpoint   string
	timeout    time.Duration
	tokenTTL   int
	httpClient *http.Client
}

type Option func(*Client)

func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimSuffix(endpoint, "/") }
}

// WithTimeout sets the timeout applied to each metadata call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithTokenTTL(seconds int) Option {
	return func(c *Client) { c.tokenTTL = seconds }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		endpoint:   DefaultEndpoint,
		timeout:    DefaultTimeout,
		tokenTTL:   DefaultTokenTTL,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// FetchRole retrieves credentials for role. Hardened requests negotiate a
// metadata token first and fail without contacting the credentials path if
// that doesn't succeed.
func (c *Client) FetchRole(ctx context.Context, role string, hardened bool) (*creds.RoleCredentials, error) {
	logger := log.WithFields(log.Fields{"role": role, "hardened": hardened, "metadata.endpoint": c.endpoint})

	var token string
	if hardened {
		var err error
		token, err = c.negotiateToken(ctx)
		if err != nil {
			logger.Errorf("error negotiating metadata token: %s", err.Error())
			return nil, err
		}
	}

	body, status, err := c.get(ctx, "credentials", CredentialsPath+url.PathEscape(role), token)
	if err != nil {
		return nil, &creds.MetadataFetchError{Role: role, Err: err}
	}
	if !successful(status) {
		fetchErrors.WithLabelValues("credentials").Inc()
		logger.WithField("status", status).Errorf("metadata service refused credentials request")
		return nil, &creds.MetadataFetchError{Role: role, Status: status}
	}

	issued, err := ParseRoleCredentials(body)
	if err != nil {
		fetchErrors.WithLabelValues("credentials").Inc()
		logger.Errorf("error parsing role credentials: %s", err.Error())
		return nil, err
	}

	logger.WithFields(creds.CredentialsFields(issued.Credentials)).Debugf("fetched role credentials")
	return issued, nil
}

// RoleNames lists the RAM roles attached to the instance.
func (c *Client) RoleNames(ctx context.Context, hardened bool) ([]string, error) {
	var token string
	if hardened {
		var err error
		token, err = c.negotiateToken(ctx)
		if err != nil {
			return nil, err
		}
	}

	body, status, err := c.get(ctx, "roles", CredentialsPath, token)
	if err != nil {
		return nil, &creds.MetadataFetchError{Err: err}
	}
	if !successful(status) {
		fetchErrors.WithLabelValues("roles").Inc()
		return nil, &creds.MetadataFetchError{Status: status}
	}

	var roles []string
	for _, line := range strings.Split(string(body), "\n") {
		if role := strings.TrimSpace(line); role != "" {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func (c *Client) negotiateToken(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timer := prometheus.NewTimer(requestTimer.WithLabelValues("token"))
	defer timer.ObserveDuration()

	req, err := http.NewRequest(http.MethodPut, c.endpoint+TokenPath, nil)
	if err != nil {
		return "", &creds.MetadataTokenError{Err: err}
	}
	req.Header.Set(TokenTTLHeader, strconv.Itoa(c.tokenTTL))

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		fetchErrors.WithLabelValues("token").Inc()
		return "", &creds.MetadataTokenError{Err: err}
	}
	defer resp.Body.Close()

	if !successful(resp.StatusCode) {
		fetchErrors.WithLabelValues("token").Inc()
		return "", &creds.MetadataTokenError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		fetchErrors.WithLabelValues("token").Inc()
		return "", &creds.MetadataTokenError{Status: resp.StatusCode, Err: err}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		fetchErrors.WithLabelValues("token").Inc()
		return "", &creds.MetadataTokenError{Status: resp.StatusCode, Err: fmt.Errorf("empty token")}
	}
	return token, nil
}

func (c *Client) get(ctx context.Context, call, path, token string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	timer := prometheus.NewTimer(requestTimer.WithLabelValues(call))
	defer timer.ObserveDuration()

	req, err := http.NewRequest(http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		fetchErrors.WithLabelValues(call).Inc()
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		fetchErrors.WithLabelValues(call).Inc()
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func successful(status int) bool {
	return status >= 200 && status < 300
}
