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
package kms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/creds"
)

const (
	DefaultTimeout = 5 * time.Second

	maxResponseSize = 10 << 20
)

// RetryInterval is the initial backoff between credential resolution
// attempts when retries are enabled.
var RetryInterval = 50 * time.Millisecond

// Client calls the KMS secret API, signing every request with credentials
// from its provider.
type Client struct {
	provider   creds.Provider
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	clock      clock.Clock
	nonce      func() string
	maxRetry   time.Duration
	secrets    *cache.Cache
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithRetry retries transient credential resolution failures for up to
// maxElapsed before failing the call with the last error.
func WithRetry(maxElapsed time.Duration) Option {
	return func(c *Client) { c.maxRetry = maxElapsed }
}

// WithSecretCacheTTL caches secret values for ttl. Dry runs are never
// cached.
func WithSecretCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		if ttl > 0 {
			c.secrets = cache.New(ttl, 2*ttl)
		}
	}
}

func NewClient(provider creds.Provider, endpoint string, opts ...Option) *Client {
	c := &Client{
		provider:   provider,
		endpoint:   normaliseEndpoint(endpoint),
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		clock:      clock.NewClock(),
		nonce:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normaliseEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if strings.HasPrefix(endpoint, "kms") {
		return "https://" + endpoint
	}
	return endpoint
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) GetSecretValue(ctx context.Context, req *GetSecretValueRequest) (*GetSecretValueResponse, error) {
	if req.SecretName == "" {
		return nil, fmt.Errorf("secret name is required")
	}

	params := map[string]string{"SecretName": req.SecretName}
	if req.VersionStage != "" {
		params["VersionStage"] = req.VersionStage
	}
	if req.VersionId != "" {
		params["VersionId"] = req.VersionId
	}
	if req.FetchExtendedConfig != nil {
		params["FetchExtendedConfig"] = boolString(*req.FetchExtendedConfig)
	}
	dryRun := req.DryRun != nil && *req.DryRun
	if req.DryRun != nil {
		params["DryRun"] = boolString(*req.DryRun)
	}

	key := secretCacheKey(req)
	if c.secrets != nil && !dryRun {
		if cached, found := c.secrets.Get(key); found {
			secretCacheHit.Inc()
			return copySecretValue(cached.(*GetSecretValueResponse)), nil
		}
	}

	var resp GetSecretValueResponse
	if err := c.call(ctx, "GetSecretValue", params, &resp); err != nil {
		return nil, err
	}

	if c.secrets != nil && !dryRun {
		c.secrets.SetDefault(key, copySecretValue(&resp))
	}
	return &resp, nil
}

func (c *Client) DescribeSecret(ctx context.Context, req *DescribeSecretRequest) (*DescribeSecretResponse, error) {
	if req.SecretName == "" {
		return nil, fmt.Errorf("secret name is required")
	}

	params := map[string]string{"SecretName": req.SecretName}
	if req.FetchTags != nil {
		params["FetchTags"] = boolString(*req.FetchTags)
	}

	var resp DescribeSecretResponse
	if err := c.call(ctx, "DescribeSecret", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) call(ctx context.Context, action string, params map[string]string, out interface{}) error {
	logger := log.WithFields(log.Fields{"kms.action": action, "kms.endpoint": c.endpoint})

	timer := prometheus.NewTimer(callTimer.WithLabelValues(action))
	defer timer.ObserveDuration()

	resolved, err := c.credentials(ctx)
	if err != nil {
		callErrors.WithLabelValues(action, "credentials").Inc()
		logger.Errorf("error resolving credentials: %s", err.Error())
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := signedQuery(http.MethodPost, action, params, resolved, c.nonce(), c.clock.Now())
	req, err := http.NewRequest(http.MethodPost, c.endpoint+"/?"+query.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		callErrors.WithLabelValues(action, "transport").Inc()
		return fmt.Errorf("error calling %s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		callErrors.WithLabelValues(action, "transport").Inc()
		return fmt.Errorf("error reading %s response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		callErrors.WithLabelValues(action, "api").Inc()
		apiErr := parseAPIError(resp.StatusCode, body)
		logger.WithFields(log.Fields{"status": apiErr.Status, "kms.request": apiErr.RequestID}).Warnf("request rejected: %s", apiErr.Code)
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		callErrors.WithLabelValues(action, "decode").Inc()
		return fmt.Errorf("error decoding %s response: %w", action, err)
	}
	return nil
}

func (c *Client) credentials(ctx context.Context) (creds.Credentials, error) {
	if c.maxRetry <= 0 {
		return c.provider.Credentials(ctx)
	}

	var resolved creds.Credentials
	op := func() error {
		var err error
		resolved, err = c.provider.Credentials(ctx)
		if err != nil && !transient(err) {
			return backoff.Permanent(err)
		}
		if err != nil {
			log.Warnf("error resolving credentials, will retry: %s", err.Error())
		}
		return err
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = RetryInterval
	strategy.MaxElapsedTime = c.maxRetry

	if err := backoff.Retry(op, backoff.WithContext(strategy, ctx)); err != nil {
		return creds.Credentials{}, err
	}
	return resolved, nil
}

// transient reports whether resolving again may succeed: metadata service
// outages are, configuration problems aren't.
func transient(err error) bool {
	var tokenErr *creds.MetadataTokenError
	var fetchErr *creds.MetadataFetchError
	return errors.As(err, &tokenErr) || errors.As(err, &fetchErr)
}

func secretCacheKey(req *GetSecretValueRequest) string {
	extended := req.FetchExtendedConfig != nil && *req.FetchExtendedConfig
	return fmt.Sprintf("%s|%s|%s|%t", req.SecretName, req.VersionStage, req.VersionId, extended)
}

func copySecretValue(resp *GetSecretValueResponse) *GetSecretValueResponse {
	copied := *resp
	copied.VersionStages.VersionStage = append([]string(nil), resp.VersionStages.VersionStage...)
	return &copied
}
