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
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.cloudfoundry.org/clock"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/aliyun/metadata"
	"github.com/uswitch/ramcreds/pkg/creds"
	"github.com/uswitch/ramcreds/pkg/kms"
	"github.com/uswitch/ramcreds/pkg/telemetry"
	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

type parser interface {
	Flag(name, help string) *kingpin.FlagClause
	Arg(name, help string) *kingpin.ArgClause
}

type logOptions struct {
	jsonLog  bool
	logLevel string
}

func (o *logOptions) bind(parser parser) {
	parser.Flag("json-log", "Output log in JSON").BoolVar(&o.jsonLog)
	parser.Flag("level", "Log level: debug, info, warn, error.").Default("info").EnumVar(&o.logLevel, "debug", "info", "warn", "error")
}

func (o *logOptions) configureLogger() {
	if o.jsonLog {
		log.SetFormatter(&log.JSONFormatter{})
	}

	switch o.logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}
}

type telemetryOptions struct {
	prometheusListen string
	pprofListen      string
}

func (o *telemetryOptions) bind(parser parser) {
	parser.Flag("prometheus-listen-addr", "Prometheus HTTP listen address. e.g. localhost:9620").StringVar(&o.prometheusListen)
	parser.Flag("pprof-listen-addr", "Address to bind pprof HTTP server. e.g. localhost:9990").Default("").StringVar(&o.pprofListen)
}

func (o telemetryOptions) start(ctx context.Context) {
	if o.prometheusListen != "" {
		telemetry.NewMetricsServer(o.prometheusListen).Listen(ctx)
	}

	if o.pprofListen != "" {
		log.Infof("pprof listen address specified, will listen on %s", o.pprofListen)
		telemetry.NewProfileServer(o.pprofListen).Listen(ctx)
	}
}

// credentialOptions selects the credential source. Explicit keys win over a
// role; with neither the KMS_* environment variables are used.
type credentialOptions struct {
	accessKeyID      string
	accessKeySecret  string
	securityToken    string
	role             string
	hardened         bool
	metadataEndpoint string
	metadataLoopback bool
	timeout          time.Duration
	cacheWindow      time.Duration

	lookup creds.LookupFunc
}

func (o *credentialOptions) bind(parser parser) {
	parser.Flag("access-key-id", "Access key id. Overrides the environment.").StringVar(&o.accessKeyID)
	parser.Flag("access-key-secret", "Access key secret. Overrides the environment.").StringVar(&o.accessKeySecret)
	parser.Flag("security-token", "Security token to use with the access key").StringVar(&o.securityToken)
	parser.Flag("role", "Instance RAM role to fetch credentials for").StringVar(&o.role)
	parser.Flag("hardened", "Negotiate a metadata token before fetching role credentials").BoolVar(&o.hardened)
	parser.Flag("metadata-endpoint", "Instance metadata service address").Default(metadata.DefaultEndpoint).StringVar(&o.metadataEndpoint)
	parser.Flag("metadata-loopback", "Use the metadata service on the loopback address").BoolVar(&o.metadataLoopback)
	parser.Flag("timeout", "Timeout for each metadata service call").Default("5s").DurationVar(&o.timeout)
	parser.Flag("cache-window", "Longest time role credentials are cached").Default("30m").DurationVar(&o.cacheWindow)
	o.lookup = creds.OSLookup
}

var (
	errTokenWithoutKeys    = errors.New("--security-token requires --access-key-id and --access-key-secret")
	errHardenedWithoutRole = errors.New("--hardened requires --role")
)

func (o *credentialOptions) source() (creds.Source, error) {
	if o.securityToken != "" && o.accessKeyID == "" && o.accessKeySecret == "" {
		return nil, errTokenWithoutKeys
	}
	if o.hardened && o.role == "" {
		return nil, errHardenedWithoutRole
	}
	if o.accessKeyID != "" || o.accessKeySecret != "" {
		if err := creds.NewCredentials(o.accessKeyID, o.accessKeySecret).Validate(); err != nil {
			return nil, err
		}
		return creds.NewSessionSource(o.accessKeyID, o.accessKeySecret, o.securityToken), nil
	}
	if o.role != "" {
		return creds.NewRoleSource(o.role, o.hardened), nil
	}
	return creds.FromEnvironment(o.lookup)
}

func (o *credentialOptions) metadataClient() *metadata.Client {
	endpoint := o.metadataEndpoint
	if o.metadataLoopback {
		endpoint = metadata.LoopbackEndpoint
	}
	return metadata.NewClient(metadata.WithEndpoint(endpoint), metadata.WithTimeout(o.timeout))
}

func (o *credentialOptions) resolver(clk clock.Clock) (*creds.Resolver, error) {
	source, err := o.source()
	if err != nil {
		return nil, fmt.Errorf("error selecting credential source: %w", err)
	}
	log.Infof("resolving credentials from %s", source)

	return creds.NewResolver(source, o.metadataClient(), creds.WithClock(clk), creds.WithCacheWindow(o.cacheWindow)), nil
}

type kmsOptions struct {
	endpoint       string
	retry          time.Duration
	secretCacheTTL time.Duration
}

func (o *kmsOptions) bind(parser parser) {
	parser.Flag("endpoint", "KMS endpoint, e.g. kms.cn-hangzhou.aliyuncs.com").Envar("KMS_ENDPOINT").Required().StringVar(&o.endpoint)
	parser.Flag("retry", "How long to retry resolving credentials when the metadata service fails").Default("0s").DurationVar(&o.retry)
	parser.Flag("secret-cache-ttl", "How long to cache secret values").Default("0s").DurationVar(&o.secretCacheTTL)
}

func (o *kmsOptions) client(provider creds.Provider, timeout time.Duration) *kms.Client {
	return kms.NewClient(provider, o.endpoint, kms.WithTimeout(timeout), kms.WithRetry(o.retry), kms.WithSecretCacheTTL(o.secretCacheTTL))
}
