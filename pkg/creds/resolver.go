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
package creds

import (
	"context"
	"errors"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultCacheWindow         = 30 * time.Minute
	DefaultExpiryMargin        = 1 * time.Minute
	DefaultUnknownExpiryWindow = 5 * time.Minute
)

// CacheState describes the cache slot of a role Resolver.
type CacheState int

const (
	CacheEmpty CacheState = iota
	CacheValid
	CacheStale
)

func (s CacheState) String() string {
	switch s {
	case CacheEmpty:
		return "empty"
	case CacheValid:
		return "valid"
	case CacheStale:
		return "stale"
	}
	return "unknown"
}

type cachedCredentials struct {
	creds     Credentials
	fetchedAt time.Time
	expiresAt time.Time
}

// Resolver hands out current credentials for a single Source. Role
// credentials are cached until they expire; a failed refresh never falls
// back to the previous entry.
type Resolver struct {
	source  Source
	fetcher RoleFetcher
	clock   clock.Clock

	cacheWindow         time.Duration
	expiryMargin        time.Duration
	unknownExpiryWindow time.Duration

	mu     sync.RWMutex
	cached *cachedCredentials
}

type ResolverOption func(*Resolver)

func WithClock(c clock.Clock) ResolverOption {
	return func(r *Resolver) { r.clock = c }
}

// WithCacheWindow sets the longest time fetched credentials are served from
// the cache.
func WithCacheWindow(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.cacheWindow = d }
}

// WithExpiryMargin sets how long before the server declared expiration
// credentials are considered stale.
func WithExpiryMargin(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.expiryMargin = d }
}

// WithUnknownExpiryWindow sets the cache window used when the metadata
// service doesn't report a usable expiration.
func WithUnknownExpiryWindow(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.unknownExpiryWindow = d }
}

func NewResolver(source Source, fetcher RoleFetcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		source:              source,
		fetcher:             fetcher,
		clock:               clock.NewClock(),
		cacheWindow:         DefaultCacheWindow,
		expiryMargin:        DefaultExpiryMargin,
		unknownExpiryWindow: DefaultUnknownExpiryWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Source() Source {
	return r.source
}

// Credentials returns the current credentials, fetching role credentials
// when the cache is empty or stale.
func (r *Resolver) Credentials(ctx context.Context) (Credentials, error) {
	switch s := r.source.(type) {
	case *StaticSource:
		return staticCredentials(s)
	case *RoleSource:
		if creds, ok := r.cachedCredentials(); ok {
			cacheHit.Inc()
			return creds, nil
		}
		return r.refresh(ctx, s, false)
	}
	return Credentials{}, ErrNoCredentialSource
}

// Refresh fetches new role credentials even when the cache is still valid.
func (r *Resolver) Refresh(ctx context.Context) (Credentials, error) {
	switch s := r.source.(type) {
	case *StaticSource:
		return staticCredentials(s)
	case *RoleSource:
		return r.refresh(ctx, s, true)
	}
	return Credentials{}, ErrNoCredentialSource
}

// State reports the cache state. Static sources are always valid.
func (r *Resolver) State() CacheState {
	if _, ok := r.source.(*RoleSource); !ok {
		return CacheValid
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stateLocked(r.clock.Now())
}

// ExpiresAt returns when the cached role credentials become stale. It
// returns false for static sources and before the first fetch.
func (r *Resolver) ExpiresAt() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return time.Time{}, false
	}
	return r.cached.expiresAt, true
}

// FetchedAt returns when the cached role credentials were fetched.
func (r *Resolver) FetchedAt() (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cached == nil {
		return time.Time{}, false
	}
	return r.cached.fetchedAt, true
}

func (r *Resolver) stateLocked(now time.Time) CacheState {
	if r.cached == nil {
		return CacheEmpty
	}
	if now.Before(r.cached.expiresAt) {
		return CacheValid
	}
	return CacheStale
}

func (r *Resolver) cachedCredentials() (Credentials, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stateLocked(r.clock.Now()) != CacheValid {
		return Credentials{}, false
	}
	return r.cached.creds, true
}

func (r *Resolver) refresh(ctx context.Context, source *RoleSource, force bool) (Credentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// another caller may have refreshed while we waited for the lock
	if !force && r.stateLocked(r.clock.Now()) == CacheValid {
		cacheHit.Inc()
		return r.cached.creds, nil
	}
	cacheMiss.Inc()

	logger := log.WithFields(log.Fields{"role": source.RoleName, "hardened": source.Hardened})

	if r.fetcher == nil {
		refreshErrors.Inc()
		return Credentials{}, &MetadataFetchError{Role: source.RoleName, Err: errors.New("no metadata fetcher configured")}
	}

	timer := prometheus.NewTimer(fetchTimer)
	issued, err := r.fetcher.FetchRole(ctx, source.RoleName, source.Hardened)
	timer.ObserveDuration()
	if err != nil {
		refreshErrors.Inc()
		logger.Errorf("error fetching role credentials: %s", err.Error())
		return Credentials{}, err
	}

	if issued == nil {
		refreshErrors.Inc()
		err := &InvalidMetadataResponseError{Reason: "no credentials returned"}
		logger.Errorf("%s", err.Error())
		return Credentials{}, err
	}

	if err := issued.Validate(); err != nil {
		refreshErrors.Inc()
		logger.Errorf("metadata service returned unusable credentials: %s", err.Error())
		return Credentials{}, err
	}

	now := r.clock.Now()
	expiresAt := r.expiry(now, issued)
	if !expiresAt.After(now) {
		refreshErrors.Inc()
		err := &InvalidMetadataResponseError{Reason: "credentials already expired at " + issued.Expiration.Format(time.RFC3339)}
		logger.Errorf("%s", err.Error())
		return Credentials{}, err
	}

	r.cached = &cachedCredentials{creds: issued.Credentials, fetchedAt: now, expiresAt: expiresAt}
	logger.WithFields(CredentialsFields(issued.Credentials)).WithField("expires", expiresAt.Format(time.RFC3339)).Infof("fetched new credentials")

	return r.cached.creds, nil
}

// expiry caps the cache window by the server declared expiration, less the
// margin. Without a declared expiration the shorter unknown window applies.
func (r *Resolver) expiry(now time.Time, issued *RoleCredentials) time.Time {
	window := r.cacheWindow
	if issued.Expiration.IsZero() {
		if r.unknownExpiryWindow < window {
			window = r.unknownExpiryWindow
		}
		return now.Add(window)
	}

	expiresAt := now.Add(window)
	if declared := issued.Expiration.Add(-r.expiryMargin); declared.Before(expiresAt) {
		expiresAt = declared
	}
	return expiresAt
}

func staticCredentials(s *StaticSource) (Credentials, error) {
	creds := s.Resolve()
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
