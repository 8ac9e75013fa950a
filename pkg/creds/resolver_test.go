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
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/fortytw2/leaktest"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var epoch = time.Date(2024, 12, 28, 2, 0, 0, 0, time.UTC)

type stubFetcher struct {
	mu        sync.Mutex
	creds     *RoleCredentials
	err       error
	callCount int
	roles     []string
	hardened  []bool
	release   chan struct{}
}

func (s *stubFetcher) FetchRole(ctx context.Context, roleName string, hardened bool) (*RoleCredentials, error) {
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount = s.callCount + 1
	s.roles = append(s.roles, roleName)
	s.hardened = append(s.hardened, hardened)
	if s.err != nil {
		return nil, s.err
	}
	issued := *s.creds
	return &issued, nil
}

func (s *stubFetcher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func roleCredentials(id, secret, token string, expiration time.Time) *RoleCredentials {
	return &RoleCredentials{Credentials: NewSessionCredentials(id, secret, token), Expiration: expiration}
}

type failingFetcher struct {
	t *testing.T
}

func (f *failingFetcher) FetchRole(ctx context.Context, roleName string, hardened bool) (*RoleCredentials, error) {
	f.t.Error("static source shouldn't fetch, was asked for", roleName)
	return nil, errors.New("unexpected fetch")
}

func TestStaticSourceNeverFetches(t *testing.T) {
	defer leaktest.Check(t)()

	resolver := NewResolver(NewStaticSource("AKID1", "SECRET1"), &failingFetcher{t: t})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			creds, err := resolver.Credentials(ctx)
			if err != nil {
				t.Error("unexpected error", err)
				return
			}
			if diff := cmp.Diff(NewCredentials("AKID1", "SECRET1"), creds); diff != "" {
				t.Error("unexpected credentials", diff)
			}
		}()
	}
	wg.Wait()

	if resolver.State() != CacheValid {
		t.Error("static source should always be valid, was", resolver.State())
	}
	if _, ok := resolver.ExpiresAt(); ok {
		t.Error("static source shouldn't have an expiry")
	}
}

func TestStaticSourceWithoutSecretIsIncomplete(t *testing.T) {
	resolver := NewResolver(NewStaticSource("AKID1", ""), nil)

	_, err := resolver.Credentials(context.Background())
	var incomplete *IncompleteCredentialError
	if !errors.As(err, &incomplete) {
		t.Fatal("expected incomplete credential error, was", err)
	}
	if diff := cmp.Diff([]string{"AccessKeySecret"}, incomplete.Missing); diff != "" {
		t.Error("unexpected missing fields", diff)
	}
}

func TestSessionSourceKeepsToken(t *testing.T) {
	creds, err := NewResolver(NewSessionSource("id", "secret", "token"), nil).Credentials(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !creds.HasSecurityToken() || creds.SecurityToken != "token" {
		t.Error("expected token, was", creds.SecurityToken)
	}

	creds, _ = NewResolver(NewSessionSource("id", "secret", ""), nil).Credentials(context.Background())
	if creds.HasSecurityToken() {
		t.Error("empty token should be treated as no token")
	}
}

func TestRoleCredentialsCachedUntilExpiry(t *testing.T) {
	clock := fakeclock.NewFakeClock(epoch)
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", epoch.Add(6*time.Hour))}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher, WithClock(clock))
	ctx := context.Background()

	if resolver.State() != CacheEmpty {
		t.Error("expected empty cache, was", resolver.State())
	}

	creds, err := resolver.Credentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(NewSessionCredentials("STS.A1", "S1", "T1"), creds); diff != "" {
		t.Error("unexpected credentials", diff)
	}

	expiresAt, ok := resolver.ExpiresAt()
	if !ok || !expiresAt.Equal(epoch.Add(DefaultCacheWindow)) {
		t.Error("expected expiry at now + cache window, was", expiresAt)
	}

	clock.Increment(DefaultCacheWindow - time.Second)
	resolver.Credentials(ctx)
	if fetcher.calls() != 1 {
		t.Error("expected creds to be cached, fetched", fetcher.calls())
	}

	clock.Increment(time.Second)
	if resolver.State() != CacheStale {
		t.Error("credentials expiring now should be stale, was", resolver.State())
	}
	resolver.Credentials(ctx)
	resolver.Credentials(ctx)
	if fetcher.calls() != 2 {
		t.Error("expected exactly one refresh at expiry, fetched", fetcher.calls())
	}
	if fetcher.roles[1] != "worker" || fetcher.hardened[1] {
		t.Error("unexpected fetch arguments", fetcher.roles, fetcher.hardened)
	}
}

func TestFailedRefreshReturnsErrorNotStaleCredentials(t *testing.T) {
	clock := fakeclock.NewFakeClock(epoch)
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", true), fetcher, WithClock(clock))
	ctx := context.Background()

	if _, err := resolver.Credentials(ctx); err != nil {
		t.Fatal(err)
	}
	previous, _ := resolver.ExpiresAt()

	clock.Increment(DefaultUnknownExpiryWindow)
	outage := &MetadataFetchError{Role: "worker", Status: 503}
	fetcher.mu.Lock()
	fetcher.err = outage
	fetcher.mu.Unlock()

	creds, err := resolver.Credentials(ctx)
	if err != outage {
		t.Error("expected fetch error to be returned unmodified, was", err)
	}
	if creds != (Credentials{}) {
		t.Error("expected no credentials on failure, was", creds)
	}
	if expiresAt, _ := resolver.ExpiresAt(); !expiresAt.Equal(previous) {
		t.Error("failed refresh shouldn't touch the cache entry")
	}
	if resolver.State() != CacheStale {
		t.Error("expected cache to remain stale, was", resolver.State())
	}

	fetcher.mu.Lock()
	fetcher.err = nil
	fetcher.mu.Unlock()
	if _, err := resolver.Credentials(ctx); err != nil {
		t.Error("expected recovery after outage, was", err)
	}
}

func TestServerExpirationCapsCacheWindow(t *testing.T) {
	clock := fakeclock.NewFakeClock(epoch)
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", epoch.Add(10*time.Minute))}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher, WithClock(clock))

	resolver.Credentials(context.Background())
	expiresAt, _ := resolver.ExpiresAt()
	if !expiresAt.Equal(epoch.Add(9 * time.Minute)) {
		t.Error("expected expiry one margin before server expiration, was", expiresAt)
	}
}

func TestUnknownExpirationUsesShortWindow(t *testing.T) {
	clock := fakeclock.NewFakeClock(epoch)
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher, WithClock(clock), WithUnknownExpiryWindow(2*time.Minute))

	resolver.Credentials(context.Background())
	expiresAt, _ := resolver.ExpiresAt()
	if !expiresAt.Equal(epoch.Add(2 * time.Minute)) {
		t.Error("expected unknown expiry window, was", expiresAt)
	}
}

func TestExpiredCredentialsAreRejected(t *testing.T) {
	clock := fakeclock.NewFakeClock(epoch)
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", epoch.Add(30*time.Second))}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher, WithClock(clock))

	_, err := resolver.Credentials(context.Background())
	var invalid *InvalidMetadataResponseError
	if !errors.As(err, &invalid) {
		t.Error("expected invalid metadata response, was", err)
	}
	if resolver.State() != CacheEmpty {
		t.Error("expired credentials shouldn't be cached")
	}
}

func TestIncompleteRoleCredentialsAreRejected(t *testing.T) {
	fetcher := &stubFetcher{creds: roleCredentials("", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher)

	_, err := resolver.Credentials(context.Background())
	var incomplete *IncompleteCredentialError
	if !errors.As(err, &incomplete) {
		t.Error("expected incomplete credentials, was", err)
	}
}

type emptyFetcher struct{}

func (emptyFetcher) FetchRole(ctx context.Context, roleName string, hardened bool) (*RoleCredentials, error) {
	return nil, nil
}

func TestMissingRoleCredentialsAreInvalid(t *testing.T) {
	resolver := NewResolver(NewRoleSource("worker", false), emptyFetcher{})

	_, err := resolver.Credentials(context.Background())
	var invalid *InvalidMetadataResponseError
	if !errors.As(err, &invalid) {
		t.Error("expected invalid metadata response, was", err)
	}
	if resolver.State() != CacheEmpty {
		t.Error("nothing should be cached")
	}
}

func TestFetchedAtRecordsRefreshTime(t *testing.T) {
	clock := fakeclock.NewFakeClock(epoch)
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher, WithClock(clock))

	if _, ok := resolver.FetchedAt(); ok {
		t.Error("empty cache shouldn't have a fetch time")
	}

	clock.Increment(time.Minute)
	if _, err := resolver.Credentials(context.Background()); err != nil {
		t.Fatal(err)
	}
	fetchedAt, ok := resolver.FetchedAt()
	if !ok || !fetchedAt.Equal(epoch.Add(time.Minute)) {
		t.Error("unexpected fetch time", fetchedAt)
	}
}

func TestConcurrentStaleCallersShareOneFetch(t *testing.T) {
	defer leaktest.Check(t)()

	release := make(chan struct{})
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{}), release: release}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := resolver.Credentials(ctx); err != nil {
				t.Error("unexpected error", err)
			}
		}()
	}
	close(release)
	wg.Wait()

	if fetcher.calls() != 1 {
		t.Error("expected a single fetch, was", fetcher.calls())
	}
}

func TestReturnedCredentialsAreCopies(t *testing.T) {
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher)
	ctx := context.Background()

	creds, _ := resolver.Credentials(ctx)
	creds.AccessKeyID = "changed"

	again, _ := resolver.Credentials(ctx)
	if again.AccessKeyID != "STS.A1" {
		t.Error("mutating a returned value changed the cache, was", again.AccessKeyID)
	}
}

func TestRefreshForcesFetch(t *testing.T) {
	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher)
	ctx := context.Background()

	resolver.Credentials(ctx)
	resolver.Refresh(ctx)
	if fetcher.calls() != 2 {
		t.Error("expected refresh to fetch again, was", fetcher.calls())
	}
}

func TestCacheMetrics(t *testing.T) {
	hits, misses := testutil.ToFloat64(cacheHit), testutil.ToFloat64(cacheMiss)

	fetcher := &stubFetcher{creds: roleCredentials("STS.A1", "S1", "T1", time.Time{})}
	resolver := NewResolver(NewRoleSource("worker", false), fetcher)
	ctx := context.Background()
	resolver.Credentials(ctx)
	resolver.Credentials(ctx)
	resolver.Credentials(ctx)

	if testutil.ToFloat64(cacheMiss)-misses != 1 {
		t.Error("expected one cache miss")
	}
	if testutil.ToFloat64(cacheHit)-hits != 2 {
		t.Error("expected two cache hits")
	}
}

func TestRoleWithoutFetcher(t *testing.T) {
	_, err := NewResolver(NewRoleSource("worker", false), nil).Credentials(context.Background())
	var fetchErr *MetadataFetchError
	if !errors.As(err, &fetchErr) {
		t.Error("expected fetch error, was", err)
	}
}
