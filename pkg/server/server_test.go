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
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/fortytw2/leaktest"
	"github.com/uswitch/ramcreds/pkg/aliyun/metadata"
	"github.com/uswitch/ramcreds/pkg/creds"
	"github.com/uswitch/ramcreds/pkg/testutil"
)

var epoch = time.Date(2024, 12, 28, 2, 0, 0, 0, time.UTC)

func newTestServer(source CredentialsSource, role string) *Server {
	options := DefaultOptions()
	options.RoleName = role
	return NewWebServer(options, source, fakeclock.NewFakeClock(epoch))
}

func serve(s *Server, path string) *httptest.ResponseRecorder {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	r, _ := http.NewRequest("GET", path, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, r.WithContext(ctx))
	return rr
}

func TestReturnsStaticCredentials(t *testing.T) {
	defer leaktest.Check(t)()

	s := newTestServer(creds.NewResolver(creds.NewSessionSource("A1", "S1", "T1"), nil), "ramcreds")
	rr := serve(s, "/latest/meta-data/ram/security-credentials/ramcreds")

	if rr.Code != http.StatusOK {
		t.Fatal("unexpected status, was", rr.Code)
	}
	if content := rr.Header().Get("Content-Type"); content != "application/json" {
		t.Error("expected json result", content)
	}

	var resp metadata.RoleCredentialsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.AccessKeyId != "A1" || resp.AccessKeySecret != "S1" || resp.SecurityToken != "T1" {
		t.Error("unexpected credentials", resp)
	}
	if resp.Code != metadata.SuccessCode {
		t.Error("unexpected code, was", resp.Code)
	}
	if resp.Expiration != "2024-12-28T03:00:00Z" {
		t.Error("expected static expiry, was", resp.Expiration)
	}
}

func TestServedCredentialsParseAsRoleCredentials(t *testing.T) {
	meta := testutil.NewStubMetadataService().WithRole("worker", testutil.CredentialsJSON("STS.A1", "S1", "T1", epoch.Add(6*time.Hour)))
	defer meta.Close()

	resolver := creds.NewResolver(creds.NewRoleSource("worker", false), metadata.NewClient(metadata.WithEndpoint(meta.URL)), creds.WithClock(fakeclock.NewFakeClock(epoch)))
	s := newTestServer(resolver, "worker")

	rr := serve(s, "/latest/meta-data/ram/security-credentials/worker")
	issued, err := metadata.ParseRoleCredentials(rr.Body.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if issued.AccessKeyID != "STS.A1" {
		t.Error("unexpected key, was", issued.AccessKeyID)
	}
	if !issued.Expiration.Equal(epoch.Add(creds.DefaultCacheWindow)) {
		t.Error("expected the cache expiry to be advertised, was", issued.Expiration)
	}
}

func TestUnknownRoleNotFound(t *testing.T) {
	s := newTestServer(creds.NewResolver(creds.NewStaticSource("A1", "S1"), nil), "ramcreds")
	rr := serve(s, "/latest/meta-data/ram/security-credentials/other")

	if rr.Code != http.StatusNotFound {
		t.Error("unexpected status, was", rr.Code)
	}
}

func TestCredentialErrorIsReported(t *testing.T) {
	meta := testutil.NewStubMetadataService().WithTokenStatus(http.StatusInternalServerError)
	defer meta.Close()

	resolver := creds.NewResolver(creds.NewRoleSource("worker", true), metadata.NewClient(metadata.WithEndpoint(meta.URL)))
	s := newTestServer(resolver, "worker")

	rr := serve(s, "/latest/meta-data/ram/security-credentials/worker")
	if rr.Code != http.StatusInternalServerError {
		t.Error("unexpected status", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "error negotiating metadata token") {
		t.Error("unexpected error", rr.Body.String())
	}

	rr = serve(s, "/health")
	if rr.Code != http.StatusInternalServerError {
		t.Error("expected unhealthy, was", rr.Code)
	}
}

func TestRoleName(t *testing.T) {
	s := newTestServer(creds.NewResolver(creds.NewStaticSource("A1", "S1"), nil), "worker")
	rr := serve(s, "/latest/meta-data/ram/security-credentials/")

	if rr.Code != http.StatusOK || rr.Body.String() != "worker" {
		t.Error("unexpected response", rr.Code, rr.Body.String())
	}
}

func TestHealthAndPing(t *testing.T) {
	s := newTestServer(creds.NewResolver(creds.NewStaticSource("A1", "S1"), nil), "ramcreds")

	if rr := serve(s, "/health"); rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Error("unexpected health", rr.Code, rr.Body.String())
	}
	if rr := serve(s, "/ping"); rr.Body.String() != "pong" {
		t.Error("unexpected ping", rr.Body.String())
	}
}

func TestDefaultRoleName(t *testing.T) {
	if name := DefaultRoleName(creds.NewRoleSource("worker", true)); name != "worker" {
		t.Error("unexpected role name, was", name)
	}
	if name := DefaultRoleName(creds.NewStaticSource("A", "S")); name != "ramcreds" {
		t.Error("unexpected role name, was", name)
	}
}
