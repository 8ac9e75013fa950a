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
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// MetadataRequest records a request received by StubMetadataService.
type MetadataRequest struct {
	Method string
	Path   string
	Token  string
	TTL    string
}

// StubMetadataService imitates the ECS instance metadata service.
type StubMetadataService struct {
	*httptest.Server

	lock              sync.Mutex
	requests          []MetadataRequest
	token             string
	tokenStatus       int
	credentialsStatus int
	credentials       map[string]string
}

func NewStubMetadataService() *StubMetadataService {
	s := &StubMetadataService{
		token:             "metadata-token",
		tokenStatus:       http.StatusOK,
		credentialsStatus: http.StatusOK,
		credentials:       map[string]string{},
	}

	router := mux.NewRouter()
	router.HandleFunc("/latest/api/token", s.handleToken).Methods(http.MethodPut)
	router.HandleFunc("/latest/meta-data/ram/security-credentials/", s.handleRoles).Methods(http.MethodGet)
	router.HandleFunc("/latest/meta-data/ram/security-credentials/{role}", s.handleCredentials).Methods(http.MethodGet)
	s.Server = httptest.NewServer(router)

	return s
}

// WithRole serves body as the credentials payload for role.
func (s *StubMetadataService) WithRole(role, body string) *StubMetadataService {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.credentials[role] = body
	return s
}

func (s *StubMetadataService) WithTokenStatus(status int) *StubMetadataService {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.tokenStatus = status
	return s
}

func (s *StubMetadataService) WithCredentialsStatus(status int) *StubMetadataService {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.credentialsStatus = status
	return s
}

func (s *StubMetadataService) Token() string {
	return s.token
}

// Requests returns the requests received so far.
func (s *StubMetadataService) Requests() []MetadataRequest {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]MetadataRequest(nil), s.requests...)
}

// CredentialRequests returns the requests received on the role credentials path.
func (s *StubMetadataService) CredentialRequests() []MetadataRequest {
	var found []MetadataRequest
	for _, r := range s.Requests() {
		if strings.HasPrefix(r.Path, "/latest/meta-data/ram/security-credentials/") {
			found = append(found, r)
		}
	}
	return found
}

func (s *StubMetadataService) record(r *http.Request) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.requests = append(s.requests, MetadataRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Token:  r.Header.Get("X-aliyun-ecs-metadata-token"),
		TTL:    r.Header.Get("X-aliyun-ecs-metadata-token-ttl-seconds"),
	})
}

func (s *StubMetadataService) handleToken(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.tokenStatus != http.StatusOK {
		http.Error(w, "token unavailable", s.tokenStatus)
		return
	}
	fmt.Fprint(w, s.token)
}

func (s *StubMetadataService) handleRoles(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.lock.Lock()
	defer s.lock.Unlock()
	for role := range s.credentials {
		fmt.Fprintln(w, role)
	}
}

func (s *StubMetadataService) handleCredentials(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.credentialsStatus != http.StatusOK {
		http.Error(w, "credentials unavailable", s.credentialsStatus)
		return
	}
	body, ok := s.credentials[mux.Vars(r)["role"]]
	if !ok {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, body)
}

// CredentialsJSON renders a successful metadata credentials payload.
func CredentialsJSON(accessKeyID, accessKeySecret, securityToken string, expiration time.Time) string {
	body, _ := json.Marshal(map[string]string{
		"AccessKeyId":     accessKeyID,
		"AccessKeySecret": accessKeySecret,
		"SecurityToken":   securityToken,
		"Expiration":      expiration.UTC().Format("2006-01-02T15:04:05Z"),
		"LastUpdated":     time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		"Code":            "Success",
	})
	return string(body)
}
