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
	"fmt"
	"net/http"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/aliyun/metadata"
	"github.com/uswitch/ramcreds/pkg/creds"
)

type credentialsHandler struct {
	source       CredentialsSource
	roleName     string
	staticExpiry time.Duration
	clock        clock.Clock
}

func (c *credentialsHandler) Install(router *mux.Router) {
	router.Handle("/{version}/meta-data/ram/security-credentials/{role:.+}", adapt(withMeter("credentials", c)))
}

func (c *credentialsHandler) Handle(ctx context.Context, w http.ResponseWriter, req *http.Request) (int, error) {
	timer := prometheus.NewTimer(handlerTimer.WithLabelValues("credentials"))
	defer timer.ObserveDuration()

	role := mux.Vars(req)["role"]
	if role != c.roleName {
		return http.StatusNotFound, fmt.Errorf("unknown role %s", role)
	}

	issued, err := c.source.Credentials(ctx)
	if err != nil {
		credentialFetchError.WithLabelValues("credentials").Inc()
		return http.StatusInternalServerError, fmt.Errorf("error fetching credentials: %s", err.Error())
	}

	now := c.clock.Now()
	expiration, ok := c.source.ExpiresAt()
	if !ok {
		expiration = now.Add(c.staticExpiry)
	}

	w.Header().Set("Content-Type", "application/json")
	err = json.NewEncoder(w).Encode(metadata.NewRoleCredentialsResponse(issued, expiration, now))
	if err != nil {
		credentialEncodeError.WithLabelValues("credentials").Inc()
		return http.StatusInternalServerError, fmt.Errorf("error encoding credentials: %s", err.Error())
	}

	log.WithFields(requestFields(req)).WithFields(creds.CredentialsFields(issued)).Debugf("served credentials")
	success.WithLabelValues("credentials").Inc()
	return http.StatusOK, nil
}

func newCredentialsHandler(source CredentialsSource, roleName string, staticExpiry time.Duration, clk clock.Clock) *credentialsHandler {
	return &credentialsHandler{
		source:       source,
		roleName:     roleName,
		staticExpiry: staticExpiry,
		clock:        clk,
	}
}

type roleNameHandler struct {
	roleName string
}

func (h *roleNameHandler) Install(router *mux.Router) {
	router.Handle("/{version}/meta-data/ram/security-credentials/", adapt(withMeter("roleName", h)))
}

func (h *roleNameHandler) Handle(ctx context.Context, w http.ResponseWriter, req *http.Request) (int, error) {
	timer := prometheus.NewTimer(handlerTimer.WithLabelValues("roleName"))
	defer timer.ObserveDuration()

	fmt.Fprint(w, h.roleName)
	success.WithLabelValues("roleName").Inc()
	return http.StatusOK, nil
}

func newRoleNameHandler(roleName string) *roleNameHandler {
	return &roleNameHandler{roleName: roleName}
}

type healthHandler struct {
	source CredentialsSource
}

func (h *healthHandler) Install(router *mux.Router) {
	router.Handle("/health", adapt(withMeter("health", h)))
}

// Handle reports healthy once credentials can be resolved.
func (h *healthHandler) Handle(ctx context.Context, w http.ResponseWriter, req *http.Request) (int, error) {
	timer := prometheus.NewTimer(handlerTimer.WithLabelValues("health"))
	defer timer.ObserveDuration()

	if _, err := h.source.Credentials(ctx); err != nil {
		credentialFetchError.WithLabelValues("health").Inc()
		return http.StatusInternalServerError, fmt.Errorf("unable to resolve credentials: %s", err.Error())
	}

	fmt.Fprint(w, "ok")
	return http.StatusOK, nil
}

func newHealthHandler(source CredentialsSource) *healthHandler {
	return &healthHandler{source: source}
}
