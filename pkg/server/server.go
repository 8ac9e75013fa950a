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
	"fmt"
	"net/http"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/creds"
)

// CredentialsSource is the part of a creds.Resolver served by the agent.
type CredentialsSource interface {
	Credentials(ctx context.Context) (creds.Credentials, error)
	ExpiresAt() (time.Time, bool)
}

type ServerOptions struct {
	ListenPort int
	// RoleName is advertised to clients. It defaults to the resolver's role,
	// or "ramcreds" for static credentials.
	RoleName string
	// StaticExpiry is the expiration advertised for credentials that never expire.
	StaticExpiry time.Duration
}

func DefaultOptions() *ServerOptions {
	return &ServerOptions{
		ListenPort:   3100,
		StaticExpiry: time.Hour,
	}
}

// Server serves resolved credentials to local processes in the metadata
// service format.
type Server struct {
	options *ServerOptions
	source  CredentialsSource
	clock   clock.Clock
	mutex   sync.Mutex
	server  *http.Server
	router  *mux.Router
}

func NewWebServer(options *ServerOptions, source CredentialsSource, clk clock.Clock) *Server {
	if options.RoleName == "" {
		options.RoleName = "ramcreds"
	}
	s := &Server{options: options, source: source, clock: clk}
	s.router = s.buildRouter()
	return s
}

// DefaultRoleName returns the role name the agent advertises for source.
func DefaultRoleName(source creds.Source) string {
	if role, ok := source.(*creds.RoleSource); ok {
		return role.RoleName
	}
	return "ramcreds"
}

func (s *Server) buildRouter() *mux.Router {
	router := mux.NewRouter()
	router.Handle("/ping", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "pong") }))
	newHealthHandler(s.source).Install(router)
	newRoleNameHandler(s.options.RoleName).Install(router)
	newCredentialsHandler(s.source, s.options.RoleName, s.options.StaticExpiry, s.clock).Install(router)
	return router
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) listenAddress() string {
	return fmt.Sprintf(":%d", s.options.ListenPort)
}

func (s *Server) Serve() error {
	s.mutex.Lock()
	s.server = &http.Server{Addr: s.listenAddress(), Handler: loggingHandler(s.router)}
	s.mutex.Unlock()

	log.Infof("listening %s", s.listenAddress())

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.server == nil {
		return nil
	}

	log.Infoln("starting server shutdown")
	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.server.Shutdown(c)
}

func loggingHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		h.ServeHTTP(w, req)
		log.WithFields(requestFields(req)).WithField("duration", time.Since(started).String()).Debugf("processed request")
	})
}

func requestFields(req *http.Request) log.Fields {
	return log.Fields{
		"req.method": req.Method,
		"req.path":   req.URL.Path,
		"req.remote": req.RemoteAddr,
	}
}
