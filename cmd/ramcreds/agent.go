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
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/prefetch"
	"github.com/uswitch/ramcreds/pkg/server"
)

type agentCommand struct {
	logOptions
	telemetryOptions
	credentialOptions
	*server.ServerOptions

	prefetchInterval time.Duration
	prefetchMargin   time.Duration
}

func (cmd *agentCommand) Bind(parser parser) {
	cmd.logOptions.bind(parser)
	cmd.telemetryOptions.bind(parser)
	cmd.credentialOptions.bind(parser)

	cmd.ServerOptions = server.DefaultOptions()

	parser.Flag("port", "HTTP port").Default("3100").IntVar(&cmd.ListenPort)
	parser.Flag("role-name", "Role name advertised to clients. Defaults to the resolved role.").StringVar(&cmd.RoleName)
	parser.Flag("static-expiry", "Expiration advertised for static credentials").Default("1h").DurationVar(&cmd.StaticExpiry)
	parser.Flag("prefetch-interval", "How often to check whether credentials need refreshing").Default("30s").DurationVar(&cmd.prefetchInterval)
	parser.Flag("prefetch-margin", "Refresh credentials this long before they expire").Default("5m").DurationVar(&cmd.prefetchMargin)
}

// run is the actual run implementation.
func (cmd *agentCommand) run() error {
	cmd.configureLogger()

	clk := clock.NewClock()
	resolver, err := cmd.resolver(clk)
	if err != nil {
		return err
	}
	if cmd.RoleName == "" {
		cmd.RoleName = server.DefaultRoleName(resolver.Source())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go cmd.telemetryOptions.start(ctx)

	manager := prefetch.NewManager(resolver, clk, cmd.prefetchMargin)
	go manager.Run(ctx, cmd.prefetchInterval)

	stopChan := make(chan os.Signal, 8)
	signal.Notify(stopChan, os.Interrupt, syscall.SIGTERM)

	agent := server.NewWebServer(cmd.ServerOptions, resolver, clk)

	errCh := make(chan error, 1)
	go func() {
		errCh <- agent.Serve()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Errorf("error running server: %s", err.Error())
			return err
		}
	case sig := <-stopChan:
		log.Infof("received signal (%s): starting server shutdown", sig.String())
		if err := agent.Stop(ctx); err != nil {
			log.Errorf("error shutting down server: %s", err.Error())
			return err
		}
		log.Infoln("gracefully shutdown server")
	}
	log.Infoln("stopped")
	return nil
}

func (cmd *agentCommand) Run() {
	if err := cmd.run(); err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
