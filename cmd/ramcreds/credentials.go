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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/creds"
)

type credentialsCommand struct {
	logOptions
	credentialOptions

	export bool
}

func (cmd *credentialsCommand) Bind(parser parser) {
	cmd.logOptions.bind(parser)
	cmd.credentialOptions.bind(parser)

	parser.Flag("export", "Print shell exports of the full credentials instead of a masked summary").BoolVar(&cmd.export)
}

type credentialsSummary struct {
	Source           string
	AccessKeyId      string
	HasSecurityToken bool
	Expires          string `json:",omitempty"`
}

func (cmd *credentialsCommand) run() error {
	cmd.configureLogger()

	resolver, err := cmd.resolver(clock.NewClock())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*cmd.timeout+time.Second)
	defer cancel()

	resolved, err := resolver.Credentials(ctx)
	if err != nil {
		return err
	}

	if cmd.export {
		fmt.Print(exports(resolved))
		return nil
	}

	summary := credentialsSummary{
		Source:           resolver.Source().String(),
		AccessKeyId:      resolved.MaskedAccessKeyID(),
		HasSecurityToken: resolved.HasSecurityToken(),
	}
	if expiresAt, ok := resolver.ExpiresAt(); ok {
		summary.Expires = expiresAt.Format(time.RFC3339)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

func exports(c creds.Credentials) string {
	var b strings.Builder
	fmt.Fprintf(&b, "export %s=%q\n", creds.EnvAccessKeyID, c.AccessKeyID)
	fmt.Fprintf(&b, "export %s=%q\n", creds.EnvAccessKeySecret, c.AccessKeySecret)
	if c.HasSecurityToken() {
		fmt.Fprintf(&b, "export %s=%q\n", creds.EnvSecurityToken, c.SecurityToken)
	} else {
		fmt.Fprintf(&b, "unset %s\n", creds.EnvSecurityToken)
	}
	return b.String()
}

func (cmd *credentialsCommand) Run() {
	if err := cmd.run(); err != nil {
		log.Fatalf("error resolving credentials: %s", err.Error())
	}
}

type rolesCommand struct {
	logOptions
	credentialOptions
}

func (cmd *rolesCommand) Bind(parser parser) {
	cmd.logOptions.bind(parser)
	cmd.credentialOptions.bind(parser)
}

func (cmd *rolesCommand) run() error {
	cmd.configureLogger()

	ctx, cancel := context.WithTimeout(context.Background(), 2*cmd.timeout+time.Second)
	defer cancel()

	roles, err := cmd.metadataClient().RoleNames(ctx, cmd.hardened)
	if err != nil {
		return err
	}
	for _, role := range roles {
		fmt.Println(role)
	}
	return nil
}

func (cmd *rolesCommand) Run() {
	if err := cmd.run(); err != nil {
		log.Fatalf("error listing roles: %s", err.Error())
	}
}
