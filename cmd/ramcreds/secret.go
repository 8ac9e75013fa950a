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

	"code.cloudfoundry.org/clock"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/kms"
)

type getSecretCommand struct {
	logOptions
	credentialOptions
	kmsOptions

	secretName          string
	versionStage        string
	versionID           string
	fetchExtendedConfig bool
	printJSON           bool
}

func (cmd *getSecretCommand) Bind(parser parser) {
	cmd.logOptions.bind(parser)
	cmd.credentialOptions.bind(parser)
	cmd.kmsOptions.bind(parser)

	parser.Arg("secret", "Secret name").Required().StringVar(&cmd.secretName)
	parser.Flag("version-stage", "Secret version stage, e.g. ACSCurrent").StringVar(&cmd.versionStage)
	parser.Flag("version-id", "Secret version id").StringVar(&cmd.versionID)
	parser.Flag("fetch-extended-config", "Also fetch the extended config of the secret").BoolVar(&cmd.fetchExtendedConfig)
	parser.Flag("json", "Print the whole response as JSON").BoolVar(&cmd.printJSON)
}

func (cmd *getSecretCommand) run() error {
	cmd.configureLogger()

	resolver, err := cmd.resolver(clock.NewClock())
	if err != nil {
		return err
	}
	client := cmd.client(resolver, cmd.timeout)

	req := &kms.GetSecretValueRequest{
		SecretName:   cmd.secretName,
		VersionStage: cmd.versionStage,
		VersionId:    cmd.versionID,
	}
	if cmd.fetchExtendedConfig {
		req.FetchExtendedConfig = &cmd.fetchExtendedConfig
	}

	resp, err := client.GetSecretValue(context.Background(), req)
	if err != nil {
		return err
	}

	if cmd.printJSON {
		return printJSON(resp)
	}
	fmt.Println(resp.SecretData)
	return nil
}

func (cmd *getSecretCommand) Run() {
	if err := cmd.run(); err != nil {
		log.Fatalf("error getting secret: %s", err.Error())
	}
}

type describeSecretCommand struct {
	logOptions
	credentialOptions
	kmsOptions

	secretName string
	fetchTags  bool
}

func (cmd *describeSecretCommand) Bind(parser parser) {
	cmd.logOptions.bind(parser)
	cmd.credentialOptions.bind(parser)
	cmd.kmsOptions.bind(parser)

	parser.Arg("secret", "Secret name").Required().StringVar(&cmd.secretName)
	parser.Flag("fetch-tags", "Include the secret's tags").BoolVar(&cmd.fetchTags)
}

func (cmd *describeSecretCommand) run() error {
	cmd.configureLogger()

	resolver, err := cmd.resolver(clock.NewClock())
	if err != nil {
		return err
	}
	client := cmd.client(resolver, cmd.timeout)

	req := &kms.DescribeSecretRequest{SecretName: cmd.secretName}
	if cmd.fetchTags {
		req.FetchTags = &cmd.fetchTags
	}

	resp, err := client.DescribeSecret(context.Background(), req)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func (cmd *describeSecretCommand) Run() {
	if err := cmd.run(); err != nil {
		log.Fatalf("error describing secret: %s", err.Error())
	}
}

func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
