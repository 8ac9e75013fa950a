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
	"os"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	app := kingpin.New("ramcreds", "Resolve Alibaba Cloud RAM credentials and read KMS secrets")

	credentials := &credentialsCommand{}
	credentials.Bind(app.Command("credentials", "print the resolved credentials"))

	roles := &rolesCommand{}
	roles.Bind(app.Command("roles", "list the RAM roles attached to this instance"))

	getSecret := &getSecretCommand{}
	getSecret.Bind(app.Command("get-secret", "print a secret value"))

	describeSecret := &describeSecretCommand{}
	describeSecret.Bind(app.Command("describe-secret", "print secret metadata"))

	agent := &agentCommand{}
	agent.Bind(app.Command("agent", "serve resolved credentials to local processes"))

	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case "credentials":
		credentials.Run()
	case "roles":
		roles.Run()
	case "get-secret":
		getSecret.Run()
	case "describe-secret":
		describeSecret.Run()
	case "agent":
		agent.Run()
	}
}
