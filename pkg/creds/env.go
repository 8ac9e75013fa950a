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
	"os"
	"strings"
)

const (
	EnvAccessKeyID     = "KMS_ACCESS_KEY_ID"
	EnvAccessKeySecret = "KMS_ACCESS_KEY_SECRET"
	EnvSecurityToken   = "KMS_SECURITY_TOKEN"
	EnvRoleName        = "KMS_ECS_RAM_ROLE"
	EnvSecurityHarden  = "KMS_ECS_SECURITY_HARDEN"
)

// LookupFunc reads a single environment variable.
type LookupFunc func(name string) (string, bool)

// OSLookup reads the process environment.
var OSLookup LookupFunc = os.LookupEnv

// FromEnvironment builds a Source from the KMS_* environment variables.
// Explicit keys win over a role name; when neither is set it returns
// ErrNoCredentialSource.
func FromEnvironment(lookup LookupFunc) (Source, error) {
	get := func(name string) string {
		v, _ := lookup(name)
		return v
	}

	id, secret := get(EnvAccessKeyID), get(EnvAccessKeySecret)
	if id != "" && secret != "" {
		return NewSessionSource(id, secret, get(EnvSecurityToken)), nil
	}

	if role := get(EnvRoleName); role != "" {
		return NewRoleSource(role, ParseBool(get(EnvSecurityHarden))), nil
	}

	return nil, ErrNoCredentialSource
}

// ParseBool matches 1, true, yes and on, ignoring case. Anything else is
// false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
