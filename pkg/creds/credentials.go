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
	"time"

	log "github.com/sirupsen/logrus"
)

// Credentials is the key material used to sign requests. An empty
// SecurityToken means the credentials carry no token.
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
	SecurityToken   string
}

// RoleCredentials are credentials issued for an instance RAM role. Expiration
// and LastUpdated are zero when the metadata service didn't report them in a
// recognised format.
type RoleCredentials struct {
	Credentials
	Expiration  time.Time
	LastUpdated time.Time
}

func NewCredentials(accessKeyID, accessKeySecret string) Credentials {
	return Credentials{AccessKeyID: accessKeyID, AccessKeySecret: accessKeySecret}
}

func NewSessionCredentials(accessKeyID, accessKeySecret, securityToken string) Credentials {
	return Credentials{AccessKeyID: accessKeyID, AccessKeySecret: accessKeySecret, SecurityToken: securityToken}
}

// HasSecurityToken reports whether the credentials must be presented along
// with a security token.
func (c Credentials) HasSecurityToken() bool {
	return c.SecurityToken != ""
}

// Validate checks that both the key id and secret are present.
func (c Credentials) Validate() error {
	var missing []string
	if c.AccessKeyID == "" {
		missing = append(missing, "AccessKeyId")
	}
	if c.AccessKeySecret == "" {
		missing = append(missing, "AccessKeySecret")
	}
	if len(missing) > 0 {
		return &IncompleteCredentialError{Missing: missing}
	}
	return nil
}

// CredentialsFields returns log fields describing credentials without
// exposing the secret or token.
func CredentialsFields(c Credentials) log.Fields {
	return log.Fields{
		"credentials.access.key": c.MaskedAccessKeyID(),
		"credentials.token":      c.HasSecurityToken(),
	}
}

// MaskedAccessKeyID returns the key id with all but its prefix hidden.
func (c Credentials) MaskedAccessKeyID() string {
	return maskKey(c.AccessKeyID)
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
