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
package metadata

import (
	"encoding/json"
	"time"

	"github.com/uswitch/ramcreds/pkg/creds"
)

const (
	SuccessCode = "Success"
	timeLayout  = "2006-01-02T15:04:05Z"
)

// RoleCredentialsResponse is the payload returned by the metadata service
// for a RAM role.
type RoleCredentialsResponse struct {
	AccessKeyId     string
	AccessKeySecret string
	Expiration      string
	SecurityToken   string
	LastUpdated     string
	Code            string
}

// NewRoleCredentialsResponse builds a successful response for creds.
func NewRoleCredentialsResponse(c creds.Credentials, expiration, lastUpdated time.Time) *RoleCredentialsResponse {
	return &RoleCredentialsResponse{
		Code:            SuccessCode,
		AccessKeyId:     c.AccessKeyID,
		AccessKeySecret: c.AccessKeySecret,
		SecurityToken:   c.SecurityToken,
		Expiration:      expiration.UTC().Format(timeLayout),
		LastUpdated:     lastUpdated.UTC().Format(timeLayout),
	}
}

// ParseRoleCredentials decodes and checks a metadata credentials payload.
func ParseRoleCredentials(body []byte) (*creds.RoleCredentials, error) {
	var resp RoleCredentialsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &creds.InvalidMetadataResponseError{Reason: "error parsing role credentials", Err: err}
	}

	if resp.Code != SuccessCode {
		return nil, &creds.InvalidMetadataResponseError{Reason: "unexpected code " + quote(resp.Code)}
	}

	issued := &creds.RoleCredentials{
		Credentials: creds.NewSessionCredentials(resp.AccessKeyId, resp.AccessKeySecret, resp.SecurityToken),
		Expiration:  parseTime(resp.Expiration),
		LastUpdated: parseTime(resp.LastUpdated),
	}
	if err := issued.Validate(); err != nil {
		return nil, err
	}
	return issued, nil
}

// parseTime returns the zero time when s isn't in a recognised layout.
func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func quote(s string) string {
	if s == "" {
		return `""`
	}
	return s
}
