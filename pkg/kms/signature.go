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
package kms

import (
	"net/url"
	"time"

	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/uswitch/ramcreds/pkg/creds"
)

const (
	APIVersion       = "2016-01-20"
	signatureMethod  = "HMAC-SHA1"
	signatureVersion = "1.0"
	timestampLayout  = "2006-01-02T15:04:05Z"
)

// signedQuery adds the common RPC parameters for action to params and signs
// them with c. SecurityToken is only sent when the credentials carry one.
func signedQuery(method, action string, params map[string]string, c creds.Credentials, nonce string, now time.Time) url.Values {
	query := map[string]string{
		"Action":           action,
		"Format":           "JSON",
		"Version":          APIVersion,
		"AccessKeyId":      c.AccessKeyID,
		"SignatureMethod":  signatureMethod,
		"SignatureVersion": signatureVersion,
		"SignatureNonce":   nonce,
		"Timestamp":        now.UTC().Format(timestampLayout),
	}
	if c.HasSecurityToken() {
		query["SecurityToken"] = c.SecurityToken
	}
	for k, v := range params {
		query[k] = v
	}

	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}
	values.Set("Signature", sign(method, query, c.AccessKeySecret))
	return values
}

// sign computes the RPC signature v1 (HMAC-SHA1 over the canonicalised
// query, keyed with secret+"&").
func sign(method string, query map[string]string, secret string) string {
	params := make(map[string]*string, len(query))
	for k, v := range query {
		params[k] = tea.String(v)
	}
	return tea.StringValue(openapiutil.GetRPCSignature(params, tea.String(method), tea.String(secret)))
}
