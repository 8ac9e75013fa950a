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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoCredentialSource returned when neither explicit keys nor a role
	// name are configured
	ErrNoCredentialSource = errors.New("no credential source configured")
)

// MetadataTokenError is returned when a hardened metadata token couldn't be
// negotiated.
type MetadataTokenError struct {
	Status int
	Err    error
}

func (e *MetadataTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error negotiating metadata token: %s", e.Err.Error())
	}
	return fmt.Sprintf("error negotiating metadata token: unexpected status %d", e.Status)
}

func (e *MetadataTokenError) Unwrap() error { return e.Err }

// MetadataFetchError is returned when role credentials couldn't be
// retrieved from the metadata service.
type MetadataFetchError struct {
	Role   string
	Status int
	Err    error
}

func (e *MetadataFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("error fetching credentials for role %s: %s", e.Role, e.Err.Error())
	}
	return fmt.Sprintf("error fetching credentials for role %s: unexpected status %d", e.Role, e.Status)
}

func (e *MetadataFetchError) Unwrap() error { return e.Err }

// InvalidMetadataResponseError is returned when the metadata service
// response couldn't be parsed or didn't report success.
type InvalidMetadataResponseError struct {
	Reason string
	Err    error
}

func (e *InvalidMetadataResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid metadata response: %s: %s", e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("invalid metadata response: %s", e.Reason)
}

func (e *InvalidMetadataResponseError) Unwrap() error { return e.Err }

// IncompleteCredentialError is returned when resolved credentials lack a key
// id or secret.
type IncompleteCredentialError struct {
	Missing []string
}

func (e *IncompleteCredentialError) Error() string {
	return fmt.Sprintf("incomplete credentials: missing %s", strings.Join(e.Missing, ", "))
}
