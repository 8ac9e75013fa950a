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
	"fmt"

	"github.com/tidwall/gjson"
)

// APIError is returned when KMS rejects a request.
type APIError struct {
	Status    int
	RequestID string
	Code      string
	Message   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kms error (status %d, request %s): %s: %s", e.Status, e.RequestID, e.Code, e.Message)
}

func parseAPIError(status int, body []byte) *APIError {
	fields := gjson.GetManyBytes(body, "RequestId", "Code", "Message")
	e := &APIError{
		Status:    status,
		RequestID: fields[0].String(),
		Code:      fields[1].String(),
		Message:   fields[2].String(),
	}
	if e.RequestID == "" {
		e.RequestID = "n/a"
	}
	if e.Code == "" {
		e.Code = "Unknown"
	}
	if e.Message == "" {
		e.Message = string(body)
	}
	return e
}
