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
	"context"
)

// RoleFetcher retrieves credentials for an instance RAM role.
type RoleFetcher interface {
	FetchRole(ctx context.Context, roleName string, hardened bool) (*RoleCredentials, error)
}

// Provider supplies the credentials to sign a request with.
type Provider interface {
	Credentials(ctx context.Context) (Credentials, error)
}
