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

import "fmt"

// Source describes where a Resolver obtains credentials from. It is either a
// StaticSource or a RoleSource.
type Source interface {
	fmt.Stringer
	isSource()
}

// StaticSource wraps long-lived credentials supplied by the caller. They never
// expire and are never refetched.
type StaticSource struct {
	creds Credentials
}

func NewStaticSource(accessKeyID, accessKeySecret string) *StaticSource {
	return &StaticSource{creds: NewCredentials(accessKeyID, accessKeySecret)}
}

// NewSessionSource creates a static source that also carries a security
// token. An empty token is treated as no token.
func NewSessionSource(accessKeyID, accessKeySecret, securityToken string) *StaticSource {
	return &StaticSource{creds: NewSessionCredentials(accessKeyID, accessKeySecret, securityToken)}
}

// Resolve returns a copy of the wrapped credentials.
func (s *StaticSource) Resolve() Credentials {
	return s.creds
}

func (s *StaticSource) String() string {
	return fmt.Sprintf("static(%s)", maskKey(s.creds.AccessKeyID))
}

func (*StaticSource) isSource() {}

// RoleSource refers to an instance RAM role whose credentials are fetched
// from the metadata service. Hardened roles negotiate a metadata token first.
type RoleSource struct {
	RoleName string
	Hardened bool
}

func NewRoleSource(roleName string, hardened bool) *RoleSource {
	return &RoleSource{RoleName: roleName, Hardened: hardened}
}

func (s *RoleSource) String() string {
	if s.Hardened {
		return fmt.Sprintf("role(%s, hardened)", s.RoleName)
	}
	return fmt.Sprintf("role(%s)", s.RoleName)
}

func (*RoleSource) isSource() {}
