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
package prefetch

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	log "github.com/sirupsen/logrus"
	"github.com/uswitch/ramcreds/pkg/creds"
)

// Refresher is the part of a creds.Resolver the manager drives.
type Refresher interface {
	Refresh(ctx context.Context) (creds.Credentials, error)
	State() creds.CacheState
	ExpiresAt() (time.Time, bool)
	FetchedAt() (time.Time, bool)
}

// CredentialManager refreshes role credentials shortly before they expire so
// callers rarely wait on the metadata service. Failed refreshes are logged;
// the resolver keeps serving its cache until it goes stale.
type CredentialManager struct {
	resolver Refresher
	clock    clock.Clock
	margin   time.Duration
}

func NewManager(resolver Refresher, clk clock.Clock, margin time.Duration) *CredentialManager {
	return &CredentialManager{resolver: resolver, clock: clk, margin: margin}
}

// Run checks the resolver every interval until ctx is done.
func (m *CredentialManager) Run(ctx context.Context, interval time.Duration) {
	log.Infof("starting credential manager, checking every %s", interval)

	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	m.refreshIfExpiring(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Infof("stopping credential manager")
			return
		case <-ticker.C():
			m.refreshIfExpiring(ctx)
		}
	}
}

func (m *CredentialManager) refreshIfExpiring(ctx context.Context) {
	if !m.expiring() {
		return
	}

	issued, err := m.resolver.Refresh(ctx)
	if err != nil {
		log.Errorf("error prefetching credentials: %s", err.Error())
		return
	}

	logger := log.WithFields(creds.CredentialsFields(issued))
	if expiresAt, ok := m.resolver.ExpiresAt(); ok {
		logger = logger.WithField("expires", expiresAt.Format(time.RFC3339))
	}
	logger.Infof("prefetched credentials")
}

func (m *CredentialManager) expiring() bool {
	switch m.resolver.State() {
	case creds.CacheEmpty, creds.CacheStale:
		return true
	}
	expiresAt, ok := m.resolver.ExpiresAt()
	if !ok {
		// static credentials
		return false
	}
	return !m.clock.Now().Add(m.effectiveMargin(expiresAt)).Before(expiresAt)
}

// effectiveMargin caps the margin at half the cached entry's lifetime so
// short-lived credentials aren't refetched on every tick.
func (m *CredentialManager) effectiveMargin(expiresAt time.Time) time.Duration {
	fetchedAt, ok := m.resolver.FetchedAt()
	if !ok {
		return m.margin
	}
	if half := expiresAt.Sub(fetchedAt) / 2; half < m.margin {
		return half
	}
	return m.margin
}
