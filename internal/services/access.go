// access.go
//
// An industrial shop operations backend with versioned database backups
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of shopdb.
// shopdb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// shopdb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with shopdb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package services

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log"
	"sync"
	"time"

	authorizer "github.com/localnerve/authorizer-go"
	"github.com/localnerve/shopdb/internal/config"
	"github.com/localnerve/shopdb/internal/utils"
)

// Scope names the privilege an administrative operation needs.
type Scope string

const (
	// ScopeSetup gates personnel registration.
	ScopeSetup Scope = "setup"
	// ScopeAdmin gates personnel updates and destructive maintenance.
	ScopeAdmin Scope = "admin"
)

// Credentials are whatever the caller presented with a request.
type Credentials struct {
	Key     string
	Session string
}

// AccessPolicy decides whether credentials grant scope. Implementations
// never report which secret was expected.
type AccessPolicy interface {
	Authorize(ctx context.Context, creds Credentials, scope Scope) bool
}

// NewAccessPolicy builds the policy selected by cfg.AccessPolicy.
func NewAccessPolicy(cfg *config.Config) (AccessPolicy, error) {
	shared := NewSharedKeyPolicy(cfg.MasterSetupKey, cfg.AdminKey)
	switch cfg.AccessPolicy {
	case config.PolicySharedKey:
		return shared, nil
	case config.PolicyAuthorizer:
		return NewAuthorizerPolicy(cfg.AuthzURL, cfg.AuthzClientID, cfg.PublicURL), nil
	case config.PolicyAny:
		return AnyPolicy{shared, NewAuthorizerPolicy(cfg.AuthzURL, cfg.AuthzClientID, cfg.PublicURL)}, nil
	}
	return nil, fmt.Errorf("unsupported access policy: %s", cfg.AccessPolicy)
}

// SharedKeyPolicy compares a presented key with one configured secret per
// scope.
type SharedKeyPolicy struct {
	keys map[Scope][]byte
}

// NewSharedKeyPolicy returns a policy for the setup and admin secrets.
func NewSharedKeyPolicy(setupKey, adminKey string) *SharedKeyPolicy {
	return &SharedKeyPolicy{keys: map[Scope][]byte{
		ScopeSetup: []byte(setupKey),
		ScopeAdmin: []byte(adminKey),
	}}
}

func (p *SharedKeyPolicy) Authorize(_ context.Context, creds Credentials, scope Scope) bool {
	expected := p.keys[scope]
	if len(expected) == 0 || creds.Key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(creds.Key), expected) == 1
}

// authorizerRetryDelay is how long a failed connection is remembered before
// the next request tries the Authorizer again.
const authorizerRetryDelay = 5 * time.Second

// AuthorizerPolicy grants a scope to a valid Authorizer session holding the
// admin role. The client is created on first use; failures are retried after
// a delay, successes are kept.
type AuthorizerPolicy struct {
	url         string
	clientID    string
	redirectURL string
	roles       map[Scope][]string
	retryDelay  time.Duration

	mu          sync.Mutex
	client      *authorizer.AuthorizerClient
	lastErr     error
	nextAttempt time.Time
}

// NewAuthorizerPolicy returns a policy backed by the Authorizer at url.
// redirectURL is the service's public URL.
func NewAuthorizerPolicy(url, clientID, redirectURL string) *AuthorizerPolicy {
	return &AuthorizerPolicy{
		url:         url,
		clientID:    clientID,
		redirectURL: redirectURL,
		retryDelay:  authorizerRetryDelay,
		roles: map[Scope][]string{
			ScopeSetup: {"admin"},
			ScopeAdmin: {"admin"},
		},
	}
}

func (p *AuthorizerPolicy) connect() (*authorizer.AuthorizerClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if time.Now().Before(p.nextAttempt) {
		return nil, p.lastErr
	}

	client, err := p.dial()
	if err != nil {
		p.lastErr = err
		p.nextAttempt = time.Now().Add(p.retryDelay)
		return nil, err
	}
	p.client, p.lastErr = client, nil
	return client, nil
}

func (p *AuthorizerPolicy) dial() (*authorizer.AuthorizerClient, error) {
	if err := utils.PingAuthorizer(p.url); err != nil {
		return nil, fmt.Errorf("authorizer ping failed: %w", err)
	}
	log.Printf("Initializing Authorizer: authorizerURL=%s, clientID=%s, redirectURL=%s", p.url, p.clientID, p.redirectURL)
	client, err := authorizer.NewAuthorizerClient(p.clientID, p.url, p.redirectURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer client: %w", err)
	}
	return client, nil
}

func (p *AuthorizerPolicy) Authorize(_ context.Context, creds Credentials, scope Scope) bool {
	roles, ok := p.roles[scope]
	if !ok || creds.Session == "" {
		return false
	}
	client, err := p.connect()
	if err != nil {
		log.Printf("Authorizer unavailable: %v", err)
		return false
	}

	rolePtrs := make([]*string, len(roles))
	for i := range roles {
		rolePtrs[i] = &roles[i]
	}
	res, err := client.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: creds.Session,
		Roles:  rolePtrs,
	})
	if err != nil {
		log.Printf("Session validation failed: %v", err)
		return false
	}
	return res != nil && res.IsValid
}

// AnyPolicy grants a scope when any of its policies does.
type AnyPolicy []AccessPolicy

func (a AnyPolicy) Authorize(ctx context.Context, creds Credentials, scope Scope) bool {
	for _, p := range a {
		if p.Authorize(ctx, creds, scope) {
			return true
		}
	}
	return false
}
