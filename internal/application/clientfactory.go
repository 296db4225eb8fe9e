package application

import (
	"sync"

	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// GitHubClientFactory hands out provider clients per capability tier: one
// per distinct token, plus a shared anonymous client for subscriptions
// without a credential.
type GitHubClientFactory interface {
	ForToken(token string) driven.GitHubClient
	Anonymous() driven.GitHubClient
}

// CachingClientFactory builds clients lazily and caches them by token, so a
// credential shared by several subscriptions maps onto one client -- and
// therefore one transport cache and one rate budget -- rather than several.
// Construction funcs are injected by the composition root to keep this
// package free of adapter imports.
type CachingClientFactory struct {
	mu        sync.RWMutex
	newClient func(token string) driven.GitHubClient
	newAnon   func() driven.GitHubClient
	byToken   map[string]driven.GitHubClient
	anon      driven.GitHubClient
}

// NewCachingClientFactory creates a factory from the given constructors.
func NewCachingClientFactory(newClient func(token string) driven.GitHubClient, newAnon func() driven.GitHubClient) *CachingClientFactory {
	return &CachingClientFactory{
		newClient: newClient,
		newAnon:   newAnon,
		byToken:   make(map[string]driven.GitHubClient),
	}
}

// ForToken returns the cached client for the token, building it on first use.
func (f *CachingClientFactory) ForToken(token string) driven.GitHubClient {
	f.mu.RLock()
	client, ok := f.byToken[token]
	f.mu.RUnlock()
	if ok {
		return client
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if client, ok := f.byToken[token]; ok {
		return client
	}
	client = f.newClient(token)
	f.byToken[token] = client
	return client
}

// Anonymous returns the shared unauthenticated client.
func (f *CachingClientFactory) Anonymous() driven.GitHubClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.anon == nil {
		f.anon = f.newAnon()
	}
	return f.anon
}
