package memrepo

import (
	"errors"
	"sort"
	"sync"

	"github.com/jrsteele09/go-message-gateway/token"
)

var _ token.Repo = (*InMemoryTokenRepo)(nil)

// InMemoryTokenRepo keeps tokens in process memory. Nothing survives a restart.
type InMemoryTokenRepo struct {
	tokens  map[string]*token.AccessToken // tenant ID to token
	digests map[string]string             // secret digest to tenant ID
	lock    sync.RWMutex
}

func New() *InMemoryTokenRepo {
	return &InMemoryTokenRepo{
		tokens:  make(map[string]*token.AccessToken),
		digests: make(map[string]string),
	}
}

func (tr *InMemoryTokenRepo) Upsert(t *token.AccessToken) (*token.AccessToken, error) {
	if t == nil || t.TenantID == "" || t.Digest() == "" {
		return nil, errors.New("token with tenant and digest required")
	}

	tr.lock.Lock()
	defer tr.lock.Unlock()

	previous, ok := tr.tokens[t.TenantID]
	if ok {
		delete(tr.digests, previous.Digest())
	}
	tr.tokens[t.TenantID] = t
	tr.digests[t.Digest()] = t.TenantID
	return previous, nil
}

func (tr *InMemoryTokenRepo) Delete(tenantID string) (*token.AccessToken, bool) {
	tr.lock.Lock()
	defer tr.lock.Unlock()

	t, ok := tr.tokens[tenantID]
	if !ok {
		return nil, false
	}
	delete(tr.digests, t.Digest())
	delete(tr.tokens, tenantID)
	return t, true
}

func (tr *InMemoryTokenRepo) GetByTenant(tenantID string) (*token.AccessToken, bool) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	t, ok := tr.tokens[tenantID]
	return t, ok
}

func (tr *InMemoryTokenRepo) GetByDigest(digest string) (*token.AccessToken, bool) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	tenantID, ok := tr.digests[digest]
	if !ok {
		return nil, false
	}
	t, ok := tr.tokens[tenantID]
	return t, ok
}

func (tr *InMemoryTokenRepo) List() []*token.AccessToken {
	tr.lock.RLock()
	defer tr.lock.RUnlock()

	tokens := make([]*token.AccessToken, 0, len(tr.tokens))
	for _, t := range tr.tokens {
		tokens = append(tokens, t)
	}

	sort.Slice(tokens, func(i, j int) bool {
		return tokens[i].CreatedAt.Before(tokens[j].CreatedAt)
	})
	return tokens
}

// Len returns the number of entries in each index. Both values are equal when the indices are consistent.
func (tr *InMemoryTokenRepo) Len() (tenants int, digests int) {
	tr.lock.RLock()
	defer tr.lock.RUnlock()
	return len(tr.tokens), len(tr.digests)
}
