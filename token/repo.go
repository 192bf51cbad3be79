package token

// Repo stores tenant tokens keyed by tenant, with a reverse index from secret digest to tenant.
// Implementations keep both indices consistent within a single call.
type Repo interface {
	// Upsert stores t as the tenant's token and returns the token it replaced, if any.
	Upsert(t *AccessToken) (*AccessToken, error)
	// Delete removes the tenant's token from both indices.
	Delete(tenantID string) (*AccessToken, bool)
	GetByTenant(tenantID string) (*AccessToken, bool)
	GetByDigest(digest string) (*AccessToken, bool)
	List() []*AccessToken
}
