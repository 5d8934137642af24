package reconcile

import (
	"context"

	"helpdesk-mail-go/internal/models"
)

// RequesterStore is the persistent side of the registry.
type RequesterStore interface {
	FindRequesterByEmail(ctx context.Context, email string) (*models.EmailRequester, error)
	CreateRequester(ctx context.Context, req *models.EmailRequester) (*models.EmailRequester, bool, error)
}

// Registry maps correspondent addresses to requesters for the length of one
// resolver run. It is not safe for concurrent use and must not outlive the
// run's transaction.
type Registry struct {
	store   RequesterStore
	cache   map[string]*models.EmailRequester
	created int
}

func NewRegistry(store RequesterStore) *Registry {
	return &Registry{
		store: store,
		cache: make(map[string]*models.EmailRequester),
	}
}

// GetOrCreate returns the requester for email, looking in the run cache,
// then storage, and creating it on first contact.
func (r *Registry) GetOrCreate(ctx context.Context, email string) (*models.EmailRequester, error) {
	key := models.CanonicalAddress(email)
	if req, ok := r.cache[key]; ok {
		return req, nil
	}

	req, err := r.store.FindRequesterByEmail(ctx, key)
	if err != nil {
		return nil, err
	}
	if req == nil {
		candidate, err := models.NewEmailRequester(key)
		if err != nil {
			return nil, err
		}
		var created bool
		if req, created, err = r.store.CreateRequester(ctx, candidate); err != nil {
			return nil, err
		}
		if created {
			r.created++
		}
	}

	r.cache[key] = req
	return req, nil
}

// Created returns how many requesters this registry inserted.
func (r *Registry) Created() int {
	return r.created
}
