package repository

import (
	"context"
	"fmt"

	"helpdesk-mail-go/internal/models"
)

// FindRequesterByEmail returns the requester with this address, or nil.
func (r *Repository) FindRequesterByEmail(ctx context.Context, email string) (*models.EmailRequester, error) {
	var req models.EmailRequester
	err := r.db.WithContext(ctx).Where("email = ?", models.CanonicalAddress(email)).First(&req).Error
	if err == nil {
		return &req, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding requester %s: %w", email, err)
}

// CreateRequester inserts req. When another writer created the same address
// first, the existing row is returned with created set to false.
func (r *Repository) CreateRequester(ctx context.Context, req *models.EmailRequester) (stored *models.EmailRequester, created bool, err error) {
	err = r.create(ctx, req)
	if err == nil {
		return req, true, nil
	}
	if !isDuplicateKey(err) {
		return nil, false, fmt.Errorf("failed to create requester %s: %w", req.Email, err)
	}

	existing, findErr := r.FindRequesterByEmail(ctx, req.Email)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing == nil {
		return nil, false, fmt.Errorf("requester %s reported duplicate but was not found: %w", req.Email, err)
	}
	return existing, false, nil
}
