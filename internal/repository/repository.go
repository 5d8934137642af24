package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// Repository is the gorm-backed store for bots, requesters, conversations,
// messages and reconcile logs. A Repository bound to a transaction performs
// every call inside it.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle, for health checks.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Transaction runs fn with a repository bound to a new transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// create inserts value inside a savepoint so a constraint violation leaves
// an enclosing transaction usable.
func (r *Repository) create(ctx context.Context, value interface{}) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(value).Error
	})
}

func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

func notFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
