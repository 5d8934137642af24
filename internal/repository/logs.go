package repository

import (
	"context"
	"fmt"

	"helpdesk-mail-go/internal/models"
)

func (r *Repository) CreateReconcileLog(ctx context.Context, entry *models.ReconcileLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to write reconcile log: %w", err)
	}
	return nil
}

// ListReconcileLogs pages through run logs, newest first.
func (r *Repository) ListReconcileLogs(ctx context.Context, offset, limit int) ([]models.ReconcileLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.ReconcileLog{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count logs: %w", err)
	}

	var logs []models.ReconcileLog
	err := r.db.WithContext(ctx).
		Preload("Bot").
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch logs: %w", err)
	}
	return logs, total, nil
}

// FindReconcileLog returns one log entry, or nil.
func (r *Repository) FindReconcileLog(ctx context.Context, id uint) (*models.ReconcileLog, error) {
	var entry models.ReconcileLog
	err := r.db.WithContext(ctx).Preload("Bot").First(&entry, id).Error
	if err == nil {
		return &entry, nil
	}
	if notFound(err) {
		return nil, nil
	}
	return nil, fmt.Errorf("database error finding log %d: %w", id, err)
}
