package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/arcor2/arcor2-core/arserver/internal/db"
)

// gormAuditRepository is the GORM implementation of AuditRepository.
type gormAuditRepository struct {
	db *gorm.DB
}

// NewAuditRepository returns an AuditRepository backed by the provided *gorm.DB.
func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &gormAuditRepository{db: db}
}

// Create inserts a new audit entry.
func (r *gormAuditRepository) Create(ctx context.Context, entry *db.AuditEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("audit_entries: create: %w", err)
	}
	return nil
}

// List returns audit entries newest first, paginated.
func (r *gormAuditRepository) List(ctx context.Context, opts ListOptions) ([]db.AuditEntry, int64, error) {
	var entries []db.AuditEntry
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.AuditEntry{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit_entries: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&entries).Error; err != nil {
		return nil, 0, fmt.Errorf("audit_entries: list: %w", err)
	}

	return entries, total, nil
}
