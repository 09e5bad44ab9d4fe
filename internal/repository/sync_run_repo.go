package repository

import (
	"context"

	"MeetingSync/internal/model"

	"gorm.io/gorm"
)

// SyncRunRepository 运行日志，只追加
type SyncRunRepository interface {
	Create(ctx context.Context, run *model.SyncRun) error
	ListRecent(ctx context.Context, limit int) ([]*model.SyncRun, error)
	Latest(ctx context.Context) (*model.SyncRun, error)
}

type syncRunRepository struct {
	db *gorm.DB
}

func NewSyncRunRepository(db *gorm.DB) SyncRunRepository {
	return &syncRunRepository{db: db}
}

func (r *syncRunRepository) Create(ctx context.Context, run *model.SyncRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *syncRunRepository) ListRecent(ctx context.Context, limit int) ([]*model.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var list []*model.SyncRun
	if err := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *syncRunRepository) Latest(ctx context.Context) (*model.SyncRun, error) {
	var run model.SyncRun
	if err := r.db.WithContext(ctx).Order("timestamp DESC").First(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}
