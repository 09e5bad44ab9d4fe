package repository

import (
	"context"
	"errors"
	"fmt"

	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"gorm.io/gorm"
)

// ExternalMeetingRepository 目录快照仓储，同时实现 interfaces.SnapshotStore
type ExternalMeetingRepository interface {
	interfaces.SnapshotStore
	// ListForFeed 按星期、开始时间排序，用于订阅源导出
	ListForFeed(ctx context.Context, source model.Source) ([]*model.ExternalMeeting, error)
	GetByID(ctx context.Context, id uint64) (*model.ExternalMeeting, error)
	CountBySource(ctx context.Context, source model.Source) (int64, error)
}

type externalMeetingRepository struct {
	db         *gorm.DB
	batchLimit int
}

// NewExternalMeetingRepository batchLimit<=0 或大于存储上限时使用 500
func NewExternalMeetingRepository(db *gorm.DB, batchLimit int) ExternalMeetingRepository {
	if batchLimit <= 0 || batchLimit > config.DefaultBatchLimit {
		batchLimit = config.DefaultBatchLimit
	}
	return &externalMeetingRepository{db: db, batchLimit: batchLimit}
}

func (r *externalMeetingRepository) BatchLimit() int {
	return r.batchLimit
}

func (r *externalMeetingRepository) ListBySource(ctx context.Context, source model.Source) (map[string]*model.ExternalMeeting, error) {
	var list []*model.ExternalMeeting
	if err := r.db.WithContext(ctx).Where("source = ?", source).Find(&list).Error; err != nil {
		return nil, err
	}
	out := make(map[string]*model.ExternalMeeting, len(list))
	for _, m := range list {
		out[m.ExternalID] = m
	}
	return out, nil
}

// ApplyBatch 单个事务内提交，任一操作失败整批回滚
func (r *externalMeetingRepository) ApplyBatch(ctx context.Context, ops []interfaces.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > r.batchLimit {
		return fmt.Errorf("%w: %d > %d", interfaces.ErrBatchTooLarge, len(ops), r.batchLimit)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range ops {
			if op.Meeting == nil {
				return fmt.Errorf("第%d条操作缺少会议数据", i)
			}
			if err := applyOp(tx, op); err != nil {
				return fmt.Errorf("第%d条操作(%s %s/%s)失败: %w", i, op.Kind, op.Meeting.Source, op.Meeting.ExternalID, err)
			}
		}
		return nil
	})
}

func applyOp(tx *gorm.DB, op interfaces.WriteOp) error {
	switch op.Kind {
	case interfaces.OpCreate:
		return tx.Create(op.Meeting).Error
	case interfaces.OpUpdate:
		if op.Meeting.ID == 0 {
			return errors.New("更新操作缺少主键")
		}
		return tx.Save(op.Meeting).Error
	case interfaces.OpDelete:
		res := tx.Where("source = ? AND external_id = ?", op.Meeting.Source, op.Meeting.ExternalID).
			Delete(&model.ExternalMeeting{})
		return res.Error
	default:
		return fmt.Errorf("未知操作类型 %q", op.Kind)
	}
}

func (r *externalMeetingRepository) ListForFeed(ctx context.Context, source model.Source) ([]*model.ExternalMeeting, error) {
	var list []*model.ExternalMeeting
	if err := r.db.WithContext(ctx).
		Where("source = ?", source).
		Order("weekday ASC").Order("start_time ASC").Order("id ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (r *externalMeetingRepository) GetByID(ctx context.Context, id uint64) (*model.ExternalMeeting, error) {
	var m model.ExternalMeeting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *externalMeetingRepository) CountBySource(ctx context.Context, source model.Source) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.ExternalMeeting{}).Where("source = ?", source).Count(&n).Error
	return n, err
}
