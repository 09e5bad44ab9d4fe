package repository

import (
	"context"

	"MeetingSync/internal/model"

	"gorm.io/gorm"
)

// NotificationRepository 运维告警仓储
type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	// ListForRole 目标角色包含 role 的告警，新的在前
	ListForRole(ctx context.Context, role string, unreadOnly bool, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id string) error
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) ListForRole(ctx context.Context, role string, unreadOnly bool, limit int) ([]*model.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	db := r.db.WithContext(ctx).Model(&model.Notification{})
	if unreadOnly {
		db = db.Where("read = ?", false)
	}
	var list []*model.Notification
	// target_roles 为 JSON 数组，两种驱动的 JSON 语法不同，按角色在内存里过滤
	if err := db.Order("created_at DESC").Limit(limit * 5).Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Notification, 0, len(list))
	for _, n := range list {
		for _, target := range n.Roles() {
			if target == role {
				out = append(out, n)
				break
			}
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
