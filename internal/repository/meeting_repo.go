package repository

import (
	"context"
	"time"

	"MeetingSync/internal/model"

	"gorm.io/gorm"
)

// MeetingRepository 用户日程会议仓储
type MeetingRepository interface {
	Create(ctx context.Context, m *model.Meeting) error
	GetByID(ctx context.Context, id uint64) (*model.Meeting, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Meeting, error)
	// ListPendingPush 需要推送或撤销远程事件的会议
	ListPendingPush(ctx context.Context, limit int) ([]*model.Meeting, error)
	// SetCalendarEvent 只写回远程事件 ID 与同步时间，不修改 updated_at
	SetCalendarEvent(ctx context.Context, id uint64, eventID string, syncedAt time.Time) error
	ClearCalendarEvent(ctx context.Context, id uint64, syncedAt time.Time) error
	// ClearEventsForOwner 断开日历连接后清除该用户所有远程事件关联
	ClearEventsForOwner(ctx context.Context, ownerID string) (int64, error)
	Delete(ctx context.Context, id uint64) error
}

type meetingRepository struct {
	db *gorm.DB
}

func NewMeetingRepository(db *gorm.DB) MeetingRepository {
	return &meetingRepository{db: db}
}

func (r *meetingRepository) Create(ctx context.Context, m *model.Meeting) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *meetingRepository) GetByID(ctx context.Context, id uint64) (*model.Meeting, error) {
	var m model.Meeting
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *meetingRepository) ListByOwner(ctx context.Context, ownerID string) ([]*model.Meeting, error) {
	var list []*model.Meeting
	if err := r.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerID).
		Order("scheduled_time ASC").
		Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// ListPendingPush 只返回凭据有效用户的会议；待推送的计划会议还需该类型允许推送，
// 非计划状态且仍关联远程事件的会议总是返回以便撤销
func (r *meetingRepository) ListPendingPush(ctx context.Context, limit int) ([]*model.Meeting, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	allowed := r.db.
		Where("meetings.type = ? AND users.sync_internal = ?", model.MeetingInternal, true).
		Or("meetings.type = ? AND users.sync_directory_a = ?", model.MeetingDirectoryA, true).
		Or("meetings.type = ? AND users.sync_directory_b = ?", model.MeetingDirectoryB, true)
	toPush := r.db.
		Where("meetings.status = ? AND (meetings.calendar_synced_at IS NULL OR meetings.updated_at > meetings.calendar_synced_at)", model.MeetingScheduled).
		Where(allowed)
	pending := r.db.
		Where(toPush).
		Or("meetings.status <> ? AND meetings.calendar_event_id IS NOT NULL AND meetings.calendar_event_id <> ''", model.MeetingScheduled)

	var list []*model.Meeting
	err := r.db.WithContext(ctx).Model(&model.Meeting{}).
		Select("meetings.*").
		Joins("JOIN users ON users.id = meetings.owner_user_id").
		Where("users.calendar_connected = ? AND users.calendar_needs_reauth = ?", true, false).
		Where(pending).
		Order("meetings.updated_at ASC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (r *meetingRepository) SetCalendarEvent(ctx context.Context, id uint64, eventID string, syncedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Meeting{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"calendar_event_id":  eventID,
			"calendar_synced_at": syncedAt,
		}).Error
}

func (r *meetingRepository) ClearCalendarEvent(ctx context.Context, id uint64, syncedAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Meeting{}).Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"calendar_event_id":  nil,
			"calendar_synced_at": syncedAt,
		}).Error
}

func (r *meetingRepository) ClearEventsForOwner(ctx context.Context, ownerID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Meeting{}).
		Where("owner_user_id = ? AND calendar_event_id IS NOT NULL", ownerID).
		UpdateColumns(map[string]interface{}{
			"calendar_event_id":  nil,
			"calendar_synced_at": nil,
		})
	return res.RowsAffected, res.Error
}

func (r *meetingRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Meeting{}).Error
}
