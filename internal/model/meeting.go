package model

import "time"

// MeetingStatus 用户日程会议状态
type MeetingStatus string

const (
	MeetingScheduled MeetingStatus = "scheduled"
	MeetingCompleted MeetingStatus = "completed"
	MeetingCancelled MeetingStatus = "cancelled"
)

// MeetingType 会议类型：内部辅导或来自某个目录
type MeetingType string

const (
	MeetingInternal   MeetingType = "internal"
	MeetingDirectoryA MeetingType = "directoryA"
	MeetingDirectoryB MeetingType = "directoryB"
)

// DefaultMeetingDuration 未设置结束时间时的默认时长
const DefaultMeetingDuration = time.Hour

// Meeting 用户/教练创建的日程会议；日历推送只回写 calendar_event_id 与 calendar_synced_at
type Meeting struct {
	ID                uint64        `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OwnerUserID       string        `gorm:"column:owner_user_id;type:varchar(64);not null;index" json:"owner_user_id"`
	Title             string        `gorm:"column:title;type:varchar(256);not null" json:"title"`
	ScheduledTime     time.Time     `gorm:"column:scheduled_time;not null" json:"scheduled_time"`
	EndTime           *time.Time    `gorm:"column:end_time" json:"end_time,omitempty"`
	Location          string        `gorm:"column:location;type:varchar(512)" json:"location,omitempty"`
	Description       string        `gorm:"column:description;type:text" json:"description,omitempty"`
	Status            MeetingStatus `gorm:"column:status;type:varchar(16);not null;default:scheduled;index" json:"status"`
	Type              MeetingType   `gorm:"column:type;type:varchar(16);not null;default:internal" json:"type"`
	ExternalMeetingID *uint64       `gorm:"column:external_meeting_id" json:"external_meeting_id,omitempty"` // 目录会议来源行
	CalendarEventID   *string       `gorm:"column:calendar_event_id;type:varchar(256)" json:"calendar_event_id,omitempty"`
	CalendarSyncedAt  *time.Time    `gorm:"column:calendar_synced_at" json:"calendar_synced_at,omitempty"`
	CreatedAt         time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Meeting) TableName() string { return "meetings" }

// End 结束时间，缺省为开始后一小时
func (m *Meeting) End() time.Time {
	if m.EndTime != nil && m.EndTime.After(m.ScheduledTime) {
		return *m.EndTime
	}
	return m.ScheduledTime.Add(DefaultMeetingDuration)
}

// HasCalendarEvent 是否已推送过远程事件
func (m *Meeting) HasCalendarEvent() bool {
	return m.CalendarEventID != nil && *m.CalendarEventID != ""
}
