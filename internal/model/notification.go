package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const (
	NotificationDirectorySyncFailure = "directory_sync_failure"
	SeverityError                    = "error"
)

// Notification 运维告警记录，同步失败时唯一的可见信号
type Notification struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Type        string         `gorm:"column:type;type:varchar(64);not null;index" json:"type"`
	Severity    string         `gorm:"column:severity;type:varchar(16);not null" json:"severity"`
	Message     string         `gorm:"column:message;type:text" json:"message"`
	Errors      datatypes.JSON `gorm:"column:errors" json:"errors"`             // []RunError
	TargetRoles datatypes.JSON `gorm:"column:target_roles" json:"target_roles"` // []string
	RunID       string         `gorm:"column:run_id;type:varchar(64)" json:"run_id"`
	Read        bool           `gorm:"column:read;default:false" json:"read"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

// Roles 解出目标角色
func (n *Notification) Roles() []string {
	var out []string
	if len(n.TargetRoles) > 0 {
		_ = json.Unmarshal(n.TargetRoles, &out)
	}
	return out
}
