package model

import "time"

// 角色
const (
	RoleAdmin = "admin"
	RoleCoach = "coach"
	RolePeer  = "peer"
)

// OAuthCredential 远程日历凭据，内嵌在用户行上
// refresh_token 一旦获取就保留，后续刷新未返回新值时不覆盖
type OAuthCredential struct {
	Connected    bool       `gorm:"column:connected;default:false" json:"connected"`
	AccountEmail string     `gorm:"column:account_email;type:varchar(256)" json:"account_email,omitempty"`
	AccessToken  string     `gorm:"column:access_token;type:text" json:"-"`
	RefreshToken string     `gorm:"column:refresh_token;type:text" json:"-"`
	ExpiresAt    *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	GrantedScope string     `gorm:"column:granted_scope;type:varchar(512)" json:"granted_scope,omitempty"`
	NeedsReauth  bool       `gorm:"column:needs_reauth;default:false" json:"needs_reauth"`
}

// Active 是否可用于推送
func (c OAuthCredential) Active() bool {
	return c.Connected && !c.NeedsReauth && (c.AccessToken != "" || c.RefreshToken != "")
}

// SyncPreferences 按会议类型控制是否推送到日历
type SyncPreferences struct {
	Internal   bool `gorm:"column:internal" json:"internal"`
	DirectoryA bool `gorm:"column:directory_a" json:"directory_a"`
	DirectoryB bool `gorm:"column:directory_b" json:"directory_b"`
}

// Allows 该类型会议是否允许推送
func (p SyncPreferences) Allows(t MeetingType) bool {
	switch t {
	case MeetingInternal:
		return p.Internal
	case MeetingDirectoryA:
		return p.DirectoryA
	case MeetingDirectoryB:
		return p.DirectoryB
	default:
		return false
	}
}

type User struct {
	ID          string          `gorm:"column:id;primaryKey;type:varchar(64)" json:"id"`
	Email       string          `gorm:"column:email;type:varchar(256);index" json:"email"`
	DisplayName string          `gorm:"column:display_name;type:varchar(128)" json:"display_name"`
	Role        string          `gorm:"column:role;type:varchar(16);not null;default:peer" json:"role"`
	Timezone    string          `gorm:"column:timezone;type:varchar(64)" json:"timezone,omitempty"` // IANA 时区
	SyncPrefs   SyncPreferences `gorm:"embedded;embeddedPrefix:sync_" json:"sync_preferences"`
	Calendar    OAuthCredential `gorm:"embedded;embeddedPrefix:calendar_" json:"calendar"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// HasRole 用户角色是否在给定列表内
func (u *User) HasRole(roles []string) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}
