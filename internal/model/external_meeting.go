package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Source 会议目录来源枚举
type Source string

const (
	SourceDirectoryA Source = "directoryA" // JSON 会议检索接口
	SourceDirectoryB Source = "directoryB" // HTML 发布的会议列表
)

// AllSources 固定顺序，用于运行日志与调度
var AllSources = []Source{SourceDirectoryA, SourceDirectoryB}

// ParseSource 忽略大小写匹配已知来源
func ParseSource(name string) (Source, bool) {
	for _, s := range AllSources {
		if strings.EqualFold(string(s), strings.TrimSpace(name)) {
			return s, true
		}
	}
	return "", false
}

// Location 结构化地点
type Location struct {
	Name             string   `gorm:"column:name;type:varchar(256)" json:"name,omitempty"`
	FormattedAddress string   `gorm:"column:formatted_address;type:varchar(512)" json:"formatted_address,omitempty"`
	Street           string   `gorm:"column:street;type:varchar(256)" json:"street,omitempty"`
	City             string   `gorm:"column:city;type:varchar(128)" json:"city,omitempty"`
	State            string   `gorm:"column:state;type:varchar(64)" json:"state,omitempty"`
	PostalCode       string   `gorm:"column:postal_code;type:varchar(32)" json:"postal_code,omitempty"`
	Country          string   `gorm:"column:country;type:varchar(64)" json:"country,omitempty"`
	Latitude         *float64 `gorm:"column:latitude" json:"latitude,omitempty"`
	Longitude        *float64 `gorm:"column:longitude" json:"longitude,omitempty"`
}

// HasGeo 是否带有坐标
func (l Location) HasGeo() bool {
	return l.Latitude != nil && l.Longitude != nil
}

// ExternalMeeting 第三方目录会议快照，(source, external_id) 唯一
// 仅由对账引擎创建/更新/删除
type ExternalMeeting struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	Source        Source         `gorm:"column:source;type:varchar(32);not null;uniqueIndex:uk_source_external,priority:1"`
	ExternalID    string         `gorm:"column:external_id;type:varchar(128);not null;uniqueIndex:uk_source_external,priority:2"`
	Name          string         `gorm:"column:name;type:varchar(256);not null"`
	Weekday       int            `gorm:"column:weekday;not null;index"`
	StartTime     string         `gorm:"column:start_time;type:varchar(8);not null"` // 本地时间 HH:MM
	Location      Location       `gorm:"embedded;embeddedPrefix:location_"`
	IsVirtual     bool           `gorm:"column:is_virtual;default:false"`
	ConferenceURL string         `gorm:"column:conference_url;type:varchar(512)"`
	Notes         string         `gorm:"column:notes;type:text"`
	Formats       datatypes.JSON `gorm:"column:formats"` // []string
	ContactName   string         `gorm:"column:contact_name;type:varchar(128)"`
	ContactPhone  string         `gorm:"column:contact_phone;type:varchar(64)"`
	ContactEmail  string         `gorm:"column:contact_email;type:varchar(128)"`
	LastUpdated   time.Time      `gorm:"column:last_updated;not null"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ExternalMeeting) TableName() string { return "external_meetings" }

// FormatList 解出 formats 列
func (m *ExternalMeeting) FormatList() []string {
	if len(m.Formats) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(m.Formats, &out); err != nil {
		return nil
	}
	return out
}

// Canonical 还原为规范记录，便于字段级比较
func (m *ExternalMeeting) Canonical() CanonicalMeeting {
	return CanonicalMeeting{
		ExternalID:    m.ExternalID,
		Name:          m.Name,
		Weekday:       m.Weekday,
		StartTime:     m.StartTime,
		Location:      m.Location,
		IsVirtual:     m.IsVirtual,
		ConferenceURL: m.ConferenceURL,
		Notes:         m.Notes,
		Formats:       m.FormatList(),
		ContactName:   m.ContactName,
		ContactPhone:  m.ContactPhone,
		ContactEmail:  m.ContactEmail,
	}
}
