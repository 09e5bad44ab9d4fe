package model

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// CanonicalMeeting 所有目录适配器必须输出的统一会议结构
type CanonicalMeeting struct {
	ExternalID    string   `validate:"required,max=128"`
	Name          string   `validate:"required,max=256"`
	Weekday       int      `validate:"min=0,max=6"`
	StartTime     string   `validate:"required,timeofday"`
	Location      Location `validate:"-"`
	IsVirtual     bool
	ConferenceURL string `validate:"omitempty,url"`
	Notes         string
	Formats       []string
	ContactName   string
	ContactPhone  string
	ContactEmail  string `validate:"omitempty,email"`
}

// FetchResult 单个源一次拉取的结果
type FetchResult struct {
	Source   Source
	Meetings []CanonicalMeeting
	// FailedWeekdays 拉取失败的星期分区；对账时这些分区内的旧记录不删除
	FailedWeekdays []int
	// Skipped 解析/校验失败被跳过的记录数
	Skipped int
}

// ToExternal 生成待写入的快照行
func (c CanonicalMeeting) ToExternal(source Source, now time.Time) *ExternalMeeting {
	m := &ExternalMeeting{
		Source:      source,
		ExternalID:  c.ExternalID,
		LastUpdated: now,
		CreatedAt:   now,
	}
	c.applyTo(m)
	return m
}

// MergeInto 用拉取到的字段覆盖已有快照行，保留主键
func (c CanonicalMeeting) MergeInto(existing *ExternalMeeting, now time.Time) *ExternalMeeting {
	merged := *existing
	c.applyTo(&merged)
	merged.LastUpdated = now
	return &merged
}

func (c CanonicalMeeting) applyTo(m *ExternalMeeting) {
	m.Name = c.Name
	m.Weekday = c.Weekday
	m.StartTime = c.StartTime
	m.Location = c.Location
	m.IsVirtual = c.IsVirtual
	m.ConferenceURL = c.ConferenceURL
	m.Notes = c.Notes
	m.Formats = formatsJSON(c.Formats)
	m.ContactName = c.ContactName
	m.ContactPhone = c.ContactPhone
	m.ContactEmail = c.ContactEmail
}

func formatsJSON(formats []string) datatypes.JSON {
	if len(formats) == 0 {
		return nil
	}
	b, err := json.Marshal(formats)
	if err != nil {
		return nil
	}
	return b
}

// Differs 字段级比较；notes 只差空白时视为相同
func (c CanonicalMeeting) Differs(other CanonicalMeeting) bool {
	if c.Name != other.Name ||
		c.Weekday != other.Weekday ||
		c.StartTime != other.StartTime ||
		c.IsVirtual != other.IsVirtual ||
		c.ConferenceURL != other.ConferenceURL ||
		c.ContactName != other.ContactName ||
		c.ContactPhone != other.ContactPhone ||
		c.ContactEmail != other.ContactEmail {
		return true
	}
	if !locationEqual(c.Location, other.Location) {
		return true
	}
	if CollapseWhitespace(c.Notes) != CollapseWhitespace(other.Notes) {
		return true
	}
	if len(c.Formats) != len(other.Formats) {
		return true
	}
	for i := range c.Formats {
		if c.Formats[i] != other.Formats[i] {
			return true
		}
	}
	return false
}

func locationEqual(a, b Location) bool {
	return a.Name == b.Name &&
		a.FormattedAddress == b.FormattedAddress &&
		a.Street == b.Street &&
		a.City == b.City &&
		a.State == b.State &&
		a.PostalCode == b.PostalCode &&
		a.Country == b.Country &&
		floatPtrEqual(a.Latitude, b.Latitude) &&
		floatPtrEqual(a.Longitude, b.Longitude)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// CollapseWhitespace 连续空白折叠为单个空格并去掉首尾空白
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
