package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/model"
)

// 固定提醒：提前 30 分钟弹窗、60 分钟邮件
var defaultReminders = []model.Reminder{
	{Method: "popup", Minutes: 30},
	{Method: "email", Minutes: 60},
}

// EventBuilder 由会议生成远程日历事件载荷
type EventBuilder struct {
	cfg *config.CalendarConfig
}

func NewEventBuilder(cfg *config.CalendarConfig) *EventBuilder {
	return &EventBuilder{cfg: cfg}
}

// Location 用户时区，未设置或无效时退回默认时区
func (b *EventBuilder) Location(user *model.User) *time.Location {
	for _, name := range []string{user.Timezone, b.cfg.DefaultTimezone, config.DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return loc
		}
	}
	return time.UTC
}

// Build ext 为目录会议来源行，内部会议传 nil
func (b *EventBuilder) Build(user *model.User, m *model.Meeting, ext *model.ExternalMeeting) *model.CalendarEvent {
	loc := b.Location(user)
	ev := &model.CalendarEvent{
		Summary:     b.Summary(m),
		Description: Description(m, ext),
		Location:    strings.TrimSpace(m.Location),
		Start:       m.ScheduledTime.In(loc),
		End:         m.End().In(loc),
		TimeZone:    loc.String(),
		ColorID:     b.cfg.Color(string(m.Type)),
		Reminders:   append([]model.Reminder(nil), defaultReminders...),
	}
	if ext != nil && ev.Location == "" {
		ev.Location = ext.Location.FormattedAddress
		if ev.Location == "" {
			ev.Location = ext.Location.Name
		}
	}
	return ev
}

// Summary 标题加会议类型前缀，如 "[NA] Morning Group"
func (b *EventBuilder) Summary(m *model.Meeting) string {
	tag := b.cfg.TypeTag(string(m.Type))
	if tag == "" {
		return m.Title
	}
	return fmt.Sprintf("[%s] %s", tag, m.Title)
}

// Description 按可用字段拼装描述
func Description(m *model.Meeting, ext *model.ExternalMeeting) string {
	var lines []string
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			if label == "" {
				lines = append(lines, value)
			} else {
				lines = append(lines, label+": "+value)
			}
		}
	}

	add("", m.Description)
	if ext == nil {
		return strings.Join(lines, "\n")
	}
	if len(lines) > 0 {
		lines = append(lines, "")
	}
	add("Location", ext.Location.Name)
	add("Address", ext.Location.FormattedAddress)
	add("Contact", joinNonEmpty(", ", ext.ContactName, ext.ContactPhone, ext.ContactEmail))
	if ext.Location.HasGeo() {
		add("Map", MapLink(*ext.Location.Latitude, *ext.Location.Longitude))
	}
	add("Formats", strings.Join(ext.FormatList(), ", "))
	if ext.IsVirtual {
		add("Join", ext.ConferenceURL)
	}
	add("Notes", ext.Notes)
	return strings.Join(lines, "\n")
}

// MapLink 地图坐标链接
func MapLink(lat, lng float64) string {
	return "https://www.google.com/maps/search/?api=1&query=" +
		strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
