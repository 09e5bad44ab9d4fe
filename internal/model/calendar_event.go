package model

import "time"

// Reminder 事件提醒
type Reminder struct {
	Method  string // popup / email
	Minutes int64
}

// CalendarEvent 与具体日历服务无关的事件载荷
type CalendarEvent struct {
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	TimeZone    string // IANA 时区名
	ColorID     string
	Reminders   []Reminder
}
