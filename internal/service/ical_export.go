package service

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/model"
	"MeetingSync/internal/repository"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// FeedContentType iCal 订阅源响应类型
const FeedContentType = "text/calendar; charset=utf-8"

var rruleWeekdays = []rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// FeedService 导出 iCal 订阅源：用户日程与目录会议（每周重复）
type FeedService struct {
	meetings  repository.MeetingRepository
	externals repository.ExternalMeetingRepository
	users     repository.UserRepository
	builder   *EventBuilder
	cfg       *config.CalendarConfig
	now       func() time.Time
}

func NewFeedService(meetings repository.MeetingRepository, externals repository.ExternalMeetingRepository, users repository.UserRepository, cfg *config.CalendarConfig) *FeedService {
	return &FeedService{
		meetings:  meetings,
		externals: externals,
		users:     users,
		builder:   NewEventBuilder(cfg),
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UserFeed 用户全部计划中的会议
func (s *FeedService) UserFeed(ctx context.Context, userID string) ([]byte, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	list, err := s.meetings.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	loc := s.builder.Location(user)
	stamp := s.now()

	cal := s.newCalendar()
	for _, m := range list {
		if m.Status != model.MeetingScheduled {
			continue
		}
		var ext *model.ExternalMeeting
		if m.ExternalMeetingID != nil {
			ext, _ = s.externals.GetByID(ctx, *m.ExternalMeetingID)
		}
		ev := s.builder.Build(user, m, ext)
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, fmt.Sprintf("meeting-%d@meetingsync", m.ID))
		event.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
		event.Props.SetDateTime(ical.PropDateTimeStart, m.ScheduledTime.In(loc))
		event.Props.SetDateTime(ical.PropDateTimeEnd, m.End().In(loc))
		setEventText(event, ev.Summary, ev.Description, ev.Location)
		cal.Children = append(cal.Children, event.Component)
	}
	return encodeCalendar(cal)
}

// DirectoryFeed 目录会议导出为每周重复事件，DTSTART 为下一次发生时间
func (s *FeedService) DirectoryFeed(ctx context.Context, source model.Source) ([]byte, error) {
	list, err := s.externals.ListForFeed(ctx, source)
	if err != nil {
		return nil, err
	}
	loc := s.builder.Location(&model.User{})
	now := s.now()
	tag := s.cfg.TypeTag(string(source))

	cal := s.newCalendar()
	for _, ext := range list {
		start, err := NextOccurrence(ext.Weekday, ext.StartTime, loc, now)
		if err != nil {
			continue
		}
		summary := ext.Name
		if tag != "" {
			summary = fmt.Sprintf("[%s] %s", tag, ext.Name)
		}
		location := ext.Location.FormattedAddress
		if location == "" {
			location = ext.Location.Name
		}

		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, fmt.Sprintf("%s-%s@meetingsync", source, ext.ExternalID))
		event.Props.SetDateTime(ical.PropDateTimeStamp, now)
		event.Props.SetDateTime(ical.PropDateTimeStart, start)
		event.Props.SetDateTime(ical.PropDateTimeEnd, start.Add(model.DefaultMeetingDuration))
		event.Props.SetRecurrenceRule(&rrule.ROption{Freq: rrule.WEEKLY, Byweekday: []rrule.Weekday{rruleWeekdays[ext.Weekday]}})
		setEventText(event, summary, Description(&model.Meeting{}, ext), location)
		if ext.IsVirtual && ext.ConferenceURL != "" {
			event.Props.SetText(ical.PropURL, ext.ConferenceURL)
		}
		cal.Children = append(cal.Children, event.Component)
	}
	return encodeCalendar(cal)
}

// NextOccurrence 在 loc 时区内，after 之后第一次 weekday + "HH:MM"
func NextOccurrence(weekday int, startTime string, loc *time.Location, after time.Time) (time.Time, error) {
	if weekday < 0 || weekday > 6 {
		return time.Time{}, fmt.Errorf("weekday %d out of range", weekday)
	}
	parts := strings.SplitN(startTime, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid start time %q", startTime)
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return time.Time{}, fmt.Errorf("invalid start time %q", startTime)
	}
	local := after.In(loc)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[weekday]},
		Byhour:    []int{hour},
		Byminute:  []int{minute},
		Bysecond:  []int{0},
		Dtstart:   time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc),
	})
	if err != nil {
		return time.Time{}, err
	}
	next := rule.After(after, false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("no occurrence after %s", after)
	}
	return next.In(loc), nil
}

func (s *FeedService) newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	productID := s.cfg.ProductID
	if productID == "" {
		productID = "-//MeetingSync//Recovery Meetings//EN"
	}
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

func setEventText(event *ical.Event, summary, description, location string) {
	event.Props.SetText(ical.PropSummary, summary)
	if description != "" {
		event.Props.SetText(ical.PropDescription, description)
	}
	if location != "" {
		event.Props.SetText(ical.PropLocation, location)
	}
}

func encodeCalendar(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("编码iCal失败: %w", err)
	}
	return buf.Bytes(), nil
}
