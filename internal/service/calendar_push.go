package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
	"MeetingSync/internal/repository"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrMeetingNotFound 会议不存在或不属于当前用户
var ErrMeetingNotFound = errors.New("meeting not found")

// PushSummary 一次推送的统计
type PushSummary struct {
	Pushed  int      `json:"pushed"`
	Deleted int      `json:"deleted"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

type pushOutcome int

const (
	outcomeSkipped pushOutcome = iota
	outcomePushed
	outcomeDeleted
)

func (s *PushSummary) record(outcome pushOutcome) {
	switch outcome {
	case outcomePushed:
		s.Pushed++
	case outcomeDeleted:
		s.Deleted++
	default:
		s.Skipped++
	}
}

func (s *PushSummary) fail(err error) {
	s.Failed++
	s.Errors = append(s.Errors, err.Error())
}

// CalendarPushService 把会议推送为用户远程日历事件，并维护 calendar_event_id
type CalendarPushService struct {
	credentials *CredentialManager
	provider    interfaces.CalendarProvider
	meetings    repository.MeetingRepository
	externals   repository.ExternalMeetingRepository
	users       repository.UserRepository
	builder     *EventBuilder
	calendarID  string
	logger      *logrus.Logger
	now         func() time.Time
}

func NewCalendarPushService(
	credentials *CredentialManager,
	provider interfaces.CalendarProvider,
	meetings repository.MeetingRepository,
	externals repository.ExternalMeetingRepository,
	users repository.UserRepository,
	cfg *config.CalendarConfig,
	logger *logrus.Logger,
) *CalendarPushService {
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = "primary"
	}
	return &CalendarPushService{
		credentials: credentials,
		provider:    provider,
		meetings:    meetings,
		externals:   externals,
		users:       users,
		builder:     NewEventBuilder(cfg),
		calendarID:  calendarID,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// PushMeeting 已有 event_id 时更新，否则创建并回写 event_id。
// 非计划状态的会议删除远程事件；凭据无效或偏好关闭时为空操作，返回空 event_id。
func (s *CalendarPushService) PushMeeting(ctx context.Context, user *model.User, m *model.Meeting) (string, error) {
	_, eventID, err := s.push(ctx, user, m)
	return eventID, err
}

func (s *CalendarPushService) push(ctx context.Context, user *model.User, m *model.Meeting) (pushOutcome, string, error) {
	if !user.Calendar.Active() {
		return outcomeSkipped, "", nil
	}
	log := s.logger.WithFields(logrus.Fields{"user_id": user.ID, "meeting_id": m.ID})

	if m.Status != model.MeetingScheduled {
		if !m.HasCalendarEvent() {
			return outcomeSkipped, "", nil
		}
		if err := s.DeleteMeetingEvent(ctx, user, *m.CalendarEventID); err != nil {
			return outcomeSkipped, "", s.pushError(user, m, err)
		}
		if err := s.meetings.ClearCalendarEvent(ctx, m.ID, s.now()); err != nil {
			return outcomeSkipped, "", s.pushError(user, m, err)
		}
		m.CalendarEventID = nil
		log.WithField("status", m.Status).Info("会议已非计划状态，远程事件已删除")
		return outcomeDeleted, "", nil
	}
	// 偏好只限制创建/更新，已有远程事件的撤销不受影响
	if !user.SyncPrefs.Allows(m.Type) {
		return outcomeSkipped, "", nil
	}

	ext, err := s.sourceRow(ctx, m)
	if err != nil {
		return outcomeSkipped, "", s.pushError(user, m, err)
	}
	ev := s.builder.Build(user, m, ext)

	var eventID string
	err = s.credentials.WithClient(ctx, user, func(client *http.Client) error {
		if m.HasCalendarEvent() {
			err := s.provider.UpdateEvent(ctx, client, s.calendarID, *m.CalendarEventID, ev)
			if !errors.Is(err, interfaces.ErrEventNotFound) {
				eventID = *m.CalendarEventID
				return err
			}
			log.Warn("远程事件已不存在，重新创建")
		}
		id, err := s.provider.CreateEvent(ctx, client, s.calendarID, ev)
		eventID = id
		return err
	})
	if err != nil {
		return outcomeSkipped, "", s.pushError(user, m, err)
	}

	syncedAt := s.now()
	if err := s.meetings.SetCalendarEvent(ctx, m.ID, eventID, syncedAt); err != nil {
		return outcomeSkipped, "", s.pushError(user, m, fmt.Errorf("回写event_id失败: %w", err))
	}
	m.CalendarEventID = &eventID
	m.CalendarSyncedAt = &syncedAt
	log.WithField("event_id", eventID).Info("会议已推送到远程日历")
	return outcomePushed, eventID, nil
}

// DeleteMeetingEvent 远程事件已不存在视为成功
func (s *CalendarPushService) DeleteMeetingEvent(ctx context.Context, user *model.User, eventID string) error {
	err := s.credentials.WithClient(ctx, user, func(client *http.Client) error {
		return s.provider.DeleteEvent(ctx, client, s.calendarID, eventID)
	})
	if errors.Is(err, interfaces.ErrEventNotFound) {
		return nil
	}
	return err
}

// RemoveMeeting 先删远程事件再删本地记录；远程删除失败时保留本地记录以便重试
func (s *CalendarPushService) RemoveMeeting(ctx context.Context, user *model.User, meetingID uint64) error {
	m, err := s.meetings.GetByID(ctx, meetingID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && m.OwnerUserID != user.ID) {
		return ErrMeetingNotFound
	}
	if err != nil {
		return err
	}
	if m.HasCalendarEvent() {
		err := s.DeleteMeetingEvent(ctx, user, *m.CalendarEventID)
		switch {
		case err == nil:
		case errors.Is(err, interfaces.ErrNotConnected), errors.Is(err, interfaces.ErrReauthRequired):
			s.logger.WithFields(logrus.Fields{"user_id": user.ID, "meeting_id": m.ID}).
				Warn("日历未连接，无法删除远程事件，仅删除本地会议")
		default:
			return s.pushError(user, m, err)
		}
	}
	return s.meetings.Delete(ctx, m.ID)
}

// SyncUser 推送该用户的全部会议；凭据失效时停止处理该用户
func (s *CalendarPushService) SyncUser(ctx context.Context, userID string) (*PushSummary, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &PushSummary{}
	if !user.Calendar.Active() {
		return summary, &interfaces.CredentialError{UserID: userID, Err: interfaces.ErrNotConnected}
	}
	list, err := s.meetings.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, m := range list {
		if stop := s.pushInto(ctx, summary, user, m); stop != nil {
			return summary, stop
		}
	}
	return summary, nil
}

// SweepPending 处理上次推送后有变更的会议（替代文档写入触发器）
func (s *CalendarPushService) SweepPending(ctx context.Context, limit int) (*PushSummary, error) {
	pending, err := s.meetings.ListPendingPush(ctx, limit)
	if err != nil {
		return nil, err
	}
	summary := &PushSummary{}
	users := map[string]*model.User{}
	blocked := map[string]bool{}
	for _, m := range pending {
		if blocked[m.OwnerUserID] {
			summary.Skipped++
			continue
		}
		user, ok := users[m.OwnerUserID]
		if !ok {
			user, err = s.users.GetUser(ctx, m.OwnerUserID)
			if err != nil {
				s.logger.WithError(err).WithField("user_id", m.OwnerUserID).Error("加载会议所属用户失败")
				summary.fail(err)
				blocked[m.OwnerUserID] = true
				continue
			}
			users[m.OwnerUserID] = user
		}
		if stop := s.pushInto(ctx, summary, user, m); stop != nil {
			blocked[m.OwnerUserID] = true
		}
	}
	s.logger.WithFields(logrus.Fields{
		"pending": len(pending),
		"pushed":  summary.Pushed,
		"deleted": summary.Deleted,
		"failed":  summary.Failed,
	}).Info("待推送会议扫描完成")
	return summary, nil
}

// pushInto 单个会议失败只计数；返回非 nil 表示凭据失效，应停止该用户
func (s *CalendarPushService) pushInto(ctx context.Context, summary *PushSummary, user *model.User, m *model.Meeting) error {
	outcome, _, err := s.push(ctx, user, m)
	if err == nil {
		summary.record(outcome)
		return nil
	}
	summary.fail(err)
	var credErr *interfaces.CredentialError
	if errors.As(err, &credErr) {
		s.logger.WithError(err).WithField("user_id", user.ID).Error("日历凭据不可用，停止推送该用户")
		return err
	}
	s.logger.WithError(err).WithFields(logrus.Fields{"user_id": user.ID, "meeting_id": m.ID}).Error("会议推送失败")
	return nil
}

// DisconnectUser 清除凭据与本地事件关联，重新连接后会重新创建事件
func (s *CalendarPushService) DisconnectUser(ctx context.Context, userID string) error {
	if err := s.credentials.Disconnect(ctx, userID); err != nil {
		return err
	}
	n, err := s.meetings.ClearEventsForOwner(ctx, userID)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"user_id": userID, "cleared": n}).Info("日历已断开连接")
	return nil
}

func (s *CalendarPushService) sourceRow(ctx context.Context, m *model.Meeting) (*model.ExternalMeeting, error) {
	if m.ExternalMeetingID == nil {
		return nil, nil
	}
	ext, err := s.externals.GetByID(ctx, *m.ExternalMeetingID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// 目录会议已被对账删除，按内部会议字段推送
		return nil, nil
	}
	return ext, err
}

func (s *CalendarPushService) pushError(user *model.User, m *model.Meeting, err error) error {
	var credErr *interfaces.CredentialError
	if errors.As(err, &credErr) {
		return err
	}
	return &interfaces.PushError{UserID: user.ID, MeetingID: m.ID, Err: err}
}
