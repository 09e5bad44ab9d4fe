package interfaces

import (
	"context"
	"net/http"

	"MeetingSync/internal/model"
)

// CalendarProvider 远程日历服务。client 为已带授权的 HTTP 客户端
// 远程 401 需返回 ErrUnauthorized，事件不存在需返回 ErrEventNotFound
type CalendarProvider interface {
	CreateEvent(ctx context.Context, client *http.Client, calendarID string, ev *model.CalendarEvent) (string, error)
	UpdateEvent(ctx context.Context, client *http.Client, calendarID, eventID string, ev *model.CalendarEvent) error
	DeleteEvent(ctx context.Context, client *http.Client, calendarID, eventID string) error
	// AccountEmail 授权账号的邮箱
	AccountEmail(ctx context.Context, client *http.Client) (string, error)
}
