package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Provider Google Calendar 实现。每次调用使用调用方传入的已授权客户端
type Provider struct {
	opts   []option.ClientOption
	logger *logrus.Logger
}

func NewProvider(logger *logrus.Logger, opts ...option.ClientOption) *Provider {
	return &Provider{opts: opts, logger: logger}
}

var _ interfaces.CalendarProvider = (*Provider)(nil)

func (p *Provider) service(ctx context.Context, client *http.Client) (*calendar.Service, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, p.opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("创建日历服务失败: %w", err)
	}
	return svc, nil
}

func (p *Provider) CreateEvent(ctx context.Context, client *http.Client, calendarID string, ev *model.CalendarEvent) (string, error) {
	svc, err := p.service(ctx, client)
	if err != nil {
		return "", err
	}
	created, err := svc.Events.Insert(calendarID, toGoogleEvent(ev)).Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	return created.Id, nil
}

func (p *Provider) UpdateEvent(ctx context.Context, client *http.Client, calendarID, eventID string, ev *model.CalendarEvent) error {
	svc, err := p.service(ctx, client)
	if err != nil {
		return err
	}
	if _, err := svc.Events.Update(calendarID, eventID, toGoogleEvent(ev)).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

func (p *Provider) DeleteEvent(ctx context.Context, client *http.Client, calendarID, eventID string) error {
	svc, err := p.service(ctx, client)
	if err != nil {
		return err
	}
	if err := svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return mapError(err)
	}
	return nil
}

// AccountEmail 主日历 ID 即账号邮箱
func (p *Provider) AccountEmail(ctx context.Context, client *http.Client) (string, error) {
	svc, err := p.service(ctx, client)
	if err != nil {
		return "", err
	}
	entry, err := svc.CalendarList.Get("primary").Context(ctx).Do()
	if err != nil {
		return "", mapError(err)
	}
	return entry.Id, nil
}

func toGoogleEvent(ev *model.CalendarEvent) *calendar.Event {
	overrides := make([]*calendar.EventReminder, 0, len(ev.Reminders))
	for _, r := range ev.Reminders {
		overrides = append(overrides, &calendar.EventReminder{Method: r.Method, Minutes: r.Minutes})
	}
	return &calendar.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		ColorId:     ev.ColorID,
		Start:       eventTime(ev.Start, ev.TimeZone),
		End:         eventTime(ev.End, ev.TimeZone),
		Reminders: &calendar.EventReminders{
			UseDefault:      false,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		},
	}
}

func eventTime(t time.Time, tz string) *calendar.EventDateTime {
	if loc, err := time.LoadLocation(tz); err == nil {
		t = t.In(loc)
	}
	return &calendar.EventDateTime{DateTime: t.Format(time.RFC3339), TimeZone: tz}
}

// mapError 401 → ErrUnauthorized，404/410 → ErrEventNotFound
func mapError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch gerr.Code {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", interfaces.ErrUnauthorized, err)
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %v", interfaces.ErrEventNotFound, err)
	default:
		return err
	}
}
