package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
	"MeetingSync/internal/repository"
	"MeetingSync/internal/utils/httpclient"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repository.OpenDatabase(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"}, quietLogger())
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func canon(id, name string, weekday int, start string) model.CanonicalMeeting {
	return model.CanonicalMeeting{ExternalID: id, Name: name, Weekday: weekday, StartTime: start}
}

func fetchOf(source model.Source, recs ...model.CanonicalMeeting) *model.FetchResult {
	return &model.FetchResult{Source: source, Meetings: recs}
}

// memStore 内存快照存储，按批原子提交并记录每批大小
type memStore struct {
	mu      sync.Mutex
	limit   int
	nextID  uint64
	rows    map[model.Source]map[string]*model.ExternalMeeting
	batches []int
}

func newMemStore(limit int) *memStore {
	return &memStore{limit: limit, rows: map[model.Source]map[string]*model.ExternalMeeting{}}
}

func (s *memStore) BatchLimit() int { return s.limit }

func (s *memStore) ListBySource(_ context.Context, source model.Source) (map[string]*model.ExternalMeeting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*model.ExternalMeeting{}
	for id, m := range s.rows[source] {
		cp := *m
		out[id] = &cp
	}
	return out, nil
}

func (s *memStore) ApplyBatch(_ context.Context, ops []interfaces.WriteOp) error {
	if len(ops) > s.limit {
		return interfaces.ErrBatchTooLarge
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := map[model.Source]map[string]*model.ExternalMeeting{}
	for src, rows := range s.rows {
		staged[src] = map[string]*model.ExternalMeeting{}
		for id, m := range rows {
			staged[src][id] = m
		}
	}
	nextID := s.nextID
	for _, op := range ops {
		m := *op.Meeting
		if staged[m.Source] == nil {
			staged[m.Source] = map[string]*model.ExternalMeeting{}
		}
		switch op.Kind {
		case interfaces.OpCreate:
			if _, dup := staged[m.Source][m.ExternalID]; dup {
				return fmt.Errorf("duplicate %s/%s", m.Source, m.ExternalID)
			}
			nextID++
			m.ID = nextID
			staged[m.Source][m.ExternalID] = &m
		case interfaces.OpUpdate:
			staged[m.Source][m.ExternalID] = &m
		case interfaces.OpDelete:
			delete(staged[m.Source], m.ExternalID)
		}
	}
	s.rows, s.nextID = staged, nextID
	s.batches = append(s.batches, len(ops))
	return nil
}

func (s *memStore) snapshot(source model.Source) map[string]model.CanonicalMeeting {
	rows, _ := s.ListBySource(context.Background(), source)
	out := map[string]model.CanonicalMeeting{}
	for id, m := range rows {
		out[id] = m.Canonical()
	}
	return out
}

// failingStore 在第 failOn 批（从 0 开始）写入时失败
type failingStore struct {
	interfaces.SnapshotStore
	failOn int
	calls  int
}

var errInjected = errors.New("injected store failure")

func (f *failingStore) ApplyBatch(ctx context.Context, ops []interfaces.WriteOp) error {
	call := f.calls
	f.calls++
	if call == f.failOn {
		return errInjected
	}
	return f.SnapshotStore.ApplyBatch(ctx, ops)
}

type fakeAdapter struct {
	source model.Source
	result *model.FetchResult
	err    error
}

func (f *fakeAdapter) GetSource() model.Source { return f.source }

func (f *fakeAdapter) FetchMeetings(context.Context) (*model.FetchResult, error) {
	return f.result, f.err
}

// tokenServer 模拟 OAuth token 端点并统计刷新次数
type tokenServer struct {
	*httptest.Server
	refreshes  atomic.Int32
	exchanges  atomic.Int32
	mu         sync.Mutex
	invalid    bool
	rotateTo   string
	lastGrant  string
	grantedFor string

	// current 非空时每次刷新都轮换 refresh_token，旧值一律 invalid_grant
	current string
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		ts.mu.Lock()
		defer ts.mu.Unlock()
		ts.lastGrant = r.PostForm.Get("grant_type")
		w.Header().Set("Content-Type", "application/json")
		stale := ts.current != "" && ts.lastGrant == "refresh_token" && r.PostForm.Get("refresh_token") != ts.current
		if ts.invalid || stale {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
			return
		}
		switch ts.lastGrant {
		case "refresh_token":
			n := ts.refreshes.Add(1)
			body := fmt.Sprintf(`{"access_token":"fresh-%d","token_type":"Bearer","expires_in":3600`, n)
			if ts.current != "" {
				ts.current = fmt.Sprintf("rt-rot-%d", n)
				body += fmt.Sprintf(`,"refresh_token":%q`, ts.current)
			} else if ts.rotateTo != "" {
				body += fmt.Sprintf(`,"refresh_token":%q`, ts.rotateTo)
			}
			_, _ = io.WriteString(w, body+"}")
		case "authorization_code":
			ts.exchanges.Add(1)
			ts.grantedFor = r.PostForm.Get("redirect_uri")
			_, _ = io.WriteString(w, `{"access_token":"granted","refresh_token":"rt-granted","token_type":"Bearer","expires_in":3600,"scope":"https://www.googleapis.com/auth/calendar.events"}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"unsupported_grant_type"}`)
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

// fakeProvider 内存远程日历。每次调用先经授权客户端访问 probe，记录实际使用的 bearer token
type fakeProvider struct {
	mu       sync.Mutex
	probe    *httptest.Server
	nextID   int
	events   map[string]*model.CalendarEvent
	calls    []string
	tokens   []string
	reject   map[string]bool
	failWith error
	email    string

	// beforeCall 在拿到 token 后、执行操作前调用
	beforeCall func(token string)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	p := &fakeProvider{events: map[string]*model.CalendarEvent{}, reject: map[string]bool{}, email: "user@calendar.example"}
	p.probe = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	}))
	t.Cleanup(p.probe.Close)
	return p
}

func (p *fakeProvider) authorize(client *http.Client, op string) error {
	resp, err := client.Get(p.probe.URL)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	token := string(body)
	if p.beforeCall != nil {
		p.beforeCall(token)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, token)
	p.calls = append(p.calls, op)
	if p.reject[token] {
		return interfaces.ErrUnauthorized
	}
	return p.failWith
}

func (p *fakeProvider) CreateEvent(_ context.Context, client *http.Client, _ string, ev *model.CalendarEvent) (string, error) {
	if err := p.authorize(client, "create"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("evt-%d", p.nextID)
	p.events[id] = ev
	return id, nil
}

func (p *fakeProvider) UpdateEvent(_ context.Context, client *http.Client, _ string, eventID string, ev *model.CalendarEvent) error {
	if err := p.authorize(client, "update"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.events[eventID]; !ok {
		return interfaces.ErrEventNotFound
	}
	p.events[eventID] = ev
	return nil
}

func (p *fakeProvider) DeleteEvent(_ context.Context, client *http.Client, _ string, eventID string) error {
	if err := p.authorize(client, "delete"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.events[eventID]; !ok {
		return interfaces.ErrEventNotFound
	}
	delete(p.events, eventID)
	return nil
}

func (p *fakeProvider) AccountEmail(_ context.Context, client *http.Client) (string, error) {
	if err := p.authorize(client, "email"); err != nil {
		return "", err
	}
	return p.email, nil
}

func (p *fakeProvider) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakeProvider) eventCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

// pushFixture 推送测试的完整依赖
type pushFixture struct {
	db        *gorm.DB
	users     repository.UserRepository
	meetings  repository.MeetingRepository
	externals repository.ExternalMeetingRepository
	tokens    *tokenServer
	provider  *fakeProvider
	creds     *CredentialManager
	push      *CalendarPushService
	cfg       *config.Config
}

func newPushFixture(t *testing.T) *pushFixture {
	t.Helper()
	db := newTestDB(t)
	tokens := newTokenServer(t)
	cfg := &config.Config{
		OAuth: config.OAuthConfig{
			ClientID:     "client",
			ClientSecret: "secret",
			AuthURL:      tokens.URL + "/auth",
			TokenURL:     tokens.URL + "/token",
			RedirectURL:  "https://app.example.org/calendar/callback",
			Scopes:       []string{"https://www.googleapis.com/auth/calendar.events"},
			RefreshSkew:  time.Minute,
		},
		Calendar: config.CalendarConfig{CalendarID: "primary", DefaultTimezone: "UTC"},
	}
	f := &pushFixture{
		db:        db,
		users:     repository.NewUserRepository(db),
		meetings:  repository.NewMeetingRepository(db),
		externals: repository.NewExternalMeetingRepository(db, 0),
		tokens:    tokens,
		provider:  newFakeProvider(t),
		cfg:       cfg,
	}
	logger := quietLogger()
	f.creds = NewCredentialManager(f.users, f.provider, &cfg.OAuth, httpclient.NewAPIClient(5*time.Second, logger), logger)
	f.push = NewCalendarPushService(f.creds, f.provider, f.meetings, f.externals, f.users, &cfg.Calendar, logger)
	return f
}

// addUser expiresIn 为负表示 access_token 已过期
func (f *pushFixture) addUser(t *testing.T, id string, prefs model.SyncPreferences, expiresIn time.Duration) *model.User {
	t.Helper()
	ctx := context.Background()
	if err := f.users.Create(ctx, &model.User{ID: id, Email: id + "@example.org", Role: model.RolePeer}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := f.users.UpdatePreferences(ctx, id, prefs); err != nil {
		t.Fatalf("update prefs: %v", err)
	}
	exp := time.Now().UTC().Add(expiresIn)
	if err := f.users.SaveConnection(ctx, id, model.OAuthCredential{
		AccessToken: "at-" + id, RefreshToken: "rt-" + id, ExpiresAt: &exp,
	}); err != nil {
		t.Fatalf("save connection: %v", err)
	}
	return f.reload(t, id)
}

func (f *pushFixture) reload(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := f.users.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u
}

func (f *pushFixture) addMeeting(t *testing.T, owner string, typ model.MeetingType, title string) *model.Meeting {
	t.Helper()
	m := &model.Meeting{
		OwnerUserID:   owner,
		Title:         title,
		ScheduledTime: time.Date(2026, 11, 3, 18, 0, 0, 0, time.UTC),
		Type:          typ,
		Status:        model.MeetingScheduled,
	}
	if err := f.meetings.Create(context.Background(), m); err != nil {
		t.Fatalf("create meeting: %v", err)
	}
	return m
}

func allTypes() model.SyncPreferences {
	return model.SyncPreferences{Internal: true, DirectoryA: true, DirectoryB: true}
}
