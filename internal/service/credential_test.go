package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"reflect"
	"testing"
	"time"

	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
)

func createCall(f *pushFixture) func(*http.Client) error {
	return func(c *http.Client) error {
		_, err := f.provider.CreateEvent(context.Background(), c, "primary", &model.CalendarEvent{Summary: "probe"})
		return err
	}
}

func TestExpiredTokenRefreshedOnceAndPersistedBeforeCall(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), -time.Minute)

	var storedAtCall string
	f.provider.beforeCall = func(string) {
		storedAtCall = f.reload(t, "u1").Calendar.AccessToken
	}
	if err := f.creds.WithClient(context.Background(), user, createCall(f)); err != nil {
		t.Fatalf("with client: %v", err)
	}
	if got := f.tokens.refreshes.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if !reflect.DeepEqual(f.provider.tokens, []string{"fresh-1"}) {
		t.Fatalf("calendar call should use the refreshed token, got %v", f.provider.tokens)
	}
	if storedAtCall != "fresh-1" {
		t.Fatalf("refreshed token must be persisted before the call, store had %q", storedAtCall)
	}
	stored := f.reload(t, "u1").Calendar
	if stored.RefreshToken != "rt-u1" {
		t.Fatalf("refresh token should be kept when none is reissued, got %q", stored.RefreshToken)
	}
	if stored.ExpiresAt == nil || !stored.ExpiresAt.After(time.Now().Add(30*time.Minute)) {
		t.Fatalf("expiry should move forward, got %v", stored.ExpiresAt)
	}
}

func TestTokenInsideSkewIsRefreshed(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), 30*time.Second)

	ac, err := f.creds.GetValidClient(context.Background(), user)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if ac.Token.AccessToken != "fresh-1" {
		t.Fatalf("token expiring within skew should be refreshed, got %q", ac.Token.AccessToken)
	}
}

func TestValidTokenSkipsRefresh(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), time.Hour)

	if err := f.creds.WithClient(context.Background(), user, createCall(f)); err != nil {
		t.Fatalf("with client: %v", err)
	}
	if got := f.tokens.refreshes.Load(); got != 0 {
		t.Fatalf("valid token must not be refreshed, got %d refreshes", got)
	}
	if !reflect.DeepEqual(f.provider.tokens, []string{"at-u1"}) {
		t.Fatalf("expected stored access token, got %v", f.provider.tokens)
	}
}

func TestInvalidGrantMarksReauth(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), -time.Minute)
	f.tokens.invalid = true

	err := f.creds.WithClient(context.Background(), user, createCall(f))
	if !errors.Is(err, interfaces.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
	var cerr *interfaces.CredentialError
	if !errors.As(err, &cerr) || cerr.UserID != "u1" {
		t.Fatalf("expected CredentialError for u1, got %v", err)
	}
	if len(f.provider.callLog()) != 0 {
		t.Fatalf("no calendar call should be made without a valid token")
	}
	reloaded := f.reload(t, "u1")
	if !reloaded.Calendar.NeedsReauth {
		t.Fatalf("user should be flagged for re-authorization")
	}

	// 已标记的用户不再尝试刷新
	f.tokens.invalid = false
	if _, err := f.creds.GetValidClient(context.Background(), reloaded); !errors.Is(err, interfaces.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired for flagged user, got %v", err)
	}
	if got := f.tokens.refreshes.Load(); got != 0 {
		t.Fatalf("flagged user must not trigger refresh, got %d", got)
	}
}

func TestRotatedRefreshTokenIsStored(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), -time.Minute)
	f.tokens.rotateTo = "rt-rotated"

	if _, err := f.creds.GetValidClient(context.Background(), user); err != nil {
		t.Fatalf("get client: %v", err)
	}
	if got := f.reload(t, "u1").Calendar.RefreshToken; got != "rt-rotated" {
		t.Fatalf("expected rotated refresh token, got %q", got)
	}
}

func TestNotConnectedUser(t *testing.T) {
	f := newPushFixture(t)
	ctx := context.Background()
	if err := f.users.Create(ctx, &model.User{ID: "u2", Role: model.RolePeer}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := f.creds.GetValidClient(ctx, f.reload(t, "u2"))
	if !errors.Is(err, interfaces.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestForceRefreshPrefersNewerStoredToken(t *testing.T) {
	f := newPushFixture(t)
	f.addUser(t, "u1", allTypes(), time.Hour)
	ctx := context.Background()

	exp := time.Now().UTC().Add(time.Hour)
	if err := f.users.SaveTokens(ctx, "u1", interfaces.TokenUpdate{AccessToken: "from-other-worker", ExpiresAt: &exp}); err != nil {
		t.Fatalf("save tokens: %v", err)
	}
	ac, err := f.creds.ForceRefresh(ctx, "u1", "at-u1")
	if err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if ac.Token.AccessToken != "from-other-worker" {
		t.Fatalf("expected newer stored token, got %q", ac.Token.AccessToken)
	}
	if got := f.tokens.refreshes.Load(); got != 0 {
		t.Fatalf("no refresh expected, got %d", got)
	}

	ac, err = f.creds.ForceRefresh(ctx, "u1", "from-other-worker")
	if err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if ac.Token.AccessToken != "fresh-1" || f.tokens.refreshes.Load() != 1 {
		t.Fatalf("stale stored token should be refreshed, got %q", ac.Token.AccessToken)
	}
}

func TestWithClientRetriesOnceAfterUnauthorized(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), time.Hour)
	f.provider.reject["at-u1"] = true

	if err := f.creds.WithClient(context.Background(), user, createCall(f)); err != nil {
		t.Fatalf("with client: %v", err)
	}
	if !reflect.DeepEqual(f.provider.tokens, []string{"at-u1", "fresh-1"}) {
		t.Fatalf("expected retry with refreshed token, got %v", f.provider.tokens)
	}
	if f.provider.eventCount() != 1 {
		t.Fatalf("expected one event after retry, got %d", f.provider.eventCount())
	}
}

func TestWithClientGivesUpAfterSecondUnauthorized(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), time.Hour)
	f.provider.reject["at-u1"] = true
	f.provider.reject["fresh-1"] = true

	err := f.creds.WithClient(context.Background(), user, createCall(f))
	if !errors.Is(err, interfaces.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := len(f.provider.callLog()); got != 2 {
		t.Fatalf("expected exactly two attempts, got %d", got)
	}
}

func TestExchangeStoresConnection(t *testing.T) {
	f := newPushFixture(t)
	ctx := context.Background()
	if err := f.users.Create(ctx, &model.User{ID: "u3", Role: model.RoleCoach}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	cred, err := f.creds.Exchange(ctx, "u3", "auth-code", "")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if cred.AccountEmail != "user@calendar.example" {
		t.Fatalf("expected account email, got %q", cred.AccountEmail)
	}
	if f.tokens.grantedFor != f.cfg.OAuth.RedirectURL {
		t.Fatalf("expected configured redirect uri, got %q", f.tokens.grantedFor)
	}
	stored := f.reload(t, "u3").Calendar
	if !stored.Active() || stored.AccessToken != "granted" || stored.RefreshToken != "rt-granted" {
		t.Fatalf("connection not stored: %+v", stored)
	}
	if stored.GrantedScope != "https://www.googleapis.com/auth/calendar.events" {
		t.Fatalf("expected granted scope, got %q", stored.GrantedScope)
	}
}

func TestAuthCodeURLRequestsOfflineAccess(t *testing.T) {
	f := newPushFixture(t)
	u, err := url.Parse(f.creds.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatalf("parse auth url: %v", err)
	}
	q := u.Query()
	if q.Get("access_type") != "offline" || q.Get("prompt") != "consent" || q.Get("state") != "state-1" {
		t.Fatalf("unexpected auth url query %v", q)
	}
}

func TestMissingRefreshTokenMarksReauth(t *testing.T) {
	f := newPushFixture(t)
	f.addUser(t, "u1", allTypes(), -time.Minute)
	if err := f.db.Model(&model.User{}).Where("id = ?", "u1").
		UpdateColumn("calendar_refresh_token", "").Error; err != nil {
		t.Fatalf("clear refresh token: %v", err)
	}

	_, err := f.creds.GetValidClient(context.Background(), f.reload(t, "u1"))
	if !errors.Is(err, interfaces.ErrReauthRequired) {
		t.Fatalf("expected ErrReauthRequired, got %v", err)
	}
	if !f.reload(t, "u1").Calendar.NeedsReauth {
		t.Fatalf("user without refresh token should be flagged")
	}
	if got := f.tokens.refreshes.Load(); got != 0 {
		t.Fatalf("no refresh should be attempted, got %d", got)
	}
}

func TestRefreshUpdatesCallerCredential(t *testing.T) {
	f := newPushFixture(t)
	user := f.addUser(t, "u1", allTypes(), -time.Minute)
	f.tokens.rotateTo = "rt-rotated"

	if _, err := f.creds.GetValidClient(context.Background(), user); err != nil {
		t.Fatalf("get client: %v", err)
	}
	if user.Calendar.AccessToken != "fresh-1" || user.Calendar.RefreshToken != "rt-rotated" {
		t.Fatalf("caller credential should carry the refreshed tokens, got %+v", user.Calendar)
	}
	if _, err := f.creds.GetValidClient(context.Background(), user); err != nil {
		t.Fatalf("second get client: %v", err)
	}
	if got := f.tokens.refreshes.Load(); got != 1 {
		t.Fatalf("second call should reuse the refreshed token, got %d refreshes", got)
	}
}
