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

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// AuthorizedClient 已带有效 access_token 的 HTTP 客户端
type AuthorizedClient struct {
	UserID string
	Client *http.Client
	Token  *oauth2.Token
}

// CredentialManager 远程日历凭据：刷新、落库、授权码兑换
type CredentialManager struct {
	store      interfaces.CredentialStore
	oauth      *oauth2.Config
	provider   interfaces.CalendarProvider
	httpClient *http.Client
	skew       time.Duration
	logger     *logrus.Logger
	now        func() time.Time
}

func NewCredentialManager(store interfaces.CredentialStore, provider interfaces.CalendarProvider, cfg *config.OAuthConfig, httpClient *http.Client, logger *logrus.Logger) *CredentialManager {
	skew := cfg.RefreshSkew
	if skew <= 0 {
		skew = time.Minute
	}
	return &CredentialManager{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		provider:   provider,
		httpClient: httpClient,
		skew:       skew,
		logger:     logger,
		now:        time.Now,
	}
}

// AuthCodeURL 授权页地址，请求离线访问以获取 refresh_token
func (m *CredentialManager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// GetValidClient access_token 已过期或即将过期（skew 内）时先刷新并落库
func (m *CredentialManager) GetValidClient(ctx context.Context, user *model.User) (*AuthorizedClient, error) {
	cred := user.Calendar
	if !cred.Connected {
		return nil, &interfaces.CredentialError{UserID: user.ID, Err: interfaces.ErrNotConnected}
	}
	if cred.NeedsReauth {
		return nil, &interfaces.CredentialError{UserID: user.ID, Err: interfaces.ErrReauthRequired}
	}
	if cred.AccessToken != "" && !m.expiring(cred.ExpiresAt) {
		return m.client(user.ID, tokenFromCredential(cred)), nil
	}
	tok, err := m.refresh(ctx, user.ID, cred.RefreshToken)
	if err != nil {
		return nil, err
	}
	applyToken(&user.Calendar, tok)
	return m.client(user.ID, tok), nil
}

// ForceRefresh 远程返回 401 后调用。先以存储为准：其他进程已刷新出新 token 时直接使用
func (m *CredentialManager) ForceRefresh(ctx context.Context, userID, staleAccessToken string) (*AuthorizedClient, error) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return nil, &interfaces.CredentialError{UserID: userID, Err: err}
	}
	cred := user.Calendar
	if !cred.Connected || cred.NeedsReauth {
		return nil, &interfaces.CredentialError{UserID: userID, Err: interfaces.ErrReauthRequired}
	}
	if cred.AccessToken != "" && cred.AccessToken != staleAccessToken && !m.expiring(cred.ExpiresAt) {
		m.logger.WithField("user_id", userID).Info("存储中已有更新的access_token，跳过刷新")
		return m.client(userID, tokenFromCredential(cred)), nil
	}
	tok, err := m.refresh(ctx, userID, cred.RefreshToken)
	if err != nil {
		return nil, err
	}
	return m.client(userID, tok), nil
}

// WithClient 执行远程调用；遇到 ErrUnauthorized 强制刷新后重试一次
func (m *CredentialManager) WithClient(ctx context.Context, user *model.User, call func(*http.Client) error) error {
	ac, err := m.GetValidClient(ctx, user)
	if err != nil {
		return err
	}
	err = call(ac.Client)
	if !errors.Is(err, interfaces.ErrUnauthorized) {
		return err
	}
	m.logger.WithField("user_id", user.ID).Warn("远程日历拒绝凭据，强制刷新后重试一次")
	retry, rerr := m.ForceRefresh(ctx, user.ID, ac.Token.AccessToken)
	if rerr != nil {
		return rerr
	}
	applyToken(&user.Calendar, retry.Token)
	return call(retry.Client)
}

// Exchange 授权码兑换 token，记录授权范围与远程账号邮箱
func (m *CredentialManager) Exchange(ctx context.Context, userID, code, redirectURI string) (*model.OAuthCredential, error) {
	conf := *m.oauth
	if redirectURI != "" {
		conf.RedirectURL = redirectURI
	}
	tok, err := conf.Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return nil, &interfaces.CredentialError{UserID: userID, Err: fmt.Errorf("授权码兑换失败: %w", err)}
	}

	cred := model.OAuthCredential{
		Connected:    true,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiryPtr(tok.Expiry),
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.GrantedScope = scope
	}
	email, err := m.provider.AccountEmail(ctx, m.client(userID, tok).Client)
	if err != nil {
		m.logger.WithError(err).WithField("user_id", userID).Warn("获取远程日历账号邮箱失败")
	}
	cred.AccountEmail = email

	if err := m.store.SaveConnection(ctx, userID, cred); err != nil {
		return nil, &interfaces.CredentialError{UserID: userID, Err: fmt.Errorf("保存日历凭据失败: %w", err)}
	}
	m.logger.WithFields(logrus.Fields{"user_id": userID, "account": email}).Info("日历连接成功")
	return &cred, nil
}

// Disconnect 清除凭据
func (m *CredentialManager) Disconnect(ctx context.Context, userID string) error {
	if err := m.store.ClearCredential(ctx, userID); err != nil {
		return &interfaces.CredentialError{UserID: userID, Err: err}
	}
	return nil
}

// refresh 用 refresh_token 换新 token，落库后才返回；refresh_token 失效时标记需重新授权
func (m *CredentialManager) refresh(ctx context.Context, userID, refreshToken string) (*oauth2.Token, error) {
	log := m.logger.WithField("user_id", userID)
	if refreshToken == "" {
		log.Warn("缺少refresh_token，标记需要重新授权")
		if merr := m.store.MarkReauthRequired(ctx, userID); merr != nil {
			log.WithError(merr).Error("标记重新授权失败")
		}
		return nil, &interfaces.CredentialError{UserID: userID, Err: interfaces.ErrReauthRequired}
	}

	tok, err := m.oauth.TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			log.Warn("refresh_token已失效，标记需要重新授权")
			if merr := m.store.MarkReauthRequired(ctx, userID); merr != nil {
				log.WithError(merr).Error("标记重新授权失败")
			}
			return nil, &interfaces.CredentialError{UserID: userID, Err: interfaces.ErrReauthRequired}
		}
		return nil, &interfaces.CredentialError{UserID: userID, Err: fmt.Errorf("刷新access_token失败: %w", err)}
	}

	update := interfaces.TokenUpdate{AccessToken: tok.AccessToken, ExpiresAt: expiryPtr(tok.Expiry)}
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		update.RefreshToken = tok.RefreshToken
	}
	if err := m.store.SaveTokens(ctx, userID, update); err != nil {
		return nil, &interfaces.CredentialError{UserID: userID, Err: fmt.Errorf("保存刷新后的token失败: %w", err)}
	}
	log.WithField("rotated", update.RefreshToken != "").Info("access_token已刷新")
	return tok, nil
}

func (m *CredentialManager) expiring(expiresAt *time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return !m.now().Add(m.skew).Before(*expiresAt)
}

func (m *CredentialManager) oauthContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *CredentialManager) client(userID string, tok *oauth2.Token) *AuthorizedClient {
	c := oauth2.NewClient(m.oauthContext(context.Background()), oauth2.StaticTokenSource(tok))
	if m.httpClient != nil {
		c.Timeout = m.httpClient.Timeout
	}
	return &AuthorizedClient{UserID: userID, Client: c, Token: tok}
}

// applyToken 把刷新结果同步回调用方持有的用户对象，同一轮后续会议不再重复刷新
func applyToken(cred *model.OAuthCredential, tok *oauth2.Token) {
	cred.AccessToken = tok.AccessToken
	cred.ExpiresAt = expiryPtr(tok.Expiry)
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
}

func tokenFromCredential(cred model.OAuthCredential) *oauth2.Token {
	tok := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer", RefreshToken: cred.RefreshToken}
	if cred.ExpiresAt != nil {
		tok.Expiry = *cred.ExpiresAt
	}
	return tok
}

func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
