package api

import (
	"context"
	"errors"
	"net/http"

	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"
	"MeetingSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CalendarConnector OAuth 授权流程
type CalendarConnector interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, userID, code, redirectURI string) (*model.OAuthCredential, error)
}

// StateSigner 签发与校验 OAuth state
type StateSigner interface {
	IssueState(userID string) (string, error)
	VerifyState(raw, userID string) error
}

// CalendarPusher 日历推送
type CalendarPusher interface {
	SyncUser(ctx context.Context, userID string) (*service.PushSummary, error)
	RemoveMeeting(ctx context.Context, user *model.User, meetingID uint64) error
	DisconnectUser(ctx context.Context, userID string) error
}

// FeedExporter iCal 订阅源
type FeedExporter interface {
	UserFeed(ctx context.Context, userID string) ([]byte, error)
	DirectoryFeed(ctx context.Context, source model.Source) ([]byte, error)
}

// CalendarHandler 用户日历连接、立即同步与订阅源
type CalendarHandler struct {
	connector CalendarConnector
	states    StateSigner
	pusher    CalendarPusher
	feeds     FeedExporter
	logger    *logrus.Logger
}

func NewCalendarHandler(connector CalendarConnector, states StateSigner, pusher CalendarPusher, feeds FeedExporter, logger *logrus.Logger) *CalendarHandler {
	return &CalendarHandler{connector: connector, states: states, pusher: pusher, feeds: feeds, logger: logger}
}

// CallbackRequest 授权回调 body
type CallbackRequest struct {
	Code        string `json:"code" binding:"required"`
	State       string `json:"state" binding:"required"`
	RedirectURI string `json:"redirect_uri" binding:"omitempty,url"`
}

// Connect 返回授权页地址 GET /api/calendar/connect
func (h *CalendarHandler) Connect(c *gin.Context) {
	user, _ := CurrentUser(c)
	state, err := h.states.IssueState(user.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("Connect failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue state"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": h.connector.AuthCodeURL(state), "state": state})
}

// Callback 兑换授权码 POST /api/calendar/callback
func (h *CalendarHandler) Callback(c *gin.Context) {
	user, _ := CurrentUser(c)
	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if err := h.states.VerifyState(req.State, user.ID); err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Warn("OAuth state 校验失败")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
		return
	}
	cred, err := h.connector.Exchange(c.Request.Context(), user.ID, req.Code, req.RedirectURI)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("Callback failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected":     cred.Connected,
		"account_email": cred.AccountEmail,
		"granted_scope": cred.GrantedScope,
	})
}

// Disconnect POST /api/calendar/disconnect
func (h *CalendarHandler) Disconnect(c *gin.Context) {
	user, _ := CurrentUser(c)
	if err := h.pusher.DisconnectUser(c.Request.Context(), user.ID); err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("Disconnect failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "日历已断开连接"})
}

// SyncNow 推送当前用户全部会议 POST /api/calendar/sync
func (h *CalendarHandler) SyncNow(c *gin.Context) {
	user, _ := CurrentUser(c)
	summary, err := h.pusher.SyncUser(c.Request.Context(), user.ID)
	if err != nil {
		status := credentialStatus(err)
		h.logger.WithError(err).WithField("user_id", user.ID).Warn("SyncNow failed")
		body := gin.H{"error": err.Error()}
		if summary != nil {
			body["summary"] = summary
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// UserFeed 当前用户的 iCal 订阅 GET /api/calendar/feed.ics
func (h *CalendarHandler) UserFeed(c *gin.Context) {
	user, _ := CurrentUser(c)
	body, err := h.feeds.UserFeed(c.Request.Context(), user.ID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", user.ID).Error("UserFeed failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, service.FeedContentType, body)
}

// DirectoryFeed 目录会议 iCal 订阅 GET /api/directory/:source/feed.ics
func (h *CalendarHandler) DirectoryFeed(c *gin.Context) {
	source, ok := model.ParseSource(c.Param("source"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown directory source"})
		return
	}
	body, err := h.feeds.DirectoryFeed(c.Request.Context(), source)
	if err != nil {
		h.logger.WithError(err).WithField("source", source).Error("DirectoryFeed failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, service.FeedContentType, body)
}

// credentialStatus 凭据类错误返回 409，提示用户重新连接
func credentialStatus(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotConnected), errors.Is(err, interfaces.ErrReauthRequired):
		return http.StatusConflict
	case errors.As(err, new(*interfaces.CredentialError)):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
