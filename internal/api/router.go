package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers 路由依赖
type Handlers struct {
	Auth     *Authenticator
	Sync     *SyncHandler
	Calendar *CalendarHandler
	Meetings *MeetingHandler
}

// RegisterRoutes 注册全部 HTTP 路由
func RegisterRoutes(r gin.IRouter, h *Handlers) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/api/directory/:source/feed.ics", h.Calendar.DirectoryFeed)

	authed := r.Group("/api", h.Auth.RequireUser())
	authed.GET("/calendar/connect", h.Calendar.Connect)
	authed.POST("/calendar/callback", h.Calendar.Callback)
	authed.POST("/calendar/disconnect", h.Calendar.Disconnect)
	authed.POST("/calendar/sync", h.Calendar.SyncNow)
	authed.GET("/calendar/feed.ics", h.Calendar.UserFeed)
	authed.DELETE("/meetings/:id", h.Meetings.DeleteMeeting)

	admin := authed.Group("/admin", h.Auth.RequireAdmin())
	admin.POST("/sync", h.Sync.TriggerSync)
	admin.GET("/sync/runs", h.Sync.ListRuns)
	admin.GET("/sync/runs/latest", h.Sync.LatestRun)
	admin.GET("/notifications", h.Sync.ListNotifications)
	admin.POST("/notifications/:id/read", h.Sync.MarkNotificationRead)
}
