package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"MeetingSync/internal/model"
	"MeetingSync/internal/repository"
	"MeetingSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DirectorySyncer 目录同步执行器
type DirectorySyncer interface {
	RunAll(ctx context.Context, trigger service.Trigger) (*model.SyncRun, error)
}

// SyncHandler 管理员接口：手动触发同步、运行日志与告警查询
type SyncHandler struct {
	syncer DirectorySyncer
	runs   repository.SyncRunRepository
	notes  repository.NotificationRepository
	logger *logrus.Logger
}

func NewSyncHandler(syncer DirectorySyncer, runs repository.SyncRunRepository, notes repository.NotificationRepository, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{syncer: syncer, runs: runs, notes: notes, logger: logger}
}

// RunResponse 与定时运行写入的运行记录同形
type RunResponse struct {
	ID          string                               `json:"id"`
	Timestamp   string                               `json:"timestamp"`
	Success     bool                                 `json:"success"`
	Summaries   map[model.Source]model.SourceSummary `json:"summaries"`
	DurationMs  int64                                `json:"duration_ms"`
	Errors      []model.RunError                     `json:"errors"`
	Manual      bool                                 `json:"manual"`
	TriggeredBy string                               `json:"triggered_by,omitempty"`
}

func toRunResponse(run *model.SyncRun) RunResponse {
	resp := RunResponse{
		ID:         run.ID,
		Timestamp:  run.Timestamp.UTC().Format(time.RFC3339),
		Success:    run.Success,
		Summaries:  run.SummaryMap(),
		DurationMs: run.DurationMs,
		Errors:     run.ErrorList(),
		Manual:     run.Manual,
	}
	if resp.Errors == nil {
		resp.Errors = []model.RunError{}
	}
	if run.TriggeredBy != nil {
		resp.TriggeredBy = *run.TriggeredBy
	}
	return resp
}

// TriggerSync 手动触发全部目录同步 POST /api/admin/sync
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	user, _ := CurrentUser(c)
	trigger := service.Trigger{Manual: true}
	if user != nil {
		trigger.TriggeredBy = user.ID
	}
	h.logger.WithField("user_id", trigger.TriggeredBy).Info("手动触发目录同步")

	run, err := h.syncer.RunAll(c.Request.Context(), trigger)
	if err != nil {
		h.logger.WithError(err).Error("TriggerSync failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

// ListRuns 最近的运行记录 GET /api/admin/sync/runs?limit=20
func (h *SyncHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("ListRuns failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	out := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, toRunResponse(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// LatestRun 最近一次运行 GET /api/admin/sync/runs/latest
func (h *SyncHandler) LatestRun(c *gin.Context) {
	run, err := h.runs.Latest(c.Request.Context())
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sync run recorded yet"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("LatestRun failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toRunResponse(run))
}

// ListNotifications 当前管理员可见的告警 GET /api/admin/notifications?unread=true
func (h *SyncHandler) ListNotifications(c *gin.Context) {
	user, _ := CurrentUser(c)
	role := model.RoleAdmin
	if user != nil {
		role = user.Role
	}
	unread := c.Query("unread") == "true"
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	list, err := h.notes.ListForRole(c.Request.Context(), role, unread, limit)
	if err != nil {
		h.logger.WithError(err).Error("ListNotifications failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkNotificationRead POST /api/admin/notifications/:id/read
func (h *SyncHandler) MarkNotificationRead(c *gin.Context) {
	id := c.Param("id")
	err := h.notes.MarkRead(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("MarkNotificationRead failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已标记为已读"})
}
