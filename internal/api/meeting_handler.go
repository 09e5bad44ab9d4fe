package api

import (
	"errors"
	"net/http"
	"strconv"

	"MeetingSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MeetingHandler 会议删除：先删远程事件，再删本地记录
type MeetingHandler struct {
	pusher CalendarPusher
	logger *logrus.Logger
}

func NewMeetingHandler(pusher CalendarPusher, logger *logrus.Logger) *MeetingHandler {
	return &MeetingHandler{pusher: pusher, logger: logger}
}

// DeleteMeeting DELETE /api/meetings/:id
func (h *MeetingHandler) DeleteMeeting(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid meeting id"})
		return
	}
	user, _ := CurrentUser(c)
	err = h.pusher.RemoveMeeting(c.Request.Context(), user, id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	case errors.Is(err, service.ErrMeetingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("meeting_id", id).Error("DeleteMeeting failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
