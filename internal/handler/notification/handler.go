package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careloop/consult-api/internal/handler"
	"github.com/careloop/consult-api/internal/middleware"
	"github.com/careloop/consult-api/internal/model"
	"github.com/careloop/consult-api/internal/service/notification"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListUnread)
		notifications.POST("/read", h.MarkRead)
	}
}

func (h *Handler) ListUnread(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing actor"))
		return
	}

	notifications, err := h.service.ListUnread(c.Request.Context(), actor.ID)
	if err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(notifications))
}

func (h *Handler) MarkRead(c *gin.Context) {
	if _, ok := middleware.ActorFrom(c); !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing actor"))
		return
	}

	var req model.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), req.IDs); err != nil {
		handler.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(nil))
}
