package handlers

import (
	"github.com/awehrman/peas/internal/status"
	"github.com/gin-gonic/gin"
)

// StatusStreamHandler upgrades clients onto the status hub.
type StatusStreamHandler struct {
	hub *status.Hub
}

func NewStatusStreamHandler(hub *status.Hub) *StatusStreamHandler {
	return &StatusStreamHandler{hub: hub}
}

// GET /ws/status?importId=...
func (h *StatusStreamHandler) Stream(ctx *gin.Context) {
	h.hub.ServeWS(ctx.Writer, ctx.Request)
}
