package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall-server/internal/core"
	"github.com/vovakirdan/wirecall-server/internal/proto"
)

// CallHandlers exposes call invites over REST.
type CallHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewCallHandlers creates call handlers.
func NewCallHandlers(hub *core.Hub, logger *zerolog.Logger) *CallHandlers {
	return &CallHandlers{hub: hub, log: logger}
}

// StartCallRequest names the channel to ring.
type StartCallRequest struct {
	proto.RoomData
	CallID string `json:"callId"`
}

// StartCallResponse reports the call id that was announced.
type StartCallResponse struct {
	Success bool   `json:"success"`
	RoomID  string `json:"roomId"`
	CallID  string `json:"callId"`
}

// StartCall invites every member of the channel room to a call.
// POST /api/calls
func (h *CallHandlers) StartCall(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	callID, err := h.hub.StartCall(c.Request.Context(), username, req.Room(), req.CallID)
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}

	h.log.Info().Str("username", username).Str("room", req.Room()).Str("call_id", callID).Msg("call started")
	c.JSON(http.StatusOK, StartCallResponse{Success: true, RoomID: req.Room(), CallID: callID})
}
