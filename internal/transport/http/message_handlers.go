package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall-server/internal/config"
	"github.com/vovakirdan/wirecall-server/internal/core"
	"github.com/vovakirdan/wirecall-server/internal/proto"
	"github.com/vovakirdan/wirecall-server/internal/store"
)

// MessageHandlers exposes the message relay over REST.
type MessageHandlers struct {
	hub *core.Hub
	cfg *config.Config
	log *zerolog.Logger
}

// NewMessageHandlers creates message handlers.
func NewMessageHandlers(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{hub: hub, cfg: cfg, log: logger}
}

// PostMessageRequest is the REST form of a chat message.
type PostMessageRequest struct {
	proto.RoomData
	Text      *string `json:"text"`
	Type      string  `json:"type"`
	ImagePath *string `json:"imagePath"`
}

// PostMessageResponse reports the stored message.
type PostMessageResponse struct {
	Success bool               `json:"success"`
	Message proto.EventMessage `json:"message"`
}

// MessagesResponse is one page of channel history.
type MessagesResponse struct {
	ChannelID string               `json:"channelId"`
	Page      int                  `json:"page"`
	PageSize  int                  `json:"pageSize"`
	Messages  []proto.EventMessage `json:"messages"`
}

// ListMessages returns a page of a channel's messages, oldest first.
// GET /api/messages?channelId=...&page=1&pageSize=50
func (h *MessageHandlers) ListMessages(c *gin.Context) {
	channelID := c.Query("channelId")
	if channelID == "" {
		channelID = c.Query("roomId")
	}
	if channelID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "channelId is required"})
		return
	}

	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize := queryInt(c, "pageSize", h.cfg.PageSize)
	if pageSize < 1 {
		pageSize = h.cfg.PageSize
	}
	if h.cfg.MaxPageSize > 0 && pageSize > h.cfg.MaxPageSize {
		pageSize = h.cfg.MaxPageSize
	}
	// Pages past this point are empty and would overflow the row offset.
	if maxPage := math.MaxInt32 / pageSize; page > maxPage {
		page = maxPage + 1
	}

	messages, err := h.hub.Messages(c.Request.Context(), channelID, page, pageSize)
	if err != nil {
		h.log.Error().Err(err).Str("room", channelID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load messages"})
		return
	}

	out := make([]proto.EventMessage, 0, len(messages))
	for i := range messages {
		out = append(out, eventMessage(&messages[i]))
	}
	c.JSON(http.StatusOK, MessagesResponse{ChannelID: channelID, Page: page, PageSize: pageSize, Messages: out})
}

// PostMessage persists a message and broadcasts it to the channel room.
// POST /api/messages
func (h *MessageHandlers) PostMessage(c *gin.Context) {
	username, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.hub.PostMessage(c.Request.Context(), username, req.Room(), core.MessageInput{
		Text:      emptyToNil(req.Text),
		Type:      store.MessageType(req.Type),
		ImagePath: emptyToNil(req.ImagePath),
	})
	if err != nil {
		writeCoreError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, PostMessageResponse{Success: true, Message: eventMessage(msg)})
}

// writeCoreError maps core errors onto HTTP status codes.
func writeCoreError(c *gin.Context, logger *zerolog.Logger, err error) {
	switch {
	case errors.Is(err, core.ErrValidation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: core.AsCoreError(err).Message})
	case errors.Is(err, core.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	default:
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: core.AsCoreError(err).Message})
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
