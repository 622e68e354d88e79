package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/wirecall-server/internal/store"
)

// Relay persists chat messages, enriches them with sender avatars and
// addresses them to channel rooms.
type Relay struct {
	messages store.MessageStore
	avatars  store.AvatarStore
	registry *Registry
	log      *zerolog.Logger
	now      func() time.Time
}

// NewRelay builds a message relay. avatars may be nil, in which case messages
// carry no avatar.
func NewRelay(messages store.MessageStore, avatars store.AvatarStore, registry *Registry, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		messages: messages,
		avatars:  avatars,
		registry: registry,
		log:      logger,
		now:      time.Now,
	}
}

// Post stores a message from principal and returns it with a delivery to every
// member of the channel room, sender sessions included.
func (r *Relay) Post(ctx context.Context, principal, roomID string, in MessageInput) (*Message, Delivery, error) {
	if principal == "" {
		return nil, Delivery{}, coreError(ErrCodeUnauthorized, "unauthorized", ErrUnauthorized)
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, Delivery{}, validationError("roomId is required")
	}
	if r.messages == nil {
		return nil, Delivery{}, coreError(ErrCodePersistenceFailed, "message store unavailable", ErrPersistence)
	}

	msgType := in.Type
	if msgType == "" {
		msgType = store.MessageTypeText
	}
	record := &store.Message{
		ChannelID: roomID,
		Sender:    principal,
		Text:      in.Text,
		Type:      msgType,
		ImagePath: in.ImagePath,
		CreatedAt: r.now().UTC(),
	}
	if _, err := r.messages.InsertMessage(ctx, record); err != nil {
		r.log.Error().Err(err).Str("room", roomID).Str("username", principal).Msg("persist message")
		return nil, Delivery{}, coreError(ErrCodePersistenceFailed, "failed to store message",
			fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	msg := messageFromStore(record)
	msg.Avatar = r.lookupAvatar(ctx, principal)

	ev := &Event{Kind: EventRoomMessage, Room: roomID, User: principal, Message: &msg}
	return &msg, r.registry.Broadcast(ChannelRoom(roomID), ev, nil), nil
}

// PostCallInviteMarker posts the empty callInvite marker used as a fallback
// notification for clients that missed the invite event.
func (r *Relay) PostCallInviteMarker(ctx context.Context, principal, roomID string) (Delivery, error) {
	_, delivery, err := r.Post(ctx, principal, roomID, MessageInput{Type: store.MessageTypeCallInvite})
	return delivery, err
}

// History returns up to limit most recent messages of a room, oldest first.
func (r *Relay) History(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if r.messages == nil {
		return nil, nil
	}
	records, err := r.messages.QueryRecent(ctx, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query recent: %w", ErrPersistence, err)
	}
	return r.enrich(ctx, records), nil
}

// Page returns one 1-based page of a room's messages, oldest first within the page.
func (r *Relay) Page(ctx context.Context, roomID string, page, pageSize int) ([]Message, error) {
	if r.messages == nil {
		return nil, nil
	}
	records, err := r.messages.QueryPage(ctx, roomID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("%w: query page: %w", ErrPersistence, err)
	}
	return r.enrich(ctx, records), nil
}

// enrich reverses newest-first records and attaches avatars.
func (r *Relay) enrich(ctx context.Context, records []*store.Message) []Message {
	out := make([]Message, 0, len(records))
	avatars := make(map[string]*string)
	for i := len(records) - 1; i >= 0; i-- {
		msg := messageFromStore(records[i])
		avatar, seen := avatars[msg.Sender]
		if !seen {
			avatar = r.lookupAvatar(ctx, msg.Sender)
			avatars[msg.Sender] = avatar
		}
		msg.Avatar = avatar
		out = append(out, msg)
	}
	return out
}

// lookupAvatar is best effort: failures are logged and yield no avatar.
func (r *Relay) lookupAvatar(ctx context.Context, username string) *string {
	if r.avatars == nil {
		return nil
	}
	avatar, err := r.avatars.LookupAvatar(ctx, username)
	if err != nil {
		r.log.Warn().Err(err).Str("username", username).Msg("avatar lookup failed")
		return nil
	}
	return avatar
}
