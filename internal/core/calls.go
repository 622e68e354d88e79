package core

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// InviteMarker posts a fallback chat message announcing a call.
type InviteMarker interface {
	PostCallInviteMarker(ctx context.Context, principal, roomID string) (Delivery, error)
}

// CallCoordinator relays call signaling. It keeps no call state: invites,
// cancels and declines go to channel rooms, offers, answers and candidates go
// to one named session.
type CallCoordinator struct {
	registry *Registry
	markers  InviteMarker
	log      *zerolog.Logger
	now      func() time.Time
}

// NewCallCoordinator builds a coordinator. A nil markers disables the
// fallback marker message.
func NewCallCoordinator(registry *Registry, markers InviteMarker, logger *zerolog.Logger) *CallCoordinator {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CallCoordinator{
		registry: registry,
		markers:  markers,
		log:      logger,
		now:      time.Now,
	}
}

// Invite announces a call to the channel room. from is the inviting session
// and is excluded from the broadcast; it is nil for REST-triggered invites.
// An empty callID is replaced by {roomId}:{unix millis}.
func (c *CallCoordinator) Invite(ctx context.Context, from *Session, principal, roomID, callID string) (string, []Delivery, error) {
	if principal == "" {
		return "", nil, coreError(ErrCodeUnauthorized, "unauthorized", ErrUnauthorized)
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", nil, validationError("roomId is required")
	}
	if callID == "" {
		callID = roomID + ":" + strconv.FormatInt(c.now().UnixMilli(), 10)
	}

	ev := &Event{
		Kind: EventCallInvite,
		Room: roomID,
		User: principal,
		Call: &CallEvent{
			CallID:      callID,
			RoomID:      roomID,
			FromUser:    principal,
			FromSession: sessionID(from),
		},
	}
	deliveries := []Delivery{c.registry.Broadcast(ChannelRoom(roomID), ev, from)}

	if c.markers != nil {
		marker, err := c.markers.PostCallInviteMarker(ctx, principal, roomID)
		if err != nil {
			c.log.Warn().Err(err).Str("room", roomID).Str("call_id", callID).Msg("call invite marker failed")
		} else {
			deliveries = append(deliveries, marker)
		}
	}
	return callID, deliveries, nil
}

// JoinCallRoom subscribes s to a call room and notifies the members already there.
func (c *CallCoordinator) JoinCallRoom(s *Session, callRoomID string) ([]Delivery, error) {
	callRoomID = strings.TrimSpace(callRoomID)
	if callRoomID == "" {
		return nil, validationError("callRoomId is required")
	}
	others, added := c.registry.Join(s, CallRoom(callRoomID))
	if !added || len(others) == 0 {
		return nil, nil
	}
	return []Delivery{{To: others, Event: callPresence(EventCallJoined, callRoomID, s)}}, nil
}

// LeaveCallRoom removes s from a call room and notifies the remaining members.
func (c *CallCoordinator) LeaveCallRoom(s *Session, callRoomID string) ([]Delivery, error) {
	callRoomID = strings.TrimSpace(callRoomID)
	if callRoomID == "" {
		return nil, validationError("callRoomId is required")
	}
	remaining, removed := c.registry.Leave(s, CallRoom(callRoomID))
	if !removed || len(remaining) == 0 {
		return nil, nil
	}
	return []Delivery{{To: remaining, Event: callPresence(EventCallLeft, callRoomID, s)}}, nil
}

// Forward hands an offer, answer or candidate to the session named by to.
// Unknown targets and the sender itself are dropped without error.
func (c *CallCoordinator) Forward(s *Session, kind EventKind, to string, payload []byte) ([]Delivery, error) {
	if to == "" {
		return nil, validationError("to is required")
	}
	target, ok := c.registry.Lookup(to)
	if !ok || target == s {
		c.log.Debug().Str("session_id", s.ID).Str("to", to).Str("event", kind.String()).Msg("signal target not reachable")
		return nil, nil
	}
	ev := &Event{
		Kind:      kind,
		User:      s.Principal,
		SessionID: s.ID,
		Call: &CallEvent{
			FromUser:    s.Principal,
			FromSession: s.ID,
			Payload:     payload,
		},
	}
	return []Delivery{{To: []*Session{target}, Event: ev}}, nil
}

// Cancel tells the channel room that the caller withdrew the invite.
func (c *CallCoordinator) Cancel(s *Session, roomID, callID string) ([]Delivery, error) {
	return c.roomNotice(s, EventCallCancel, roomID, callID)
}

// Decline tells the channel room that a callee rejected the invite.
func (c *CallCoordinator) Decline(s *Session, roomID, callID string) ([]Delivery, error) {
	return c.roomNotice(s, EventCallDeclined, roomID, callID)
}

func (c *CallCoordinator) roomNotice(s *Session, kind EventKind, roomID, callID string) ([]Delivery, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, validationError("roomId is required")
	}
	ev := &Event{
		Kind: kind,
		Room: roomID,
		User: s.Principal,
		Call: &CallEvent{
			CallID:      callID,
			RoomID:      roomID,
			FromUser:    s.Principal,
			FromSession: s.ID,
		},
	}
	return []Delivery{c.registry.Broadcast(ChannelRoom(roomID), ev, s)}, nil
}

func callPresence(kind EventKind, callRoomID string, s *Session) *Event {
	return &Event{
		Kind:      kind,
		Room:      callRoomID,
		User:      s.Principal,
		SessionID: s.ID,
		Call: &CallEvent{
			CallRoomID:  callRoomID,
			FromUser:    s.Principal,
			FromSession: s.ID,
		},
	}
}

func sessionID(s *Session) string {
	if s == nil {
		return ""
	}
	return s.ID
}
