package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

const defaultHistoryLimit = 20

// Options tunes hub behaviour.
type Options struct {
	HistoryLimit  int
	SessionBuffer int
}

// Hub dispatches session commands to the registry, relay and call
// coordinator and enqueues the resulting deliveries.
type Hub struct {
	registry *Registry
	relay    *Relay
	calls    *CallCoordinator
	opts     Options
	log      *zerolog.Logger
}

// NewHub creates a new hub instance.
func NewHub(registry *Registry, relay *Relay, calls *CallCoordinator, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if opts.SessionBuffer <= 0 {
		opts.SessionBuffer = defaultSessionBuffer
	}
	return &Hub{
		registry: registry,
		relay:    relay,
		calls:    calls,
		opts:     opts,
		log:      logger,
	}
}

// Registry exposes the room registry backing the hub.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect registers a session for an already verified principal and queues
// the session event carrying its handle.
func (h *Hub) Connect(principal string) (*Session, error) {
	if principal == "" {
		return nil, ErrUnauthorized
	}
	s := NewSession(principal, h.opts.SessionBuffer)
	if err := h.registry.Register(s); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	s.deliver(&Event{Kind: EventSession, User: principal, SessionID: s.ID})
	h.log.Info().Str("session_id", s.ID).Str("username", principal).Msg("session connected")
	return s, nil
}

// Serve processes the session's commands one at a time until ctx is done or
// the session closes, then disconnects the session.
func (h *Hub) Serve(ctx context.Context, s *Session) {
	defer h.Disconnect(s)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.Done():
			return
		case cmd := <-s.Commands:
			if cmd == nil {
				continue
			}
			h.Dispatch(h.Handle(ctx, s, cmd))
		}
	}
}

// Handle runs one command and returns the events it produced. A panic while
// handling is converted into an internal error for the sender.
func (h *Hub) Handle(ctx context.Context, s *Session, cmd *Command) (deliveries []Delivery) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().
				Str("session_id", s.ID).
				Str("event", cmd.Kind.String()).
				Interface("panic", r).
				Msg("command handler panicked")
			deliveries = []Delivery{errorTo(s, coreError(ErrCodeInternal, "internal error", nil))}
		}
	}()

	if s.Principal == "" {
		return []Delivery{errorTo(s, coreError(ErrCodeUnauthorized, "unauthorized", ErrUnauthorized))}
	}

	var err error
	switch cmd.Kind {
	case CommandJoinRoom:
		deliveries, err = h.joinRoom(ctx, s, cmd.Room)
	case CommandLeaveRoom:
		deliveries, err = h.leaveRoom(s, cmd.Room)
	case CommandSendRoomMessage:
		var d Delivery
		_, d, err = h.relay.Post(ctx, s.Principal, cmd.Room, cmd.Message)
		if err == nil {
			deliveries = []Delivery{d}
		}
	case CommandCallInvite:
		_, deliveries, err = h.calls.Invite(ctx, s, s.Principal, cmd.Room, cmd.Call.CallID)
	case CommandCallJoin:
		if cmd.Call.Username != "" && cmd.Call.Username != s.Principal {
			h.log.Debug().Str("session_id", s.ID).Str("username", s.Principal).
				Str("claimed", cmd.Call.Username).Msg("ignoring client supplied username")
		}
		deliveries, err = h.calls.JoinCallRoom(s, cmd.Call.CallRoomID)
	case CommandCallLeave:
		deliveries, err = h.calls.LeaveCallRoom(s, cmd.Call.CallRoomID)
	case CommandCallOffer:
		deliveries, err = h.calls.Forward(s, EventCallOffer, cmd.Call.To, cmd.Call.Payload)
	case CommandCallAnswer:
		deliveries, err = h.calls.Forward(s, EventCallAnswer, cmd.Call.To, cmd.Call.Payload)
	case CommandCallIce:
		deliveries, err = h.calls.Forward(s, EventCallIce, cmd.Call.To, cmd.Call.Payload)
	case CommandCallCancel:
		deliveries, err = h.calls.Cancel(s, cmd.Room, cmd.Call.CallID)
	case CommandCallDecline:
		deliveries, err = h.calls.Decline(s, cmd.Room, cmd.Call.CallID)
	default:
		err = coreError(ErrCodeUnknownEvent, "unknown command", ErrValidation)
	}

	if err != nil {
		ce := AsCoreError(err)
		h.log.Debug().Err(err).Str("session_id", s.ID).Str("event", cmd.Kind.String()).
			Str("code", ce.Code).Msg("command rejected")
		return append(deliveries, errorTo(s, ce))
	}
	return deliveries
}

func (h *Hub) joinRoom(ctx context.Context, s *Session, roomID string) ([]Delivery, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, validationError("roomId is required")
	}
	others, added := h.registry.Join(s, ChannelRoom(roomID))
	if !added {
		return nil, nil
	}
	h.log.Debug().Str("session_id", s.ID).Str("username", s.Principal).Str("room", roomID).Msg("joined room")

	var deliveries []Delivery
	if len(others) > 0 {
		deliveries = append(deliveries, Delivery{
			To:    others,
			Event: &Event{Kind: EventUserJoined, Room: roomID, User: s.Principal, SessionID: s.ID},
		})
	}

	history, err := h.relay.History(ctx, roomID, h.opts.HistoryLimit)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("load history")
		return deliveries, coreError(ErrCodePersistenceFailed, "failed to load history", err)
	}
	deliveries = append(deliveries, Delivery{
		To:    []*Session{s},
		Event: &Event{Kind: EventHistory, Room: roomID, Messages: history},
	})
	return deliveries, nil
}

func (h *Hub) leaveRoom(s *Session, roomID string) ([]Delivery, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, validationError("roomId is required")
	}
	remaining, removed := h.registry.Leave(s, ChannelRoom(roomID))
	if !removed || len(remaining) == 0 {
		return nil, nil
	}
	return []Delivery{{
		To:    remaining,
		Event: &Event{Kind: EventUserLeft, Room: roomID, User: s.Principal, SessionID: s.ID},
	}}, nil
}

// Dispatch enqueues deliveries. A recipient whose queue is full misses the
// event; the others still receive it. Ordering per sender therefore holds
// only among the events a recipient actually receives: a dropped m1 can be
// followed by a delivered m2.
func (h *Hub) Dispatch(deliveries []Delivery) {
	for _, d := range deliveries {
		if d.Event == nil {
			continue
		}
		for _, target := range d.To {
			if target.deliver(d.Event) || target.Closed() {
				continue
			}
			h.log.Warn().
				Str("session_id", target.ID).
				Str("username", target.Principal).
				Str("event", d.Event.Kind.String()).
				Msg("outbound queue full, dropping event")
		}
	}
}

// Disconnect removes s from every room, notifies the remaining members and
// closes the session. Only the first call has any effect.
func (h *Hub) Disconnect(s *Session) {
	s.disconnectOnce.Do(func() {
		departures := h.registry.Disconnect(s)
		deliveries := make([]Delivery, 0, len(departures))
		for _, dep := range departures {
			if len(dep.Remaining) == 0 {
				continue
			}
			var ev *Event
			if dep.Room.Kind == RoomCall {
				ev = callPresence(EventCallLeft, dep.Room.ID, s)
			} else {
				ev = &Event{Kind: EventUserLeft, Room: dep.Room.ID, User: s.Principal, SessionID: s.ID}
			}
			deliveries = append(deliveries, Delivery{To: dep.Remaining, Event: ev})
		}
		h.Dispatch(deliveries)
		s.Close()
		h.log.Info().Str("session_id", s.ID).Str("username", s.Principal).
			Int("rooms", len(departures)).Msg("session disconnected")
	})
}

// PostMessage is the REST entry into the message relay.
func (h *Hub) PostMessage(ctx context.Context, principal, roomID string, in MessageInput) (*Message, error) {
	msg, d, err := h.relay.Post(ctx, principal, roomID, in)
	if err != nil {
		return nil, err
	}
	h.Dispatch([]Delivery{d})
	return msg, nil
}

// StartCall is the REST entry into call invites. There is no sender session,
// so every member of the room is notified.
func (h *Hub) StartCall(ctx context.Context, principal, roomID, callID string) (string, error) {
	callID, deliveries, err := h.calls.Invite(ctx, nil, principal, roomID, callID)
	if err != nil {
		return "", err
	}
	h.Dispatch(deliveries)
	return callID, nil
}

// Messages returns one page of a room's history, oldest first.
func (h *Hub) Messages(ctx context.Context, roomID string, page, pageSize int) ([]Message, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return nil, validationError("channelId is required")
	}
	return h.relay.Page(ctx, roomID, page, pageSize)
}

// Shutdown closes every session.
func (h *Hub) Shutdown() {
	h.registry.Close()
}

func errorTo(s *Session, ce *CoreError) Delivery {
	return Delivery{To: []*Session{s}, Event: errorEvent(ce)}
}
