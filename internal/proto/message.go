package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Canonical inbound event names.
const (
	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeMessage     = "message"
	InboundTypeCallInvite  = "call:invite"
	InboundTypeCallJoin    = "call:join"
	InboundTypeCallLeave   = "call:leave"
	InboundTypeCallOffer   = "call:offer"
	InboundTypeCallAnswer  = "call:answer"
	InboundTypeCallIce     = "call:ice"
	InboundTypeCallCancel  = "call:cancel"
	InboundTypeCallDecline = "call:decline"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// Outbound event names.
const (
	EventNameSession      = "session"
	EventNameHistory      = "history"
	EventNameMessage      = "message"
	EventNamePresence     = "presence"
	EventNameCallInvite   = "call:invite"
	EventNameCallJoined   = "call:joined"
	EventNameCallLeft     = "call:left"
	EventNameCallOffer    = "call:offer"
	EventNameCallAnswer   = "call:answer"
	EventNameCallIce      = "call:ice"
	EventNameCallCancel   = "call:cancel"
	EventNameCallDeclined = "call:declined"
)

// Older clients still send these names.
var inboundAliases = map[string]string{
	"message:send":   InboundTypeMessage,
	"call:incoming":  InboundTypeCallInvite,
	"call:notify":    InboundTypeCallInvite,
	"call:start":     InboundTypeCallInvite,
	"call:hangup":    InboundTypeCallLeave,
	"call:candidate": InboundTypeCallIce,
	"call:reject":    InboundTypeCallDecline,
}

// Canonical resolves an inbound type, translating legacy aliases.
func Canonical(inboundType string) string {
	if canonical, ok := inboundAliases[inboundType]; ok {
		return canonical
	}
	return inboundType
}

// RoomData names a channel room. channelId is accepted for roomId.
type RoomData struct {
	RoomID    string `json:"roomId"`
	ChannelID string `json:"channelId,omitempty"`
}

// Room returns the room id, falling back to channelId.
func (d RoomData) Room() string {
	if d.RoomID != "" {
		return d.RoomID
	}
	return d.ChannelID
}

// MessageData is a chat message from the client.
type MessageData struct {
	RoomData
	Text      *string `json:"text,omitempty"`
	Type      string  `json:"type,omitempty"`
	ImagePath *string `json:"imagePath,omitempty"`
}

// CallData addresses a call announced in a channel room.
type CallData struct {
	RoomData
	CallID   string `json:"callId,omitempty"`
	Username string `json:"username,omitempty"`
}

// CallRoomData names a call room. roomId is accepted for callRoomId.
type CallRoomData struct {
	CallRoomID string `json:"callRoomId"`
	RoomID     string `json:"roomId,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Room returns the call room id, falling back to roomId.
func (d CallRoomData) Room() string {
	if d.CallRoomID != "" {
		return d.CallRoomID
	}
	return d.RoomID
}

// SignalData carries one point-to-point signaling payload.
type SignalData struct {
	To        string          `json:"to"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventSession tells the client its own session handle.
type EventSession struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username"`
}

// EventMessage is a chat message enriched for display. Absent optional fields
// are sent as null.
type EventMessage struct {
	ID        int64     `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      *string   `json:"text"`
	Type      string    `json:"type"`
	ImagePath *string   `json:"imagePath"`
	Avatar    *string   `json:"avatar"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHistory delivers recent room messages, oldest first.
type EventHistory struct {
	RoomID   string         `json:"roomId"`
	Messages []EventMessage `json:"messages"`
}

// EventPresence notifies that a user joined or left a room.
type EventPresence struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// Presence types.
const (
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

// EventCallInvite announces a call. From is the caller's session handle and
// is empty for invites started over REST.
type EventCallInvite struct {
	RoomID   string `json:"roomId"`
	CallID   string `json:"callId"`
	FromUser string `json:"fromUser"`
	From     string `json:"from,omitempty"`
}

// EventCallPresence is sent to call room members when someone joins or leaves.
type EventCallPresence struct {
	CallRoomID string `json:"callRoomId"`
	Username   string `json:"username"`
	SessionID  string `json:"sessionId"`
}

// EventCallOffer forwards an SDP offer.
type EventCallOffer struct {
	From     string          `json:"from"`
	FromUser string          `json:"fromUser"`
	Offer    json.RawMessage `json:"offer"`
}

// EventCallAnswer forwards an SDP answer.
type EventCallAnswer struct {
	From     string          `json:"from"`
	FromUser string          `json:"fromUser"`
	Answer   json.RawMessage `json:"answer"`
}

// EventCallIce forwards an ICE candidate.
type EventCallIce struct {
	From      string          `json:"from"`
	FromUser  string          `json:"fromUser"`
	Candidate json.RawMessage `json:"candidate"`
}

// EventCallCancel tells room members the caller withdrew the invite.
type EventCallCancel struct {
	RoomID   string `json:"roomId"`
	CallID   string `json:"callId"`
	FromUser string `json:"fromUser"`
}

// EventCallDeclined tells room members a callee rejected the invite.
type EventCallDeclined struct {
	RoomID   string `json:"roomId"`
	CallID   string `json:"callId"`
	Username string `json:"username"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
