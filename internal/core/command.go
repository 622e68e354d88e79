package core

import "github.com/vovakirdan/wirecall-server/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the session to a channel room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the session from a channel room.
	CommandLeaveRoom
	// CommandSendRoomMessage persists a chat message and delivers it to the room.
	CommandSendRoomMessage
	// CommandCallInvite announces a call to the other members of a channel room.
	CommandCallInvite
	// CommandCallJoin subscribes the session to a call room.
	CommandCallJoin
	// CommandCallLeave unsubscribes the session from a call room.
	CommandCallLeave
	// CommandCallOffer forwards an SDP offer to one session.
	CommandCallOffer
	// CommandCallAnswer forwards an SDP answer to one session.
	CommandCallAnswer
	// CommandCallIce forwards an ICE candidate to one session.
	CommandCallIce
	// CommandCallCancel withdraws an invite.
	CommandCallCancel
	// CommandCallDecline rejects an invite.
	CommandCallDecline
)

func (k CommandKind) String() string {
	switch k {
	case CommandJoinRoom:
		return "join"
	case CommandLeaveRoom:
		return "leave"
	case CommandSendRoomMessage:
		return "message"
	case CommandCallInvite:
		return "call:invite"
	case CommandCallJoin:
		return "call:join"
	case CommandCallLeave:
		return "call:leave"
	case CommandCallOffer:
		return "call:offer"
	case CommandCallAnswer:
		return "call:answer"
	case CommandCallIce:
		return "call:ice"
	case CommandCallCancel:
		return "call:cancel"
	case CommandCallDecline:
		return "call:decline"
	default:
		return "unknown"
	}
}

// MessageInput is the client-supplied part of a chat message.
type MessageInput struct {
	Text      *string
	Type      store.MessageType
	ImagePath *string
}

// CallInput carries call signaling arguments.
type CallInput struct {
	CallID     string
	CallRoomID string
	To         string
	Payload    []byte
	Username   string
}

// Command represents an action requested by a client.
type Command struct {
	Kind    CommandKind
	Room    string
	Message MessageInput
	Call    CallInput
}
