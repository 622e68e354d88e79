package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventSession tells a freshly connected client its own handle.
	EventSession EventKind = iota
	// EventHistory delivers recent messages to a client joining a room.
	EventHistory
	// EventRoomMessage notifies room members about a chat message.
	EventRoomMessage
	// EventUserJoined notifies room members about a user joining.
	EventUserJoined
	// EventUserLeft notifies room members about a user leaving.
	EventUserLeft
	// EventError notifies a client about a failed request.
	EventError

	EventCallInvite
	EventCallJoined
	EventCallLeft
	EventCallOffer
	EventCallAnswer
	EventCallIce
	EventCallCancel
	EventCallDeclined
)

func (k EventKind) String() string {
	switch k {
	case EventSession:
		return "session"
	case EventHistory:
		return "history"
	case EventRoomMessage:
		return "message"
	case EventUserJoined:
		return "presence:join"
	case EventUserLeft:
		return "presence:leave"
	case EventError:
		return "error"
	case EventCallInvite:
		return "call:invite"
	case EventCallJoined:
		return "call:joined"
	case EventCallLeft:
		return "call:left"
	case EventCallOffer:
		return "call:offer"
	case EventCallAnswer:
		return "call:answer"
	case EventCallIce:
		return "call:ice"
	case EventCallCancel:
		return "call:cancel"
	case EventCallDeclined:
		return "call:declined"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Room      string
	User      string
	SessionID string
	Message   *Message
	Messages  []Message // For EventHistory
	Error     *CoreError
	Call      *CallEvent // non-nil for call events
}

// CallEvent holds data specific to call events.
type CallEvent struct {
	CallID      string
	RoomID      string
	CallRoomID  string
	FromUser    string
	FromSession string
	Payload     []byte // forwarded verbatim for offer/answer/ice
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
