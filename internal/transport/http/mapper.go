package http

import (
	"encoding/json"
	"fmt"

	"github.com/vovakirdan/wirecall-server/internal/core"
	"github.com/vovakirdan/wirecall-server/internal/proto"
	"github.com/vovakirdan/wirecall-server/internal/store"
)

// inboundToCommand translates a client envelope into a core command. A
// non-nil proto.Error is answered to the sender and the connection stays open.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch proto.Canonical(inbound.Type) {
	case proto.InboundTypeJoin:
		var data proto.RoomData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: data.Room()}, nil
	case proto.InboundTypeLeave:
		var data proto.RoomData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandLeaveRoom, Room: data.Room()}, nil
	case proto.InboundTypeMessage:
		var data proto.MessageData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{
			Kind: core.CommandSendRoomMessage,
			Room: data.Room(),
			Message: core.MessageInput{
				Text:      emptyToNil(data.Text),
				Type:      store.MessageType(data.Type),
				ImagePath: emptyToNil(data.ImagePath),
			},
		}, nil
	case proto.InboundTypeCallInvite:
		var data proto.CallData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		return &core.Command{Kind: core.CommandCallInvite, Room: data.Room(), Call: core.CallInput{CallID: data.CallID}}, nil
	case proto.InboundTypeCallJoin, proto.InboundTypeCallLeave:
		var data proto.CallRoomData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		kind := core.CommandCallJoin
		if proto.Canonical(inbound.Type) == proto.InboundTypeCallLeave {
			kind = core.CommandCallLeave
		}
		return &core.Command{Kind: kind, Call: core.CallInput{CallRoomID: data.Room(), Username: data.Username}}, nil
	case proto.InboundTypeCallOffer:
		return signalCommand(inbound.Data, core.CommandCallOffer, func(d proto.SignalData) json.RawMessage { return d.Offer })
	case proto.InboundTypeCallAnswer:
		return signalCommand(inbound.Data, core.CommandCallAnswer, func(d proto.SignalData) json.RawMessage { return d.Answer })
	case proto.InboundTypeCallIce:
		return signalCommand(inbound.Data, core.CommandCallIce, func(d proto.SignalData) json.RawMessage { return d.Candidate })
	case proto.InboundTypeCallCancel, proto.InboundTypeCallDecline:
		var data proto.CallData
		if perr := decode(inbound.Data, &data); perr != nil {
			return nil, perr
		}
		kind := core.CommandCallCancel
		if proto.Canonical(inbound.Type) == proto.InboundTypeCallDecline {
			kind = core.CommandCallDecline
		}
		return &core.Command{Kind: kind, Room: data.Room(), Call: core.CallInput{CallID: data.CallID, Username: data.Username}}, nil
	default:
		return nil, &proto.Error{Code: core.ErrCodeUnknownEvent, Msg: fmt.Sprintf("unknown event type %q", inbound.Type)}
	}
}

func signalCommand(raw json.RawMessage, kind core.CommandKind, payload func(proto.SignalData) json.RawMessage) (*core.Command, *proto.Error) {
	var data proto.SignalData
	if perr := decode(raw, &data); perr != nil {
		return nil, perr
	}
	return &core.Command{Kind: kind, Call: core.CallInput{To: data.To, Payload: payload(data)}}, nil
}

func decode(raw json.RawMessage, v any) *proto.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &proto.Error{Code: core.ErrCodeBadRequest, Msg: "invalid data payload"}
	}
	return nil
}

// emptyToNil treats an empty string the same as an absent field.
func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventSession:
		return eventOutbound(proto.EventNameSession, proto.EventSession{SessionID: event.SessionID, Username: event.User})
	case core.EventRoomMessage:
		return eventOutbound(proto.EventNameMessage, eventMessage(event.Message))
	case core.EventHistory:
		messages := make([]proto.EventMessage, 0, len(event.Messages))
		for i := range event.Messages {
			messages = append(messages, eventMessage(&event.Messages[i]))
		}
		return eventOutbound(proto.EventNameHistory, proto.EventHistory{RoomID: event.Room, Messages: messages})
	case core.EventUserJoined:
		return eventOutbound(proto.EventNamePresence, proto.EventPresence{Type: proto.PresenceJoin, RoomID: event.Room, Username: event.User})
	case core.EventUserLeft:
		return eventOutbound(proto.EventNamePresence, proto.EventPresence{Type: proto.PresenceLeave, RoomID: event.Room, Username: event.User})
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: core.ErrCodeInternal, Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	}

	call := event.Call
	if call == nil {
		call = &core.CallEvent{}
	}
	switch event.Kind {
	case core.EventCallInvite:
		return eventOutbound(proto.EventNameCallInvite, proto.EventCallInvite{
			RoomID: call.RoomID, CallID: call.CallID, FromUser: call.FromUser, From: call.FromSession,
		})
	case core.EventCallJoined, core.EventCallLeft:
		name := proto.EventNameCallJoined
		if event.Kind == core.EventCallLeft {
			name = proto.EventNameCallLeft
		}
		return eventOutbound(name, proto.EventCallPresence{
			CallRoomID: call.CallRoomID, Username: call.FromUser, SessionID: call.FromSession,
		})
	case core.EventCallOffer:
		return eventOutbound(proto.EventNameCallOffer, proto.EventCallOffer{
			From: call.FromSession, FromUser: call.FromUser, Offer: rawPayload(call.Payload),
		})
	case core.EventCallAnswer:
		return eventOutbound(proto.EventNameCallAnswer, proto.EventCallAnswer{
			From: call.FromSession, FromUser: call.FromUser, Answer: rawPayload(call.Payload),
		})
	case core.EventCallIce:
		return eventOutbound(proto.EventNameCallIce, proto.EventCallIce{
			From: call.FromSession, FromUser: call.FromUser, Candidate: rawPayload(call.Payload),
		})
	case core.EventCallCancel:
		return eventOutbound(proto.EventNameCallCancel, proto.EventCallCancel{
			RoomID: call.RoomID, CallID: call.CallID, FromUser: call.FromUser,
		})
	case core.EventCallDeclined:
		return eventOutbound(proto.EventNameCallDeclined, proto.EventCallDeclined{
			RoomID: call.RoomID, CallID: call.CallID, Username: call.FromUser,
		})
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}

func eventOutbound(name string, data any) proto.Outbound {
	return proto.Outbound{Type: proto.OutboundTypeEvent, Event: name, Data: data}
}

func eventMessage(msg *core.Message) proto.EventMessage {
	if msg == nil {
		return proto.EventMessage{}
	}
	return proto.EventMessage{
		ID:        msg.ID,
		RoomID:    msg.Room,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Type:      string(msg.Type),
		ImagePath: msg.ImagePath,
		Avatar:    msg.Avatar,
		Timestamp: msg.CreatedAt,
	}
}

// rawPayload keeps the client's bytes; a missing payload is sent as null.
func rawPayload(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(b)
}
