package http

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vovakirdan/wirecall-server/internal/core"
	"github.com/vovakirdan/wirecall-server/internal/proto"
	"github.com/vovakirdan/wirecall-server/internal/store"
)

func TestInboundAliases(t *testing.T) {
	tests := []struct {
		inbound string
		data    string
		kind    core.CommandKind
	}{
		{"message", `{"roomId":"c1","text":"hi"}`, core.CommandSendRoomMessage},
		{"message:send", `{"channelId":"c1","text":"hi"}`, core.CommandSendRoomMessage},
		{"call:invite", `{"roomId":"c1"}`, core.CommandCallInvite},
		{"call:incoming", `{"roomId":"c1"}`, core.CommandCallInvite},
		{"call:notify", `{"roomId":"c1"}`, core.CommandCallInvite},
		{"call:start", `{"roomId":"c1"}`, core.CommandCallInvite},
		{"call:hangup", `{"callRoomId":"x"}`, core.CommandCallLeave},
		{"call:candidate", `{"to":"s","candidate":{}}`, core.CommandCallIce},
		{"call:reject", `{"roomId":"c1","callId":"c1:1"}`, core.CommandCallDecline},
		{"call:cancel", `{"roomId":"c1"}`, core.CommandCallCancel},
	}
	for _, tt := range tests {
		t.Run(tt.inbound, func(t *testing.T) {
			cmd, perr := inboundToCommand(proto.Inbound{Type: tt.inbound, Data: json.RawMessage(tt.data)})
			if perr != nil {
				t.Fatalf("unexpected error: %+v", perr)
			}
			if cmd.Kind != tt.kind {
				t.Fatalf("got kind %v, want %v", cmd.Kind, tt.kind)
			}
		})
	}
}

func TestInboundFieldFallbacks(t *testing.T) {
	cmd, _ := inboundToCommand(proto.Inbound{Type: "join", Data: json.RawMessage(`{"channelId":"c9"}`)})
	if cmd.Room != "c9" {
		t.Fatalf("channelId not used as room: %+v", cmd)
	}

	cmd, _ = inboundToCommand(proto.Inbound{Type: "call:join", Data: json.RawMessage(`{"roomId":"call:c1:1","username":"bob"}`)})
	if cmd.Call.CallRoomID != "call:c1:1" || cmd.Call.Username != "bob" {
		t.Fatalf("roomId not used as call room: %+v", cmd.Call)
	}

	cmd, _ = inboundToCommand(proto.Inbound{Type: "message", Data: json.RawMessage(`{"roomId":"c1","text":"","imagePath":"/i.png","type":"image"}`)})
	if cmd.Message.Text != nil || cmd.Message.ImagePath == nil || cmd.Message.Type != store.MessageTypeImage {
		t.Fatalf("unexpected message input: %+v", cmd.Message)
	}
}

func TestInboundSignalPayloadIsVerbatim(t *testing.T) {
	raw := `{"to":"abc","offer":{"type":"offer","sdp":"v=0\r\n"}}`
	cmd, perr := inboundToCommand(proto.Inbound{Type: "call:offer", Data: json.RawMessage(raw)})
	if perr != nil {
		t.Fatalf("unexpected error: %+v", perr)
	}
	if cmd.Call.To != "abc" || string(cmd.Call.Payload) != `{"type":"offer","sdp":"v=0\r\n"}` {
		t.Fatalf("unexpected signal command: %+v", cmd.Call)
	}
}

func TestInboundErrors(t *testing.T) {
	if _, perr := inboundToCommand(proto.Inbound{Type: "nope"}); perr == nil || perr.Code != core.ErrCodeUnknownEvent {
		t.Fatalf("expected unknown_event, got %+v", perr)
	}
	if _, perr := inboundToCommand(proto.Inbound{Type: "join", Data: json.RawMessage(`[1,2]`)}); perr == nil || perr.Code != core.ErrCodeBadRequest {
		t.Fatalf("expected bad_request, got %+v", perr)
	}
}

func TestOutboundMessageKeepsNulls(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind: core.EventRoomMessage,
		Message: &core.Message{
			ID: 7, Room: "c1", Sender: "alice", Type: store.MessageTypeCallInvite,
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	})
	b, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Event string                     `json:"event"`
		Data  map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Event != "message" {
		t.Fatalf("unexpected event %q", decoded.Event)
	}
	for _, field := range []string{"text", "imagePath", "avatar"} {
		if string(decoded.Data[field]) != "null" {
			t.Fatalf("field %s = %s, want null", field, decoded.Data[field])
		}
	}
}

func TestOutboundCallEvents(t *testing.T) {
	out := outboundFromEvent(&core.Event{
		Kind: core.EventCallIce,
		Call: &core.CallEvent{FromUser: "bob", FromSession: "s-bob", Payload: []byte(`{"candidate":"x"}`)},
	})
	ice, ok := out.Data.(proto.EventCallIce)
	if !ok || out.Event != "call:ice" || ice.From != "s-bob" || string(ice.Candidate) != `{"candidate":"x"}` {
		t.Fatalf("unexpected ice outbound: %+v", out)
	}

	out = outboundFromEvent(&core.Event{
		Kind: core.EventCallDeclined,
		Call: &core.CallEvent{RoomID: "c1", CallID: "c1:1", FromUser: "bob"},
	})
	declined, ok := out.Data.(proto.EventCallDeclined)
	if !ok || out.Event != "call:declined" || declined.Username != "bob" {
		t.Fatalf("unexpected decline outbound: %+v", out)
	}

	out = outboundFromEvent(&core.Event{Kind: core.EventError, Error: &core.CoreError{Code: core.ErrCodeBadRequest, Message: "roomId is required"}})
	if out.Type != "error" || out.Error.Code != "bad_request" {
		t.Fatalf("unexpected error outbound: %+v", out)
	}
}
