package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/wirecall-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	base := flag.String("base", "http://localhost:8080", "server base URL")
	user := flag.String("user", "tester", "username to log in as (registered on first use)")
	password := flag.String("password", "tester-password", "password")
	room := flag.String("room", "general", "channel id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	token, err := obtainToken(ctx, *base, *user, *password)
	if err != nil {
		return err
	}

	wsURL := strings.Replace(*base, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(eventType string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", eventType, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: eventType, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", eventType, err)
		}
		return nil
	}

	if err := send(proto.InboundTypeJoin, proto.RoomData{RoomID: *room}); err != nil {
		return err
	}
	if err := send(proto.InboundTypeMessage, proto.MessageData{RoomData: proto.RoomData{RoomID: *room}, Text: text}); err != nil {
		return err
	}

	for {
		var out struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			return fmt.Errorf("server error %s: %s", out.Error.Code, out.Error.Msg)
		}
		log.Printf("<- %s %s", out.Event, out.Data)

		if out.Event != proto.EventNameMessage {
			continue
		}
		var msg proto.EventMessage
		if err := json.Unmarshal(out.Data, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		if msg.Sender == *user && msg.Text != nil && *msg.Text == *text {
			log.Printf("smoke ok: message %d echoed in %s", msg.ID, msg.RoomID)
			return nil
		}
	}
}

// obtainToken logs in, registering the user first if needed.
func obtainToken(ctx context.Context, base, user, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"username": user, "password": password})

	for _, path := range []string{"/api/auth/login", "/api/auth/register"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+path, bytes.NewReader(body))
		if err != nil {
			return "", err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		var auth struct {
			Token string `json:"token"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&auth)
		resp.Body.Close()
		if resp.StatusCode < 300 && decodeErr == nil && auth.Token != "" {
			return auth.Token, nil
		}
	}
	return "", fmt.Errorf("could not log in or register %q", user)
}
