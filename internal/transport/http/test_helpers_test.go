package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirecall-server/internal/auth"
	"github.com/vovakirdan/wirecall-server/internal/config"
	"github.com/vovakirdan/wirecall-server/internal/core"
	"github.com/vovakirdan/wirecall-server/internal/proto"
	"github.com/vovakirdan/wirecall-server/internal/store/sqlite"
)

type testEnv struct {
	server      *httptest.Server
	hub         *core.Hub
	authService *auth.Service
	cfg         config.Config
}

func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.ReadHeaderTimeout = time.Second
	cfg.ShutdownTimeout = time.Second
	cfg.JWTSecret = "test-secret"
	cfg.InviteFallbackMessage = false
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret: []byte(cfg.JWTSecret),
		TTL:    time.Hour,
	})

	disabledLogger := zerolog.Nop()
	registry := core.NewRegistry()
	relay := core.NewRelay(st, st, registry, &disabledLogger)
	var markers core.InviteMarker
	if cfg.InviteFallbackMessage {
		markers = relay
	}
	calls := core.NewCallCoordinator(registry, markers, &disabledLogger)
	hub := core.NewHub(registry, relay, calls, core.Options{
		HistoryLimit:  cfg.HistoryLimit,
		SessionBuffer: cfg.SessionBuffer,
	}, &disabledLogger)
	t.Cleanup(hub.Shutdown)

	server := NewServer(hub, authService, st, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, hub: hub, authService: authService, cfg: cfg}
}

func (e *testEnv) register(t *testing.T, username string) string {
	t.Helper()
	token, _, err := e.authService.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return token
}

func (e *testEnv) wsURL(token string) string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/ws?token=" + token
}

type wsClient struct {
	t         *testing.T
	ctx       context.Context
	conn      *websocket.Conn
	sessionID string
}

// dial opens a websocket for username and consumes the session event.
func (e *testEnv) dial(t *testing.T, ctx context.Context, username string) *wsClient {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(e.register(t, username)), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", username, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })

	c := &wsClient{t: t, ctx: ctx, conn: conn}
	var session proto.EventSession
	c.expect(proto.EventNameSession, &session)
	if session.Username != username || session.SessionID == "" {
		t.Fatalf("unexpected session event: %+v", session)
	}
	c.sessionID = session.SessionID
	return c
}

func (c *wsClient) send(eventType string, data any) {
	c.t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		c.t.Fatalf("marshal %s: %v", eventType, err)
	}
	if err := wsjson.Write(c.ctx, c.conn, proto.Inbound{Type: eventType, Data: payload}); err != nil {
		c.t.Fatalf("send %s: %v", eventType, err)
	}
}

type rawOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// expect reads frames until an event named name arrives and decodes its data into v.
func (c *wsClient) expect(name string, v any) rawOutbound {
	c.t.Helper()
	for {
		out := c.read()
		if out.Type != proto.OutboundTypeEvent || out.Event != name {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(out.Data, v); err != nil {
				c.t.Fatalf("decode %s: %v", name, err)
			}
		}
		return out
	}
}

// expectError reads frames until an error frame arrives.
func (c *wsClient) expectError() *proto.Error {
	c.t.Helper()
	for {
		out := c.read()
		if out.Type == proto.OutboundTypeError {
			return out.Error
		}
	}
}

func (c *wsClient) read() rawOutbound {
	c.t.Helper()
	var out rawOutbound
	if err := wsjson.Read(c.ctx, c.conn, &out); err != nil {
		c.t.Fatalf("read outbound: %v", err)
	}
	return out
}

// expectNothing asserts no event named name arrives within a short window.
// The expired read closes the connection, so it must be the last call on c.
func (c *wsClient) expectNothing(name string) {
	c.t.Helper()
	ctx, cancel := context.WithTimeout(c.ctx, 200*time.Millisecond)
	defer cancel()
	for {
		var out rawOutbound
		if err := wsjson.Read(ctx, c.conn, &out); err != nil {
			return
		}
		if out.Event == name {
			c.t.Fatalf("unexpected %s event: %s", name, out.Data)
		}
	}
}

func (c *wsClient) join(room string) {
	c.t.Helper()
	c.send(proto.InboundTypeJoin, proto.RoomData{RoomID: room})
	c.expect(proto.EventNameHistory, nil)
}
