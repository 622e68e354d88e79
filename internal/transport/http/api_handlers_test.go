package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/wirecall-server/internal/config"
	"github.com/vovakirdan/wirecall-server/internal/proto"
)

func doJSON(t *testing.T, env *testEnv, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	env.server.Config.Handler.ServeHTTP(resp, req)
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	env := startTestServer(t, nil)

	resp := doJSON(t, env, http.MethodPost, "/api/auth/register", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var registered AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &registered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if registered.Token == "" || registered.User.Username != "alice" {
		t.Fatalf("unexpected register response: %+v", registered)
	}

	resp = doJSON(t, env, http.MethodPost, "/api/auth/register", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusConflict {
		t.Errorf("expected 409 on duplicate, got %d", resp.Code)
	}

	resp = doJSON(t, env, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"nope-nope"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 on bad password, got %d", resp.Code)
	}

	resp = doJSON(t, env, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAvatarAndMe(t *testing.T) {
	env := startTestServer(t, nil)
	token := env.register(t, "alice")

	resp := doJSON(t, env, http.MethodGet, "/api/auth/me", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = doJSON(t, env, http.MethodPut, "/api/auth/avatar", token, `{"avatar":"/avatars/a.png"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(t, env, http.MethodGet, "/api/auth/me", token, "")
	var me MeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.User.Avatar == nil || *me.User.Avatar != "/avatars/a.png" {
		t.Fatalf("unexpected me: %+v", me)
	}

	resp = doJSON(t, env, http.MethodPost, "/api/auth/avatar", token, `{"avatar":"/avatars/b.png"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for POST avatar, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = doJSON(t, env, http.MethodGet, "/api/auth/me", token, "")
	if err := json.Unmarshal(resp.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.User.Avatar == nil || *me.User.Avatar != "/avatars/b.png" {
		t.Fatalf("POST avatar not applied: %+v", me)
	}
}

func TestPostMessageBroadcastsAndPages(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bob := env.dial(t, ctx, "bob")
	bob.join("c1")
	token := env.register(t, "alice")

	for _, text := range []string{"one", "two", "three"} {
		resp := doJSON(t, env, http.MethodPost, "/api/messages", token, `{"channelId":"c1","text":"`+text+`"}`)
		if resp.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
		}
		var posted PostMessageResponse
		if err := json.Unmarshal(resp.Body.Bytes(), &posted); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !posted.Success || posted.Message.Sender != "alice" || posted.Message.Type != "text" {
			t.Fatalf("unexpected post response: %+v", posted)
		}

		var msg proto.EventMessage
		bob.expect(proto.EventNameMessage, &msg)
		if *msg.Text != text || msg.ID != posted.Message.ID {
			t.Fatalf("broadcast %+v does not match post %+v", msg, posted.Message)
		}
	}

	resp := doJSON(t, env, http.MethodGet, "/api/messages?channelId=c1&page=1&pageSize=2", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var page MessagesResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Messages) != 2 || *page.Messages[0].Text != "two" || *page.Messages[1].Text != "three" {
		t.Fatalf("unexpected page: %+v", page)
	}

	resp = doJSON(t, env, http.MethodGet, "/api/messages?channelId=c1&page=9223372036854775807&pageSize=50", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for far page, got %d", resp.Code)
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Messages) != 0 {
		t.Fatalf("expected empty far page, got %+v", page.Messages)
	}

	resp = doJSON(t, env, http.MethodGet, "/api/messages", token, "")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without channelId, got %d", resp.Code)
	}

	resp = doJSON(t, env, http.MethodPost, "/api/messages", token, `{"text":"nowhere"}`)
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without channelId, got %d", resp.Code)
	}
}

func TestStartCallInvitesRoom(t *testing.T) {
	env := startTestServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bob := env.dial(t, ctx, "bob")
	bob.join("c1")
	token := env.register(t, "alice")

	resp := doJSON(t, env, http.MethodPost, "/api/calls", token, `{"roomId":"c1","callId":"c1:1000"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var started StartCallResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !started.Success || started.CallID != "c1:1000" || started.RoomID != "c1" {
		t.Fatalf("unexpected response: %+v", started)
	}

	var invite proto.EventCallInvite
	bob.expect(proto.EventNameCallInvite, &invite)
	if invite.CallID != "c1:1000" || invite.FromUser != "alice" || invite.From != "" {
		t.Fatalf("unexpected invite: %+v", invite)
	}
}

func TestInviteFallbackMarkerOverREST(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) { cfg.InviteFallbackMessage = true })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bob := env.dial(t, ctx, "bob")
	bob.join("c1")
	token := env.register(t, "alice")

	resp := doJSON(t, env, http.MethodPost, "/api/calls", token, `{"channelId":"c1"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	bob.expect(proto.EventNameCallInvite, nil)
	var marker proto.EventMessage
	bob.expect(proto.EventNameMessage, &marker)
	if marker.Type != "callInvite" || marker.Text != nil || marker.Sender != "alice" {
		t.Fatalf("unexpected marker: %+v", marker)
	}
}
