package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/wirecall-server/internal/store"
)

func mustEvent(t *testing.T, s *Session, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-s.Events():
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// mustNoEvent fails if s receives an event of kind within a short window.
func mustNoEvent(t *testing.T, s *Session, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-s.Events():
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event %v: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func drain(s *Session) {
	for {
		select {
		case <-s.Events():
		default:
			return
		}
	}
}

var errStoreDown = errors.New("store down")

// memStore is an in-memory MessageStore and AvatarStore with failure switches.
type memStore struct {
	mu         sync.Mutex
	messages   []*store.Message
	avatars    map[string]*string
	failInsert bool
	failQuery  bool
	failAvatar bool
	lookups    int
}

func newMemStore() *memStore {
	return &memStore{avatars: make(map[string]*string)}
}

func (m *memStore) InsertMessage(_ context.Context, msg *store.Message) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsert {
		return 0, errStoreDown
	}
	msg.ID = int64(len(m.messages) + 1)
	cp := *msg
	m.messages = append(m.messages, &cp)
	return msg.ID, nil
}

func (m *memStore) newestFirst(channelID string) []*store.Message {
	var out []*store.Message
	for _, msg := range m.messages {
		if msg.ChannelID == channelID {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) QueryRecent(_ context.Context, channelID string, limit int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failQuery {
		return nil, errStoreDown
	}
	out := m.newestFirst(channelID)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) QueryPage(_ context.Context, channelID string, page, pageSize int) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failQuery {
		return nil, errStoreDown
	}
	out := m.newestFirst(channelID)
	start := (page - 1) * pageSize
	if start >= len(out) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(out) {
		end = len(out)
	}
	return out[start:end], nil
}

func (m *memStore) LookupAvatar(_ context.Context, username string) (*string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.failAvatar {
		return nil, errStoreDown
	}
	return m.avatars[username], nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

func strPtr(s string) *string { return &s }

type testHub struct {
	*Hub
	store *memStore
}

func newTestHub(t *testing.T, fallback bool) *testHub {
	t.Helper()
	st := newMemStore()
	registry := NewRegistry()
	relay := NewRelay(st, st, registry, nil)
	var markers InviteMarker
	if fallback {
		markers = relay
	}
	calls := NewCallCoordinator(registry, markers, nil)
	hub := NewHub(registry, relay, calls, Options{HistoryLimit: 20, SessionBuffer: 64}, nil)
	t.Cleanup(hub.Shutdown)
	return &testHub{Hub: hub, store: st}
}

// connect registers a session for principal and runs its command loop.
func (h *testHub) connect(t *testing.T, ctx context.Context, principal string) *Session {
	t.Helper()
	s, err := h.Connect(principal)
	if err != nil {
		t.Fatalf("connect %s: %v", principal, err)
	}
	mustEvent(t, s, EventSession)
	go h.Serve(ctx, s)
	return s
}

func (h *testHub) join(t *testing.T, s *Session, room string) {
	t.Helper()
	s.Submit(&Command{Kind: CommandJoinRoom, Room: room})
	mustEvent(t, s, EventHistory)
}
