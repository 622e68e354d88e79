package core

import (
	"context"
	"fmt"
	"testing"
)

func benchmarkRoomBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := newMemStore()
	registry := NewRegistry()
	relay := NewRelay(st, st, registry, nil)
	hub := NewHub(registry, relay, NewCallCoordinator(registry, nil, nil), Options{SessionBuffer: 256}, nil)
	defer hub.Shutdown()

	sender, _ := hub.Connect("sender")
	registry.Join(sender, ChannelRoom("bench"))
	go func() {
		for {
			select {
			case <-sender.Events():
			case <-ctx.Done():
				return
			}
		}
	}()

	sessions := make([]*Session, 0, recipients)
	for i := range recipients {
		s, _ := hub.Connect(fmt.Sprintf("client%d", i))
		<-s.Events()
		registry.Join(s, ChannelRoom("bench"))
		sessions = append(sessions, s)
	}

	// Drain events for all but the first recipient to avoid channel backpressure.
	target := sessions[0]
	for _, s := range sessions[1:] {
		go func(s *Session) {
			for {
				select {
				case <-s.Events():
				case <-ctx.Done():
					return
				}
			}
		}(s)
	}
	go hub.Serve(ctx, sender)

	text := "payload"
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Submit(&Command{
			Kind:    CommandSendRoomMessage,
			Room:    "bench",
			Message: MessageInput{Text: &text},
		})
		<-target.Events()
	}
}

func BenchmarkRoomBroadcast_10(b *testing.B)  { benchmarkRoomBroadcast(b, 10) }
func BenchmarkRoomBroadcast_100(b *testing.B) { benchmarkRoomBroadcast(b, 100) }
func BenchmarkRoomBroadcast_500(b *testing.B) { benchmarkRoomBroadcast(b, 500) }
