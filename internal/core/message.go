package core

import (
	"time"

	"github.com/vovakirdan/wirecall-server/internal/store"
)

// Message is the domain model for a chat message, enriched for display.
type Message struct {
	ID        int64
	Room      string
	Sender    string
	Text      *string
	Type      store.MessageType
	ImagePath *string
	Avatar    *string
	CreatedAt time.Time
}

func messageFromStore(m *store.Message) Message {
	return Message{
		ID:        m.ID,
		Room:      m.ChannelID,
		Sender:    m.Sender,
		Text:      m.Text,
		Type:      m.Type,
		ImagePath: m.ImagePath,
		CreatedAt: m.CreatedAt,
	}
}
