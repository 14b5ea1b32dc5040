package port

import (
	"context"
	"relaybot/internal/core/domain"
)

// Backend is the primary chat connection. Outbound traffic reaches it only through the gateway.
type Backend interface {
	Name() string
	Connect(ctx context.Context, identity, credential string) error
	JoinRoom(room string) error
	Disconnect() error
	Send(text string) error
}

// EventSink receives normalized events from adapters.
type EventSink interface {
	OnMessage(ctx context.Context, msg domain.ChatMessage)
	OnPresence(ctx context.Context, ev domain.PresenceEvent)
}

// Sender is the single outbound funnel to the primary backend.
type Sender interface {
	Send(text string) error
}
