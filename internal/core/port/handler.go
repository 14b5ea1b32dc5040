package port

import (
	"context"
	"relaybot/internal/core/domain"

	"github.com/spf13/viper"
)

type Handler interface {
	// Name returns the unique registry key of the handler.
	Name() string
	// Init performs deferred setup from configuration. A handler whose Init fails is never dispatched to.
	Init(cfg *viper.Viper) error
	// HandleMessage reacts to a chat message and tells the dispatcher whether later handlers may see it.
	HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result
	// HandlePresence reacts to a join, leave or rename.
	HandlePresence(ctx context.Context, ev domain.PresenceEvent)
	// Help returns the usage text shown by !help <name>.
	Help() string
}

// Relay is implemented by handlers that front another backend and accept tunneled messages.
type Relay interface {
	Name() string
	Deliver(ctx context.Context, msg domain.ChatMessage) error
}

// Bot is the surface handlers use to talk back to the dispatcher.
type Bot interface {
	// SendMessage sends text to the primary room through the throttled gateway.
	SendMessage(ctx context.Context, text, module string)
	// OnMessage runs msg through the built-in commands and the handler chain.
	OnMessage(ctx context.Context, msg domain.ChatMessage)
	// TunnelMessage re-delivers msg to every adapter except the one named module.
	TunnelMessage(ctx context.Context, msg domain.ChatMessage, module string)
	// ResolveNick returns the current nickname of an identity, or "" if it is offline.
	ResolveNick(identity string) string
	// OnlineUsers lists the nicknames currently present in the primary room.
	OnlineUsers() []string
}
