package service

import (
	"context"
	"fmt"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/domain/handler"
	"relaybot/internal/core/port"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Loader produces a fresh, validated configuration for !reload.
type Loader func() (*viper.Viper, error)

type DispatcherParams struct {
	Backend  port.Backend
	Gateway  port.Sender
	Presence *PresenceDirectory
	Config   *viper.Viper
	Loader   Loader
	// Stop is called by !die once the backend has started disconnecting.
	Stop  func()
	Kinds []handler.Kind
}

// Dispatcher is the single entry point for normalized events. It answers the
// built-in commands, keeps the presence directory current and runs the
// handler chain.
type Dispatcher struct {
	backend  port.Backend
	gateway  port.Sender
	presence *PresenceDirectory
	registry *handler.Registry
	loader   Loader
	stop     func()
	started  time.Time

	mu   sync.RWMutex
	auth Authorizer
	cfg  *viper.Viper

	l *zerolog.Logger
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	logger := log.With().Str("component", "dispatcher").Logger()

	auth, err := NewAuthorizer(p.Config)
	if err != nil {
		return nil, err
	}

	stop := p.Stop
	if stop == nil {
		stop = func() {}
	}

	d := &Dispatcher{
		backend:  p.Backend,
		gateway:  p.Gateway,
		presence: p.Presence,
		loader:   p.Loader,
		stop:     stop,
		started:  time.Now(),
		auth:     auth,
		cfg:      p.Config,
		l:        &logger,
	}
	d.registry = handler.NewRegistry(d, p.Config, p.Kinds...)

	return d, nil
}

// Start registers and enables the handlers listed in the configuration.
func (d *Dispatcher) Start() {
	d.registry.RegisterAll()
	d.registry.EnableHandlers(d.cfg.GetStringSlice("bot.whitelist"), d.cfg.GetStringSlice("bot.blacklist"))
}

func (d *Dispatcher) Registry() *handler.Registry {
	return d.registry
}

func (d *Dispatcher) OnMessage(ctx context.Context, msg domain.ChatMessage) {
	if msg.ID == "" {
		msg.ID = domain.NewMessageID()
	}
	if msg.Identity == "" {
		msg.Identity = d.presence.Resolve(msg.Nick)
	}

	d.mu.RLock()
	msg.IsAdmin = msg.IsAdmin || d.auth.IsAdmin(msg.Identity)
	d.mu.RUnlock()

	l := d.l.With().
		Str("messageId", msg.ID).
		Str("nick", msg.Nick).
		Str("identity", msg.Identity).
		Bool("admin", msg.IsAdmin).
		Logger()

	l.Debug().Str("body", msg.Body).Msg("handling message")

	if d.handleBuiltin(ctx, msg) {
		return
	}

	for _, h := range d.registry.Enabled() {
		if h.HandleMessage(ctx, msg) == domain.Stop {
			l.Trace().Str("handler", h.Name()).Msg("handler stopped processing")
			return
		}
	}
}

func (d *Dispatcher) OnPresence(ctx context.Context, ev domain.PresenceEvent) {
	if ev.Identity == "" {
		ev.Identity = d.presence.Resolve(ev.Nick)
	}

	isNew := d.presence.Update(ev.Nick, ev.Identity, ev.Online, ev.NewNick)
	d.l.Debug().
		Str("nick", ev.Nick).
		Str("identity", ev.Identity).
		Bool("online", ev.Online).
		Str("newNick", ev.NewNick).
		Bool("new", isNew).
		Msg("presence update")

	for _, h := range d.registry.Enabled() {
		h.HandlePresence(ctx, ev)
	}
}

// TunnelMessage hands msg to every adapter except the one it came from.
func (d *Dispatcher) TunnelMessage(ctx context.Context, msg domain.ChatMessage, module string) {
	msg.Module = module
	if msg.ID == "" {
		msg.ID = domain.NewMessageID()
	}

	if d.backend != nil && d.backend.Name() != module {
		d.SendMessage(ctx, formatTunneled(msg), module)
	}

	for _, relay := range d.registry.Relays() {
		if relay.Name() == module {
			continue
		}
		if err := relay.Deliver(ctx, msg); err != nil {
			d.l.Warn().Err(err).Str("relay", relay.Name()).Str("messageId", msg.ID).Msg("failed to tunnel message")
		}
	}
}

func (d *Dispatcher) SendMessage(_ context.Context, text, module string) {
	if err := d.gateway.Send(text); err != nil {
		d.l.Error().Err(err).Str("module", module).Msg("failed to send message")
	}
}

func (d *Dispatcher) ResolveNick(identity string) string {
	return d.presence.ResolveNick(identity)
}

func (d *Dispatcher) OnlineUsers() []string {
	return d.presence.Nicks()
}

func (d *Dispatcher) handleBuiltin(ctx context.Context, msg domain.ChatMessage) bool {
	switch domain.ParseCommand(msg.Body) {
	case "!uptime":
		if domain.ParseCommandArgs(msg.Body) != "" {
			return false
		}
		d.SendMessage(ctx, "Uptime: "+domain.FormatDuration(time.Since(d.started)), "")
		return true
	case "!die":
		if !msg.IsAdmin {
			return false
		}
		d.die()
		return true
	case "!reload":
		if !msg.IsAdmin {
			return false
		}
		d.reload(ctx)
		return true
	case "!help":
		d.SendMessage(ctx, d.help(domain.ParseCommandArgs(msg.Body)), "")
		return true
	}

	return false
}

func (d *Dispatcher) die() {
	d.l.Info().Msg("shutdown requested")

	if d.backend != nil {
		if err := d.backend.Disconnect(); err != nil {
			d.l.Warn().Err(err).Msg("failed to disconnect backend")
		}
	}

	d.stop()
}

func (d *Dispatcher) reload(ctx context.Context) {
	if d.loader == nil {
		d.SendMessage(ctx, "Reload is not available", "")
		return
	}

	cfg, err := d.loader()
	if err != nil {
		d.l.Error().Err(err).Msg("reload failed, keeping current configuration")
		d.SendMessage(ctx, fmt.Sprintf("Reload failed: %s", err), "")
		return
	}

	auth, err := NewAuthorizer(cfg)
	if err != nil {
		d.l.Error().Err(err).Msg("reload failed, keeping current configuration")
		d.SendMessage(ctx, fmt.Sprintf("Reload failed: %s", err), "")
		return
	}

	d.mu.Lock()
	d.auth = auth
	d.cfg = cfg
	d.mu.Unlock()

	d.registry.Reload(cfg, cfg.GetStringSlice("bot.whitelist"), cfg.GetStringSlice("bot.blacklist"))
	d.SendMessage(ctx, "Reloaded, enabled modules: "+strings.Join(d.registry.EnabledNames(), " "), "")
}

func (d *Dispatcher) help(module string) string {
	if module != "" {
		if h, ok := d.registry.EnabledHandler(module); ok {
			if text := h.Help(); text != "" {
				return text
			}
			return domain.DefaultHelp
		}
	}

	return "Use !help <name>, where name is one of: " + strings.Join(d.registry.EnabledNames(), " ")
}

func formatTunneled(msg domain.ChatMessage) string {
	return fmt.Sprintf("[%s] %s> %s", msg.Module, msg.Nick, msg.Body)
}
