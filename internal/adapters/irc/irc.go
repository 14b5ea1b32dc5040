package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	stdlog "log"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	ircevent "github.com/thoj/go-ircevent"
)

const (
	Name = "irc"

	rplWelcome  = "001"
	rplWhoReply = "352"
	quitMessage = "relaybot shutting down"

	disconnectTimeout = 5 * time.Second
)

type Config struct {
	Server   string
	User     string
	Channel  string
	TLS      bool
	Insecure bool
}

// conn is the part of *ircevent.Connection the backend drives.
type conn interface {
	Join(channel string)
	Privmsg(target, message string)
	SendRaw(message string)
	Quit()
	Disconnect()
	ErrorChan() chan error
}

// Backend is the primary chat connection: one IRC channel.
type Backend struct {
	cfg  Config
	sink port.EventSink
	dial func(nick, user, password string) (conn, error)

	mu   sync.RWMutex
	conn conn
	nick string
	ctx  context.Context

	quitting     atomic.Bool
	disconnected chan struct{}

	l zerolog.Logger
}

func NewBackend(cfg Config) *Backend {
	b := &Backend{
		cfg:          cfg,
		ctx:          context.Background(),
		disconnected: make(chan struct{}),
		l:            log.With().Str("adapter", Name).Str("channel", cfg.Channel).Logger(),
	}
	b.dial = b.dialServer

	return b
}

// SetSink routes inbound events. It must be called before Connect.
func (b *Backend) SetSink(sink port.EventSink) {
	b.sink = sink
}

func (b *Backend) Name() string {
	return Name
}

// Connect registers with the server as identity, using credential as the
// server password. Joining the channel happens once the server welcomes us.
func (b *Backend) Connect(ctx context.Context, identity, credential string) error {
	b.mu.Lock()
	b.nick = identity
	b.ctx = ctx
	b.mu.Unlock()

	c, err := b.dial(identity, b.cfg.User, credential)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", b.cfg.Server, err)
	}

	b.mu.Lock()
	b.conn = c
	b.mu.Unlock()

	b.l.Info().Str("server", b.cfg.Server).Str("nick", identity).Msg("connected")
	return nil
}

func (b *Backend) dialServer(nick, user, password string) (conn, error) {
	if user == "" {
		user = nick
	}

	c := ircevent.IRC(nick, user)
	c.Password = password
	c.UseTLS = b.cfg.TLS
	if b.cfg.TLS {
		c.TLSConfig = &tls.Config{InsecureSkipVerify: b.cfg.Insecure} //nolint:gosec // opt-in for self-signed servers
	}
	c.QuitMessage = quitMessage
	c.Log = stdlog.New(b.l.With().Str("source", "ircevent").Logger(), "", 0)

	c.AddCallback(rplWelcome, b.onWelcome)
	c.AddCallback("JOIN", b.onJoin)
	c.AddCallback("PART", b.onPart)
	c.AddCallback("QUIT", b.onQuit)
	c.AddCallback("KICK", b.onKick)
	c.AddCallback("NICK", b.onNick)
	c.AddCallback("PRIVMSG", b.onPrivmsg)
	c.AddCallback(rplWhoReply, b.onWhoReply)

	if err := c.Connect(b.cfg.Server); err != nil {
		return nil, err
	}

	return c, nil
}

func (b *Backend) JoinRoom(room string) error {
	c := b.connection()
	if c == nil {
		return domain.ErrNotConnected
	}

	b.l.Info().Str("room", room).Msg("joining")
	c.Join(room)
	return nil
}

// Run blocks until the connection fails or ctx is cancelled. The connection
// is not re-established.
func (b *Backend) Run(ctx context.Context) error {
	c := b.connection()
	if c == nil {
		return domain.ErrNotConnected
	}

	select {
	case <-ctx.Done():
		if err := b.Disconnect(); err != nil {
			b.l.Warn().Err(err).Msg("failed to disconnect")
		}
		b.awaitDisconnect()
		return nil
	case err := <-c.ErrorChan():
		if b.quitting.Load() {
			b.awaitDisconnect()
			return nil
		}
		b.l.Error().Err(err).Msg("connection lost")
		return fmt.Errorf("irc connection lost: %w", err)
	}
}

// Disconnect sends QUIT and closes the connection in the background. It is
// safe to call from an event callback.
func (b *Backend) Disconnect() error {
	c := b.connection()
	if c == nil {
		return domain.ErrNotConnected
	}
	if b.quitting.Swap(true) {
		return nil
	}

	b.l.Info().Msg("disconnecting")
	c.Quit()

	// Disconnect waits for the read loop, which may be the caller when a
	// command arrives through a callback.
	go func() {
		c.Disconnect()
		close(b.disconnected)
	}()

	return nil
}

func (b *Backend) awaitDisconnect() {
	select {
	case <-b.disconnected:
	case <-time.After(disconnectTimeout):
		b.l.Warn().Dur("timeout", disconnectTimeout).Msg("connection did not close in time")
	}
}

// Send posts text to the channel, one PRIVMSG per line.
func (b *Backend) Send(text string) error {
	c := b.connection()
	if c == nil || b.quitting.Load() {
		return domain.ErrNotConnected
	}

	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimRight(line, "\r"); line == "" {
			continue
		}
		c.Privmsg(b.cfg.Channel, line)
	}

	return nil
}

func (b *Backend) connection() conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conn
}

func (b *Backend) self() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nick
}

func (b *Backend) eventContext() context.Context {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctx
}

func (b *Backend) isSelf(nick string) bool {
	return strings.EqualFold(nick, b.self())
}

func (b *Backend) inChannel(target string) bool {
	return strings.EqualFold(target, b.cfg.Channel)
}

func identity(e *ircevent.Event) string {
	if e.User == "" && e.Host == "" {
		return ""
	}
	return e.User + "@" + e.Host
}

func (b *Backend) onWelcome(_ *ircevent.Event) {
	if err := b.JoinRoom(b.cfg.Channel); err != nil {
		b.l.Error().Err(err).Msg("failed to join channel")
	}
}

func (b *Backend) onJoin(e *ircevent.Event) {
	if len(e.Arguments) == 0 || !b.inChannel(e.Arguments[0]) {
		return
	}

	if b.isSelf(e.Nick) {
		// the member list arrives as WHO replies
		if c := b.connection(); c != nil {
			c.SendRaw("WHO " + b.cfg.Channel)
		}
		return
	}

	b.presence(domain.PresenceEvent{Nick: e.Nick, Identity: identity(e), Online: true})
}

func (b *Backend) onPart(e *ircevent.Event) {
	if len(e.Arguments) == 0 || !b.inChannel(e.Arguments[0]) || b.isSelf(e.Nick) {
		return
	}

	b.presence(domain.PresenceEvent{Nick: e.Nick, Identity: identity(e)})
}

func (b *Backend) onQuit(e *ircevent.Event) {
	if b.isSelf(e.Nick) {
		return
	}

	b.presence(domain.PresenceEvent{Nick: e.Nick, Identity: identity(e)})
}

func (b *Backend) onKick(e *ircevent.Event) {
	if len(e.Arguments) < 2 || !b.inChannel(e.Arguments[0]) {
		return
	}

	kicked := e.Arguments[1]
	if b.isSelf(kicked) {
		b.l.Warn().Str("by", e.Nick).Msg("kicked from channel")
		return
	}

	b.presence(domain.PresenceEvent{Nick: kicked})
}

func (b *Backend) onNick(e *ircevent.Event) {
	newNick := e.Message()

	if b.isSelf(e.Nick) {
		b.mu.Lock()
		b.nick = newNick
		b.mu.Unlock()
		return
	}

	b.presence(domain.PresenceEvent{Nick: e.Nick, Identity: identity(e), NewNick: newNick})
}

func (b *Backend) onPrivmsg(e *ircevent.Event) {
	if len(e.Arguments) == 0 || b.isSelf(e.Nick) {
		return
	}

	target := e.Arguments[0]
	private := b.isSelf(target)
	if !private && !b.inChannel(target) {
		return
	}

	if b.sink == nil {
		return
	}
	b.sink.OnMessage(b.eventContext(), domain.ChatMessage{
		Nick:     e.Nick,
		Identity: identity(e),
		Body:     e.Message(),
		Private:  private,
	})
}

// onWhoReply handles "352 <me> <channel> <user> <host> <server> <nick> <flags> :<hops> <realname>".
func (b *Backend) onWhoReply(e *ircevent.Event) {
	if len(e.Arguments) < 6 || !b.inChannel(e.Arguments[1]) {
		return
	}

	user, host, nick := e.Arguments[2], e.Arguments[3], e.Arguments[5]
	if b.isSelf(nick) {
		return
	}

	b.presence(domain.PresenceEvent{Nick: nick, Identity: user + "@" + host, Online: true})
}

func (b *Backend) presence(ev domain.PresenceEvent) {
	if b.sink == nil {
		return
	}
	b.sink.OnPresence(b.eventContext(), ev)
}
