package telegram

import (
	"context"
	"errors"
	"fmt"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	Name = "telegram"

	stopTimeout = 5 * time.Second
)

// Client is the part of the Bot API client the relay drives.
type Client interface {
	Messenger
	Start(ctx context.Context)
}

// Connector creates a client that delivers every update to handler.
type Connector func(token string, handler bot.HandlerFunc) (Client, error)

// Relay mirrors the primary room into a Telegram group and tunnels the
// group's messages back to the other adapters.
type Relay struct {
	bot     port.Bot
	connect Connector

	mu      sync.Mutex
	sender  *Sender
	chatID  int64
	adminID int64
	cancel  context.CancelFunc
	done    chan struct{}

	l zerolog.Logger
}

func NewRelay(b port.Bot) *Relay {
	return &Relay{
		bot:     b,
		connect: connectBotAPI,
		l:       log.With().Str("handler", Name).Logger(),
	}
}

func connectBotAPI(token string, handler bot.HandlerFunc) (Client, error) {
	b, err := bot.New(token, bot.WithDefaultHandler(handler))
	if err != nil {
		return nil, fmt.Errorf("failed initializing telegram bot: %w", err)
	}

	return b, nil
}

func (r *Relay) Name() string {
	return Name
}

func (r *Relay) Init(cfg *viper.Viper) error {
	token := cfg.GetString("telegram.token")
	if token == "" {
		return fmt.Errorf("telegram.token: %w", domain.ErrMissingConfig)
	}

	chatID, err := parseChatID(cfg.GetString("telegram.chat_id"))
	if err != nil {
		return fmt.Errorf("telegram.chat_id: %w", err)
	}

	var adminID int64
	if raw := cfg.GetString("telegram.admin_id"); raw != "" {
		if adminID, err = parseChatID(raw); err != nil {
			return fmt.Errorf("telegram.admin_id: %w", err)
		}
	}

	client, err := r.connect(token, r.onUpdate)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	r.mu.Lock()
	r.sender = NewSender(client)
	r.chatID = chatID
	r.adminID = adminID
	r.cancel = cancel
	r.done = done
	r.mu.Unlock()

	go func() {
		defer close(done)
		client.Start(ctx)
	}()

	r.l.Info().Int64("chatID", chatID).Msg("telegram relay started")
	return nil
}

// parseChatID accepts negative ids, which Telegram uses for groups.
func parseChatID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidNumber
	}

	return id, nil
}

func (r *Relay) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	r.handleUpdate(ctx, update)
}

func (r *Relay) handleUpdate(ctx context.Context, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.From.IsBot || strings.TrimSpace(msg.Text) == "" {
		return
	}

	r.mu.Lock()
	chatID, adminID := r.chatID, r.adminID
	r.mu.Unlock()

	if msg.Chat.ID != chatID {
		r.l.Debug().Int64("chatID", msg.Chat.ID).Msg("ignoring message from foreign chat")
		return
	}

	if strings.TrimSpace(msg.Text) == "!irc" {
		if err := r.send(ctx, onlineList(r.bot.OnlineUsers())); err != nil {
			r.l.Warn().Err(err).Msg("failed to answer !irc")
		}
		return
	}

	chat := domain.ChatMessage{
		ID:       domain.NewMessageID(),
		Nick:     displayName(msg.From),
		Identity: "telegram:" + strconv.FormatInt(msg.From.ID, 10),
		Body:     msg.Text,
		IsAdmin:  adminID != 0 && msg.From.ID == adminID,
	}
	r.bot.TunnelMessage(ctx, chat, Name)

	// commands from the group reach the handlers too; the module tag keeps
	// HandleMessage from echoing them back
	chat.Module = Name
	r.bot.OnMessage(ctx, chat)
}

// HandleMessage mirrors public messages of the primary room. It never
// consumes a message.
func (r *Relay) HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result {
	if msg.Private || msg.Module == Name {
		return domain.Continue
	}

	if err := r.send(ctx, fmt.Sprintf("<%s> %s", msg.Nick, msg.Body)); err != nil {
		r.l.Warn().Err(err).Str("messageId", msg.ID).Msg("message not mirrored")
	}
	return domain.Continue
}

// Deliver posts a message tunneled from another adapter.
func (r *Relay) Deliver(ctx context.Context, msg domain.ChatMessage) error {
	return r.send(ctx, fmt.Sprintf("[%s] <%s> %s", msg.Module, msg.Nick, msg.Body))
}

func (r *Relay) send(ctx context.Context, text string) error {
	r.mu.Lock()
	sender, chatID := r.sender, r.chatID
	r.mu.Unlock()

	if sender == nil {
		return domain.ErrNotConnected
	}

	return sender.Send(ctx, chatID, text)
}

func (r *Relay) HandlePresence(context.Context, domain.PresenceEvent) {}

func (r *Relay) Help() string {
	return "Mirrors the room into a Telegram group. Send !irc in the group to see who is online here."
}

// Close stops polling for updates and waits for the poller to return.
func (r *Relay) Close() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.sender, r.cancel, r.done = nil, nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(stopTimeout):
		return errors.New("telegram poller did not stop in time")
	}
}

func displayName(user *models.User) string {
	if user.Username == "" {
		return user.FirstName
	}

	return user.Username
}

func onlineList(nicks []string) string {
	if len(nicks) == 0 {
		return "Nobody is online"
	}

	return fmt.Sprintf("Online (%d): %s", len(nicks), strings.Join(nicks, ", "))
}
