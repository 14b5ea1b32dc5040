package teamspeak

import (
	"context"
	"fmt"
	"net"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	Name = "ts"

	defaultQueryPort  = 10011
	defaultServerPort = 9987
	defaultKeepalive  = 60 * time.Second

	closedAlert = "TeamSpeak ServerQuery connection closed, restart required"
)

type dialFunc func(ctx context.Context, addr string, keepalive time.Duration, m *Machine, onClosed func(error)) (*Client, error)

// Handler connects to a TeamSpeak server on Init, announces clients joining
// and leaving it in the primary room and answers !ts.
type Handler struct {
	bot  port.Bot
	dial dialFunc

	mu      sync.Mutex
	machine *Machine
	client  *Client
	cancel  context.CancelFunc

	l zerolog.Logger
}

func NewHandler(bot port.Bot) *Handler {
	return &Handler{
		bot:  bot,
		dial: Dial,
		l:    log.With().Str("handler", Name).Logger(),
	}
}

func (h *Handler) Name() string {
	return Name
}

func (h *Handler) Init(cfg *viper.Viper) error {
	host := cfg.GetString("teamspeak.host")
	if host == "" {
		return fmt.Errorf("teamspeak.host: %w", domain.ErrMissingConfig)
	}

	queryPort := cfg.GetInt("teamspeak.port")
	if queryPort <= 0 {
		queryPort = defaultQueryPort
	}

	creds := Credentials{
		Login:      cfg.GetString("teamspeak.login"),
		Password:   cfg.GetString("teamspeak.password"),
		ServerPort: cfg.GetInt("teamspeak.server_port"),
	}
	if creds.ServerPort <= 0 {
		creds.ServerPort = defaultServerPort
	}

	keepalive := cfg.GetDuration("teamspeak.keepalive")
	if keepalive <= 0 {
		keepalive = defaultKeepalive
	}

	ctx, cancel := context.WithCancel(context.Background())

	machine := NewMachine(creds, func(text string) {
		h.bot.SendMessage(ctx, text, Name)
	})

	addr := net.JoinHostPort(host, strconv.Itoa(queryPort))
	client, err := h.dial(ctx, addr, keepalive, machine, func(error) {
		h.bot.SendMessage(ctx, closedAlert, Name)
	})
	if err != nil {
		cancel()
		return err
	}

	h.mu.Lock()
	h.machine = machine
	h.client = client
	h.cancel = cancel
	h.mu.Unlock()

	h.l.Info().Str("addr", addr).Msg("connected to serverquery")
	return nil
}

func (h *Handler) HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result {
	if _, ok := domain.CommandArguments(msg.Body, "!ts"); !ok {
		return domain.Continue
	}

	h.bot.SendMessage(ctx, h.listClients(), Name)
	return domain.Stop
}

func (h *Handler) listClients() string {
	h.mu.Lock()
	machine, client := h.machine, h.client
	h.mu.Unlock()

	if machine == nil || client == nil || !client.alive() {
		return "Not connected to TeamSpeak"
	}

	clients := machine.Clients()
	if len(clients) == 0 {
		return "Nobody is online on TeamSpeak"
	}

	return fmt.Sprintf("Online on TeamSpeak (%d): %s", len(clients), strings.Join(clients, ", "))
}

func (h *Handler) HandlePresence(context.Context, domain.PresenceEvent) {}

func (h *Handler) Help() string {
	return "!ts: list the users connected to the TeamSpeak server"
}

// Close drops the ServerQuery connection and waits for its reader to exit.
func (h *Handler) Close() error {
	h.mu.Lock()
	client, cancel := h.client, h.cancel
	h.machine, h.client, h.cancel = nil, nil, nil
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if client == nil {
		return nil
	}

	return client.Close()
}
