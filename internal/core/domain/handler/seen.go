package handler

import (
	"context"
	"fmt"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	SeenName = "seen"

	lastSeenTable = "lastseen"
	nickIDTable   = "nick2jid"

	maxSeenMatches = 20
)

// Seen remembers when every identity was last present and which identity
// each nickname belongs to.
type Seen struct {
	bot      port.Bot
	lastSeen port.PersistentMap
	nickIDs  port.PersistentMap
	now      func() time.Time

	l zerolog.Logger
}

func NewSeen(bot port.Bot, lastSeen, nickIDs port.PersistentMap) *Seen {
	return &Seen{
		bot:      bot,
		lastSeen: lastSeen,
		nickIDs:  nickIDs,
		now:      time.Now,
		l:        log.With().Str("handler", SeenName).Logger(),
	}
}

func (s *Seen) Name() string {
	return SeenName
}

func (s *Seen) Init(_ *viper.Viper) error {
	if err := s.lastSeen.Init(lastSeenTable); err != nil {
		s.l.Warn().Err(err).Str("table", lastSeenTable).Msg("table unavailable")
	}
	if err := s.nickIDs.Init(nickIDTable); err != nil {
		s.l.Warn().Err(err).Str("table", nickIDTable).Msg("table unavailable")
	}

	return nil
}

func (s *Seen) HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result {
	wanted, ok := domain.CommandArguments(msg.Body, "!seen")
	if !ok {
		return domain.Continue
	}

	s.bot.SendMessage(ctx, s.lookup(wanted), SeenName)
	return domain.Stop
}

func (s *Seen) lookup(wanted string) string {
	if wanted == "" {
		return s.Help()
	}
	if !s.lastSeen.IsOK() || !s.nickIDs.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}

	identity := wanted
	record, found := s.lastSeen.Get(wanted)
	if !found {
		resolved, ok := s.nickIDs.Get(wanted)
		if !ok {
			return s.search(wanted)
		}

		identity = resolved
		if record, found = s.lastSeen.Get(identity); !found {
			return fmt.Sprintf("Well this is weird, %s resolved to %s but I have no record for this identity", wanted, identity)
		}
	}

	if current := s.bot.ResolveNick(identity); current != "" {
		if current != wanted {
			return fmt.Sprintf("%s (%s) is still here as %s", wanted, identity, current)
		}
		return wanted + " is still here"
	}

	unix, err := strconv.ParseInt(record, 10, 64)
	if err != nil {
		s.l.Error().Err(err).Str("identity", identity).Str("record", record).Msg("corrupt last seen record")
		return "Something broke: " + err.Error()
	}

	ago := s.now().Sub(time.Unix(unix, 0))
	return fmt.Sprintf("%s (%s) last seen %s ago", wanted, identity, domain.FormatDuration(ago))
}

func (s *Seen) search(pattern string) string {
	matches, err := s.nickIDs.Find(pattern, domain.FindAll)
	if err != nil {
		return fmt.Sprintf("%s? Who's that? (%s)", pattern, err)
	}

	switch {
	case len(matches) == 0:
		return pattern + "? Who's that?"
	case len(matches) > maxSeenMatches:
		return "Too many matches"
	}

	var sb strings.Builder
	sb.WriteString("Similar users:")
	for _, m := range matches {
		fmt.Fprintf(&sb, " %s (%s)", m.Key, m.Value)
	}

	return sb.String()
}

func (s *Seen) HandlePresence(_ context.Context, ev domain.PresenceEvent) {
	if ev.Identity == "" {
		s.l.Debug().Str("nick", ev.Nick).Msg("presence without identity, not recorded")
		return
	}

	for _, nick := range []string{ev.Nick, ev.NewNick} {
		if nick == "" || !s.nickIDs.IsOK() {
			continue
		}
		if err := s.nickIDs.Set(nick, ev.Identity); err != nil {
			s.l.Warn().Err(err).Str("nick", nick).Msg("failed to record nickname")
		}
	}

	if s.lastSeen.IsOK() {
		if err := s.lastSeen.Set(ev.Identity, strconv.FormatInt(s.now().Unix(), 10)); err != nil {
			s.l.Warn().Err(err).Str("identity", ev.Identity).Msg("failed to record last seen")
		}
	}
}

func (s *Seen) Help() string {
	return "Use !seen <nickname> or !seen <identity>; use !seen <regex> to search users by regex"
}
