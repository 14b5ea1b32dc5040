package telegram

import (
	"context"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

// TelegramMessageLimit is the longest text the Bot API accepts, in bytes.
const TelegramMessageLimit = 4096

type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

type Sender struct {
	bot Messenger
}

func NewSender(bot Messenger) *Sender {
	return &Sender{bot: bot}
}

// Send posts text to a chat, split into as many messages as the limit requires.
func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	for _, part := range chunk(text, TelegramMessageLimit) {
		_, err := s.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   part,
		})
		if err != nil {
			log.Error().Err(err).Int64("chatID", chatID).Msg("failed to send message")
			return err
		}
	}

	return nil
}

// chunk splits text into pieces of at most limit bytes without cutting runes.
func chunk(text string, limit int) []string {
	var parts []string

	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		if cut == 0 {
			cut = limit
		}
		parts = append(parts, text[:cut])
		text = text[cut:]
	}

	return append(parts, text)
}
