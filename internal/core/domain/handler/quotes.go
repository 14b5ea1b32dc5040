package handler

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	QuotesName = "quotes"

	quotesTable  = "quotes"
	lastQuoteKey = "lastid"
	maxQuoteHits = 10
)

type Quotes struct {
	bot    port.Bot
	quotes port.PersistentMap
	// pick returns a number in [1, n].
	pick func(n int64) int64

	// mu serializes id allocation.
	mu sync.Mutex

	l zerolog.Logger
}

func NewQuotes(bot port.Bot, quotes port.PersistentMap) *Quotes {
	return &Quotes{
		bot:    bot,
		quotes: quotes,
		pick:   func(n int64) int64 { return rand.Int64N(n) + 1 },
		l:      log.With().Str("handler", QuotesName).Logger(),
	}
}

func (q *Quotes) Name() string {
	return QuotesName
}

func (q *Quotes) Init(_ *viper.Viper) error {
	if err := q.quotes.Init(quotesTable); err != nil {
		q.l.Warn().Err(err).Str("table", quotesTable).Msg("table unavailable")
	}

	return nil
}

func (q *Quotes) HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result {
	var reply string

	switch cmd, args := domain.ParseCommand(msg.Body), domain.ParseCommandArgs(msg.Body); cmd {
	case "!gq":
		reply = q.get(args)
	case "!aq":
		if args == "" {
			return domain.Continue
		}
		reply = q.add(args)
	case "!dq":
		if args == "" {
			return domain.Continue
		}
		reply = q.remove(args)
	case "!fq":
		if args == "" {
			return domain.Continue
		}
		reply = q.find(args)
	default:
		return domain.Continue
	}

	q.bot.SendMessage(ctx, msg.Nick+": "+reply, QuotesName)
	return domain.Stop
}

func (q *Quotes) get(rawID string) string {
	if !q.quotes.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}

	lastID, _ := q.quotes.Get(lastQuoteKey)

	id := rawID
	if id == "" {
		last, err := domain.ParseID(lastID)
		if err != nil {
			return "database is empty"
		}
		id = strconv.FormatInt(q.pick(last), 10)
	} else if _, err := domain.ParseID(id); err != nil {
		return "quote ids are positive numbers"
	}

	quote, ok := q.quotes.Get(id)
	if !ok {
		return "quote not found"
	}

	return formatQuote(id, lastID, quote)
}

func (q *Quotes) add(text string) string {
	if !q.quotes.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var last int64
	if raw, ok := q.quotes.Get(lastQuoteKey); ok {
		parsed, err := domain.ParseID(raw)
		if err != nil {
			q.l.Error().Str("lastid", raw).Msg("corrupt quote counter")
			return "can't add quote"
		}
		last = parsed
	}

	id := strconv.FormatInt(last+1, 10)
	if err := q.quotes.Set(id, text); err != nil {
		q.l.Error().Err(err).Str("id", id).Msg("failed to store quote")
		return "can't add quote"
	}
	if err := q.quotes.Set(lastQuoteKey, id); err != nil {
		q.l.Error().Err(err).Str("id", id).Msg("failed to store quote counter")
		return "can't add quote"
	}

	q.l.Info().Str("id", id).Msg("quote added")
	return "quote added with id " + id
}

func (q *Quotes) remove(rawID string) string {
	if !q.quotes.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}
	if _, err := domain.ParseID(rawID); err != nil {
		return "quote ids are positive numbers"
	}

	if !q.quotes.Delete(rawID) {
		return "quote doesn't exist"
	}

	q.l.Info().Str("id", rawID).Msg("quote deleted")
	return "quote deleted"
}

func (q *Quotes) find(pattern string) string {
	if !q.quotes.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}

	records, err := q.quotes.Find(pattern, domain.FindValues)
	if err != nil {
		return err.Error()
	}

	records = slices.DeleteFunc(records, func(r domain.Record) bool { return r.Key == lastQuoteKey })
	slices.SortFunc(records, func(a, b domain.Record) int {
		x, _ := strconv.ParseInt(a.Key, 10, 64)
		y, _ := strconv.ParseInt(b.Key, 10, 64)
		return cmp.Compare(x, y)
	})

	switch len(records) {
	case 0:
		return "no matching quotes"
	case 1:
		lastID, _ := q.quotes.Get(lastQuoteKey)
		return formatQuote(records[0].Key, lastID, records[0].Value)
	}

	var sb strings.Builder
	sb.WriteString("Matching quote IDs:")
	for i, r := range records {
		if i == maxQuoteHits {
			sb.WriteString(" ... (too many matches)")
			break
		}
		sb.WriteString(" " + r.Key)
	}

	return sb.String()
}

func (q *Quotes) HandlePresence(context.Context, domain.PresenceEvent) {}

func (q *Quotes) Help() string {
	return "!aq <text> - add quote, !dq <id> - delete quote, !fq <regex> - find quote, !gq <id> - get quote, a random one if id is empty"
}

func formatQuote(id, lastID, quote string) string {
	return fmt.Sprintf("(%s/%s) \"%s\"", id, lastID, quote)
}
