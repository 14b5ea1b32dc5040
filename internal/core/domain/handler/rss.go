package handler

import (
	"context"
	"fmt"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	RSSName = "rss"

	rssTable = "rss"

	defaultRSSInterval     = time.Hour
	defaultRSSFetchTimeout = 2 * time.Second
)

// RSS watches registered feeds and announces their newest item whenever its
// GUID changes. Fetches never run on the dispatching goroutine.
type RSS struct {
	bot    port.Bot
	feeds  port.PersistentMap
	reader port.FeedReader

	mu      sync.Mutex
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	l zerolog.Logger
}

func NewRSS(bot port.Bot, feeds port.PersistentMap, reader port.FeedReader) *RSS {
	ctx, cancel := context.WithCancel(context.Background())

	return &RSS{
		bot:     bot,
		feeds:   feeds,
		reader:  reader,
		timeout: defaultRSSFetchTimeout,
		ctx:     ctx,
		cancel:  cancel,
		l:       log.With().Str("handler", RSSName).Logger(),
	}
}

func (r *RSS) Name() string {
	return RSSName
}

func (r *RSS) Init(cfg *viper.Viper) error {
	if err := r.feeds.Init(rssTable); err != nil {
		r.l.Warn().Err(err).Str("table", rssTable).Msg("table unavailable")
	}

	interval := cfg.GetDuration("rss.update_interval")
	if interval <= 0 {
		r.l.Warn().Str("value", cfg.GetString("rss.update_interval")).
			Dur("default", defaultRSSInterval).Msg("invalid rss update interval, using default")
		interval = defaultRSSInterval
	}

	if timeout := cfg.GetDuration("rss.fetch_timeout"); timeout > 0 {
		r.mu.Lock()
		r.timeout = timeout
		r.mu.Unlock()
	}

	r.goAsync(func(ctx context.Context) { r.poll(ctx, interval) })

	return nil
}

func (r *RSS) poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.update(ctx)
		}
	}
}

func (r *RSS) HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result {
	cmd, url := domain.ParseCommand(msg.Body), domain.ParseCommandArgs(msg.Body)

	switch {
	case cmd == "!addrss" && msg.IsAdmin && url != "":
		r.reply(ctx, r.register(url))
	case cmd == "!delrss" && msg.IsAdmin && url != "":
		r.reply(ctx, r.unregister(url))
	case cmd == "!updaterss" && msg.IsAdmin && url == "":
		r.goAsync(r.update)
	case cmd == "!listrss" && url == "":
		r.reply(ctx, r.list())
	case cmd == "!readrss" && url != "":
		r.goAsync(func(ctx context.Context) { r.read(ctx, url) })
	default:
		return domain.Continue
	}

	return domain.Stop
}

func (r *RSS) register(url string) string {
	if !r.feeds.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}
	if _, ok := r.feeds.Get(url); ok {
		return "Feed already exists"
	}
	if err := r.feeds.Set(url, ""); err != nil {
		r.l.Error().Err(err).Str("url", url).Msg("failed to register feed")
		return "Failed to add feed"
	}

	r.l.Info().Str("url", url).Msg("feed registered")
	return "Feed added"
}

func (r *RSS) unregister(url string) string {
	if !r.feeds.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}
	if !r.feeds.Delete(url) {
		return "No such feed"
	}

	r.l.Info().Str("url", url).Msg("feed unregistered")
	return "Feed removed"
}

func (r *RSS) list() string {
	if !r.feeds.IsOK() {
		return domain.ErrStoreUnavailable.Error()
	}

	var sb strings.Builder
	sb.WriteString("Registered feeds:")
	r.feeds.ForEach(func(rec domain.Record) bool {
		fmt.Fprintf(&sb, "\n%s | GUID: %s", rec.Key, rec.Value)
		return true
	})

	return sb.String()
}

// update announces every registered feed whose newest GUID changed.
func (r *RSS) update(ctx context.Context) {
	if !r.feeds.IsOK() {
		return
	}

	var feeds []domain.Record
	r.feeds.ForEach(func(rec domain.Record) bool {
		feeds = append(feeds, rec)
		return true
	})

	for _, feed := range feeds {
		if ctx.Err() != nil {
			return
		}

		item, err := r.fetch(ctx, feed.Key)
		if err != nil {
			r.l.Warn().Err(err).Str("url", feed.Key).Msg("failed to update feed")
			continue
		}

		guid := itemGUID(item)
		if guid == feed.Value {
			continue
		}

		if err := r.feeds.Set(feed.Key, guid); err != nil {
			r.l.Error().Err(err).Str("url", feed.Key).Msg("failed to store feed guid")
			continue
		}
		r.reply(ctx, formatNews(item))
	}
}

func (r *RSS) read(ctx context.Context, url string) {
	item, err := r.fetch(ctx, url)
	if err != nil {
		r.reply(ctx, "Failed to read feed: "+err.Error())
		return
	}

	r.reply(ctx, formatNews(item))
}

func (r *RSS) fetch(ctx context.Context, url string) (domain.FeedItem, error) {
	r.mu.Lock()
	timeout := r.timeout
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return r.reader.Latest(ctx, url)
}

func (r *RSS) goAsync(fn func(ctx context.Context)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx.Err() != nil {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn(r.ctx)
	}()
}

func (r *RSS) reply(ctx context.Context, text string) {
	r.bot.SendMessage(ctx, text, RSSName)
}

func (r *RSS) HandlePresence(context.Context, domain.PresenceEvent) {}

func (r *RSS) Help() string {
	return "!addrss <url> - add feed to RSS watchlist (admin only)\n" +
		"!delrss <url> - remove feed from RSS watchlist (admin only)\n" +
		"!listrss - list registered feeds\n" +
		"!updaterss - force RSS feed update (admin only)\n" +
		"!readrss <url> - get latest news from a specific feed"
}

// Close stops the poller and waits for running fetches.
func (r *RSS) Close() error {
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	return nil
}

func itemGUID(item domain.FeedItem) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func formatNews(item domain.FeedItem) string {
	return fmt.Sprintf("%s @ %s ( %s )\n\n%s", item.Title, item.PubDate, item.Link, item.Description)
}
