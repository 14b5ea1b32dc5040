package handler

import (
	"context"
	"fmt"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	AskName = "ask"

	defaultAskModel   = "openai/gpt-4o-mini"
	defaultAskTimeout = 30 * time.Second
)

// GeneratorFactory builds a text generator from the ask settings.
type GeneratorFactory func(apiKey, model, systemPrompt string) port.TextGenerator

// Ask answers !ask prompts with a language model. Answers are generated off
// the dispatching goroutine and posted when ready.
type Ask struct {
	bot          port.Bot
	newGenerator GeneratorFactory

	mu        sync.Mutex
	generator port.TextGenerator
	timeout   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	l zerolog.Logger
}

func NewAsk(bot port.Bot, newGenerator GeneratorFactory) *Ask {
	ctx, cancel := context.WithCancel(context.Background())

	return &Ask{
		bot:          bot,
		newGenerator: newGenerator,
		timeout:      defaultAskTimeout,
		ctx:          ctx,
		cancel:       cancel,
		l:            log.With().Str("handler", AskName).Logger(),
	}
}

func (a *Ask) Name() string {
	return AskName
}

func (a *Ask) Init(cfg *viper.Viper) error {
	apiKey := cfg.GetString("ask.api_key")
	if apiKey == "" {
		return fmt.Errorf("ask.api_key: %w", domain.ErrMissingConfig)
	}

	model := cfg.GetString("ask.model")
	if model == "" {
		model = defaultAskModel
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.generator = a.newGenerator(apiKey, model, cfg.GetString("ask.system_prompt"))
	if timeout := cfg.GetDuration("ask.timeout"); timeout > 0 {
		a.timeout = timeout
	}

	a.l.Info().Str("model", model).Dur("timeout", a.timeout).Msg("ask handler ready")
	return nil
}

func (a *Ask) HandleMessage(ctx context.Context, msg domain.ChatMessage) domain.Result {
	prompt, ok := domain.CommandArguments(msg.Body, "!ask")
	if !ok {
		return domain.Continue
	}
	if prompt == "" {
		a.bot.SendMessage(ctx, a.Help(), AskName)
		return domain.Stop
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.generator == nil || a.ctx.Err() != nil {
		return domain.Continue
	}

	generator, timeout := a.generator, a.timeout
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.answer(generator, timeout, msg, prompt)
	}()

	return domain.Stop
}

func (a *Ask) answer(generator port.TextGenerator, timeout time.Duration, msg domain.ChatMessage, prompt string) {
	ctx, cancel := context.WithTimeout(a.ctx, timeout)
	defer cancel()

	l := a.l.With().Str("messageId", msg.ID).Str("nick", msg.Nick).Logger()
	l.Debug().Str("prompt", prompt).Msg("generating answer")

	text, err := generator.GenerateFromPrompt(ctx, prompt)
	if err != nil {
		l.Error().Err(err).Msg("failed to generate answer")
		a.bot.SendMessage(ctx, msg.Nick+": sorry, I could not come up with an answer", AskName)
		return
	}

	a.bot.SendMessage(ctx, msg.Nick+": "+text, AskName)
}

func (a *Ask) HandlePresence(context.Context, domain.PresenceEvent) {}

func (a *Ask) Help() string {
	return "!ask <question> - ask a language model"
}

// Close abandons pending answers and waits for their goroutines.
func (a *Ask) Close() error {
	a.mu.Lock()
	a.cancel()
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}
