package handler

import (
	"fmt"
	"io"
	"relaybot/internal/core/domain"
	"relaybot/internal/core/port"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Kind is a known handler type. New must not fail; setup belongs in Init.
type Kind struct {
	Name string
	New  func(bot port.Bot) port.Handler
}

type Registry struct {
	bot   port.Bot
	kinds []Kind

	mu       sync.RWMutex
	cfg      *viper.Viper
	handlers map[string]port.Handler
	order    []string
	enabled  []port.Handler
}

func NewRegistry(bot port.Bot, cfg *viper.Viper, kinds ...Kind) *Registry {
	return &Registry{
		bot:      bot,
		kinds:    kinds,
		cfg:      cfg,
		handlers: make(map[string]port.Handler),
	}
}

// RegisterAll constructs one handler per known kind, in kind order.
func (r *Registry) RegisterAll() {
	handlers, order := r.build()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range order {
		if _, ok := r.handlers[name]; ok {
			continue
		}
		r.handlers[name] = handlers[name]
		r.order = append(r.order, name)
	}
}

func (r *Registry) build() (map[string]port.Handler, []string) {
	handlers := make(map[string]port.Handler, len(r.kinds))
	order := make([]string, 0, len(r.kinds))

	for _, kind := range r.kinds {
		if _, ok := handlers[kind.Name]; ok {
			log.Warn().Str("handler", kind.Name).Msg("duplicate handler name, skipping")
			continue
		}

		log.Info().Str("handler", kind.Name).Msg("adding handler to registry")
		handlers[kind.Name] = kind.New(r.bot)
		order = append(order, kind.Name)
	}

	return handlers, order
}

// UnregisterAll drops every handler, closing those that own resources.
func (r *Registry) UnregisterAll() {
	r.mu.Lock()
	handlers := r.handlers
	r.handlers = make(map[string]port.Handler)
	r.order = nil
	r.enabled = nil
	r.mu.Unlock()

	closeHandlers(handlers, nil)
}

// closeHandlers closes every handler of old that is not also part of keep.
func closeHandlers(old, keep map[string]port.Handler) {
	for name, h := range old {
		if keep[name] == h {
			continue
		}
		closer, ok := h.(io.Closer)
		if !ok {
			continue
		}
		if err := closer.Close(); err != nil {
			log.Warn().Err(err).Str("handler", name).Msg("failed to close handler")
		}
	}
}

// EnableHandlers enables every registered handler, or only the whitelisted
// ones when a whitelist is given, minus the blacklist.
func (r *Registry) EnableHandlers(whitelist, blacklist []string) {
	r.mu.RLock()
	candidates := selectNames(r.order, whitelist, blacklist)
	r.mu.RUnlock()

	for _, name := range candidates {
		if err := r.EnableHandler(name); err != nil {
			log.Warn().Err(err).Str("handler", name).Msg("handler not enabled")
		}
	}
}

func selectNames(order, whitelist, blacklist []string) []string {
	return lo.Filter(order, func(name string, _ int) bool {
		if lo.Contains(blacklist, name) {
			return false
		}
		return len(whitelist) == 0 || lo.Contains(whitelist, name)
	})
}

// EnableHandler initializes a registered handler and appends it to the
// dispatch list. Init failures leave the handler registered but disabled.
func (r *Registry) EnableHandler(name string) error {
	r.mu.RLock()
	h, ok := r.handlers[name]
	cfg := r.cfg
	already := lo.Contains(r.enabled, h)
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%s: %w", name, domain.ErrHandlerNotFound)
	}
	if already {
		return nil
	}

	if err := initHandler(name, h, cfg); err != nil {
		return err
	}

	r.mu.Lock()
	r.enabled = append(r.enabled, h)
	r.mu.Unlock()

	return nil
}

func initHandler(name string, h port.Handler, cfg *viper.Viper) error {
	if err := h.Init(cfg); err != nil {
		log.Error().Err(err).Str("handler", name).Msg("handler init failed")
		return fmt.Errorf("init %s: %w", name, err)
	}

	log.Info().Str("handler", name).Msg("handler enabled")
	return nil
}

// Reload builds and enables a new set of handlers against cfg, then swaps it
// in. Dispatch keeps using the current handlers until the swap; they are
// closed afterwards.
func (r *Registry) Reload(cfg *viper.Viper, whitelist, blacklist []string) {
	handlers, order := r.build()

	var enabled []port.Handler
	for _, name := range selectNames(order, whitelist, blacklist) {
		h := handlers[name]
		if err := initHandler(name, h, cfg); err != nil {
			log.Warn().Err(err).Str("handler", name).Msg("handler not enabled")
			continue
		}
		enabled = append(enabled, h)
	}

	r.mu.Lock()
	old := r.handlers
	r.cfg = cfg
	r.handlers = handlers
	r.order = order
	r.enabled = enabled
	r.mu.Unlock()

	closeHandlers(old, handlers)
}

func (r *Registry) Get(name string) (port.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[name]
	if !ok {
		return nil, domain.ErrHandlerNotFound
	}

	return h, nil
}

// Enabled returns a snapshot of the dispatch list in registration order.
func (r *Registry) Enabled() []port.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]port.Handler(nil), r.enabled...)
}

// EnabledHandler returns an enabled handler by name.
func (r *Registry) EnabledHandler(name string) (port.Handler, bool) {
	return lo.Find(r.Enabled(), func(h port.Handler) bool {
		return h.Name() == name
	})
}

func (r *Registry) EnabledNames() []string {
	return lo.Map(r.Enabled(), func(h port.Handler, _ int) string {
		return h.Name()
	})
}

func (r *Registry) ListHandlers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Relays returns the enabled handlers that accept tunneled messages.
func (r *Registry) Relays() []port.Relay {
	return lo.FilterMap(r.Enabled(), func(h port.Handler, _ int) (port.Relay, bool) {
		relay, ok := h.(port.Relay)
		return relay, ok
	})
}

// Close shuts every handler down on process exit.
func (r *Registry) Close() error {
	r.UnregisterAll()
	return nil
}
