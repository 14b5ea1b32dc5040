package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"relaybot/internal/adapters/feed"
	"relaybot/internal/adapters/generator"
	"relaybot/internal/adapters/irc"
	"relaybot/internal/adapters/store"
	"relaybot/internal/adapters/teamspeak"
	"relaybot/internal/adapters/telegram"
	"relaybot/internal/config"
	"relaybot/internal/core/domain/handler"
	"relaybot/internal/core/port"
	"relaybot/internal/core/service"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "relaybot",
		Short:        "Relay an IRC channel to Telegram and TeamSpeak",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the TOML config file (default ./config.toml)")

	return cmd
}

func run(ctx context.Context, configPath string) error {
	log.Info().Msg("starting relaybot...")

	log.Info().Msg("reading config file...")
	cfg, core, err := config.Load(configPath)
	if err != nil {
		log.Error().Err(err).Msg("could not load config")
		return err
	}

	zerolog.SetGlobalLevel(config.LogLevel(core.Bot.LogLevel))

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := store.Open(core.Bot.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("database unavailable, persistent handlers will not work")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	backend := irc.NewBackend(irc.Config{
		Server:   core.IRC.Server,
		User:     core.IRC.User,
		Channel:  core.IRC.Channel,
		TLS:      core.IRC.TLS,
		Insecure: core.IRC.Insecure,
	})

	dispatcher, err := service.NewDispatcher(service.DispatcherParams{
		Backend:  backend,
		Gateway:  service.NewGateway(backend),
		Presence: service.NewPresenceDirectory(),
		Config:   cfg,
		Loader:   reloader(configPath),
		Stop:     cancel,
		Kinds:    handlerKinds(db),
	})
	if err != nil {
		log.Error().Err(err).Msg("failed initializing dispatcher")
		return err
	}
	backend.SetSink(dispatcher)

	dispatcher.Start()

	if err := backend.Connect(ctx, core.IRC.Nick, core.IRC.Password); err != nil {
		log.Error().Err(err).Msg("failed connecting to irc")
		_ = dispatcher.Registry().Close()
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return backend.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		return dispatcher.Registry().Close()
	})

	log.Info().Msg("bot listening")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("relaybot stopped")
		return err
	}

	log.Info().Msg("relaybot stopped")
	return nil
}

func reloader(configPath string) service.Loader {
	return func() (*viper.Viper, error) {
		cfg, _, err := config.Load(configPath)
		return cfg, err
	}
}

// handlerKinds lists every handler in dispatch order. Stateful handlers get
// fresh table views on each construction so a reload reopens them.
func handlerKinds(db *store.DB) []handler.Kind {
	feeds := feed.NewReader(nil)

	return []handler.Kind{
		{Name: handler.SeenName, New: func(b port.Bot) port.Handler {
			return handler.NewSeen(b, store.NewMap(db), store.NewMap(db))
		}},
		{Name: handler.QuotesName, New: func(b port.Bot) port.Handler {
			return handler.NewQuotes(b, store.NewMap(db))
		}},
		{Name: handler.RSSName, New: func(b port.Bot) port.Handler {
			return handler.NewRSS(b, store.NewMap(db), feeds)
		}},
		{Name: handler.AskName, New: func(b port.Bot) port.Handler {
			return handler.NewAsk(b, func(apiKey, model, systemPrompt string) port.TextGenerator {
				return generator.NewOpenRouter(apiKey, model, systemPrompt)
			})
		}},
		{Name: teamspeak.Name, New: func(b port.Bot) port.Handler {
			return teamspeak.NewHandler(b)
		}},
		{Name: telegram.Name, New: func(b port.Bot) port.Handler {
			return telegram.NewRelay(b)
		}},
	}
}
