package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const envPrefix = "RELAYBOT"

var validate = validator.New()

// Core is the part of the configuration the process cannot start without.
// Handler sections are read by the handlers themselves on Init.
type Core struct {
	Bot struct {
		LogLevel  string   `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
		Admins    []string `mapstructure:"admins"`
		Whitelist []string `mapstructure:"whitelist"`
		Blacklist []string `mapstructure:"blacklist"`
		DBPath    string   `mapstructure:"db_path" validate:"required"`
	} `mapstructure:"bot"`
	IRC struct {
		Server   string `mapstructure:"server" validate:"required,hostname_port"`
		Nick     string `mapstructure:"nick" validate:"required,max=30"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Channel  string `mapstructure:"channel" validate:"required,startswith=#"`
		TLS      bool   `mapstructure:"tls"`
		Insecure bool   `mapstructure:"insecure"`
	} `mapstructure:"irc"`
}

// Load reads a TOML file, applies defaults and environment overrides and
// validates the core settings. An empty path searches the working directory
// for config.toml.
func Load(path string) (*viper.Viper, *Core, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("could not read config file: %w", err)
	}

	core, err := Validate(v)
	if err != nil {
		return nil, nil, err
	}

	return v, core, nil
}

// Validate decodes and checks the core settings of v.
func Validate(v *viper.Viper) (*Core, error) {
	var core Core
	if err := v.Unmarshal(&core); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}

	if err := validate.Struct(&core); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			fields := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return nil, fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &core, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.log_level", "info")
	v.SetDefault("bot.db_path", "db")

	v.SetDefault("teamspeak.port", 10011)
	v.SetDefault("teamspeak.server_port", 9987)
	v.SetDefault("teamspeak.keepalive", "60s")

	v.SetDefault("rss.update_interval", "1h")
	v.SetDefault("rss.fetch_timeout", "2s")

	v.SetDefault("ask.model", "openai/gpt-4o-mini")
	v.SetDefault("ask.timeout", "30s")
}

// LogLevel maps the configured level name to zerolog, defaulting to info.
func LogLevel(name string) zerolog.Level {
	switch name {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
