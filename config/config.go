package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wfunc/pokerlobby/holdem"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Game   GameConfig   `mapstructure:"game"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress    string        `mapstructure:"http_address"`
	RPCAddress     string        `mapstructure:"rpc_address"`
	MetricsAddress string        `mapstructure:"metrics_address"`
	SendQueue      int           `mapstructure:"send_queue"`
	Heartbeat      time.Duration `mapstructure:"heartbeat"`
}

// GameConfig holds the room and table settings shared by every room the lobby creates.
type GameConfig struct {
	MinPlayers        int           `mapstructure:"min_players"`
	MaxPlayers        int           `mapstructure:"max_players"`
	CountdownTicks    int           `mapstructure:"countdown_ticks"`
	CountdownInterval time.Duration `mapstructure:"countdown_interval"`
	DecisionTimeout   time.Duration `mapstructure:"decision_timeout"`
	MinPromptDelay    time.Duration `mapstructure:"min_prompt_delay"`
	MaxPromptDelay    time.Duration `mapstructure:"max_prompt_delay"`
	StartingChips     uint64        `mapstructure:"starting_chips"`
	SmallBlind        uint64        `mapstructure:"small_blind"`
	BigBlind          uint64        `mapstructure:"big_blind"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":1337")
	v.SetDefault("server.rpc_address", ":1338")
	v.SetDefault("server.metrics_address", ":9100")
	v.SetDefault("server.send_queue", 64)
	v.SetDefault("server.heartbeat", 30*time.Second)

	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.max_players", 6)
	v.SetDefault("game.countdown_ticks", 5)
	v.SetDefault("game.countdown_interval", time.Second)
	v.SetDefault("game.decision_timeout", 20*time.Second)
	v.SetDefault("game.min_prompt_delay", time.Second)
	v.SetDefault("game.max_prompt_delay", 3*time.Second)
	v.SetDefault("game.starting_chips", 300)
	v.SetDefault("game.small_blind", 10)
	v.SetDefault("game.big_blind", 20)

	v.SetDefault("log.level", "info")
}

// LoadConfig reads config.yaml from path (if present) and the environment.
// Missing files are not an error; every key has a default.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the cross-field constraints viper cannot express.
func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.MinPlayers < 2:
		return fmt.Errorf("%w: game.min_players must be at least 2, got %d", ErrInvalidConfig, g.MinPlayers)
	case g.MaxPlayers < g.MinPlayers:
		return fmt.Errorf("%w: game.max_players (%d) below game.min_players (%d)", ErrInvalidConfig, g.MaxPlayers, g.MinPlayers)
	case g.MaxPlayers > holdem.MaxSeats:
		return fmt.Errorf("%w: game.max_players (%d) above the %d seats one deck can deal", ErrInvalidConfig, g.MaxPlayers, holdem.MaxSeats)
	case g.CountdownTicks < 1:
		return fmt.Errorf("%w: game.countdown_ticks must be positive", ErrInvalidConfig)
	case g.CountdownInterval <= 0 || g.DecisionTimeout <= 0:
		return fmt.Errorf("%w: countdown interval and decision timeout must be positive", ErrInvalidConfig)
	case g.MinPromptDelay < 0 || g.MaxPromptDelay < g.MinPromptDelay:
		return fmt.Errorf("%w: prompt delay range [%s, %s] is invalid", ErrInvalidConfig, g.MinPromptDelay, g.MaxPromptDelay)
	case g.BigBlind == 0 || g.SmallBlind > g.BigBlind:
		return fmt.Errorf("%w: blinds %d/%d are invalid", ErrInvalidConfig, g.SmallBlind, g.BigBlind)
	case g.StartingChips < g.BigBlind:
		return fmt.Errorf("%w: game.starting_chips must cover the big blind", ErrInvalidConfig)
	case c.Server.SendQueue < 1:
		return fmt.Errorf("%w: server.send_queue must be positive", ErrInvalidConfig)
	}
	return nil
}
