package config

import (
	"errors"
	"fmt"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jaam8/voting_registry/pkg/tarantool"
	"github.com/joho/godotenv"
	"io/fs"
	"time"
)

const (
	StorageMemory    = "memory"
	StorageTarantool = "tarantool"
)

type Config struct {
	RestPort    string           `yaml:"REST_PORT"    env:"REST_PORT" env-default:"8080"`
	LogLevel    string           `yaml:"LOG_LEVEL"    env:"LOG_LEVEL" env-default:"debug"`
	LogFile     string           `yaml:"LOG_FILE"     env:"LOG_FILE"`
	Storage     string           `yaml:"STORAGE"      env:"STORAGE" env-default:"memory"`
	MaxDuration time.Duration    `yaml:"MAX_DURATION" env:"MAX_DURATION" env-default:"168h"`
	RateLimit   int              `yaml:"RATE_LIMIT"   env:"RATE_LIMIT" env-default:"20"`
	Bot         Bot              `yaml:"BOT"`
	Tarantool   tarantool.Config `yaml:"TARANTOOL"`
}

type Bot struct {
	Enabled   bool   `yaml:"BOT_ENABLED" env:"BOT_ENABLED" env-default:"false"`
	Token     string `yaml:"BOT_TOKEN"   env:"BOT_TOKEN"`
	MmURL     string `yaml:"MM_URL"      env:"MM_URL"`
	MmWsURL   string `yaml:"MM_WS_URL"   env:"MM_WS_URL"`
	ChannelID string `yaml:"CHANNEL_ID"  env:"CHANNEL_ID"`
}

// New reads the optional .env file and the environment.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	var config Config
	if err := cleanenv.ReadEnv(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMemory, StorageTarantool:
	default:
		return fmt.Errorf("config: unknown STORAGE %q", c.Storage)
	}
	if c.MaxDuration < 0 {
		return fmt.Errorf("config: MAX_DURATION should not be negative")
	}
	if c.Bot.Enabled && (c.Bot.Token == "" || c.Bot.MmURL == "" || c.Bot.MmWsURL == "" || c.Bot.ChannelID == "") {
		return fmt.Errorf("config: BOT_TOKEN, MM_URL, MM_WS_URL and CHANNEL_ID are required when the bot is enabled")
	}
	return nil
}
