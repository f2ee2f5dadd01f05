package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	Secret string `mapstructure:"secret"`

	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	Game  Game     `mapstructure:"game"`
	LLM   LLM      `mapstructure:"llm"`
	Admin []string `mapstructure:"admin_ids"`
}

// Game groups the session-engine settings. Timeouts are in seconds because
// that is how players enter them.
type Game struct {
	MaxRooms          int    `mapstructure:"max_rooms" validate:"gt=0"`
	MaxPlayersPerRoom int    `mapstructure:"max_players_per_room" validate:"gt=0"`
	DefaultTimeout    int    `mapstructure:"default_timeout" validate:"gte=30,lte=600"`
	CharTimeout       int    `mapstructure:"char_creation_timeout" validate:"gt=0"`
	WizardTimeout     int    `mapstructure:"creation_timeout" validate:"gt=0"`
	WorldMaxLen       int    `mapstructure:"world_setting_max_length" validate:"gt=0"`
	WorldSummaryLen   int    `mapstructure:"world_setting_summary_length" validate:"gt=0"`
	WorldTemplate     string `mapstructure:"world_template"`
	CharSettingMaxLen int    `mapstructure:"character_setting_max_length" validate:"gt=0"`
	HistoryRounds     int    `mapstructure:"history_rounds_in_context" validate:"gt=0"`
	ChunkSize         int    `mapstructure:"chunk_size" validate:"gt=0"`
	OpeningMaxLen     int    `mapstructure:"opening_max_length" validate:"gt=0"`
	ResponseMaxLen    int    `mapstructure:"dm_response_max_length" validate:"gt=0"`
	DMStyle           string `mapstructure:"dm_style"`
}

type LLM struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "change-me-in-production")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("game.max_rooms", 10)
	v.SetDefault("game.max_players_per_room", 8)
	v.SetDefault("game.default_timeout", 300)
	v.SetDefault("game.char_creation_timeout", 180)
	v.SetDefault("game.creation_timeout", 300)
	v.SetDefault("game.world_setting_max_length", 4000)
	v.SetDefault("game.world_setting_summary_length", 2000)
	v.SetDefault("game.character_setting_max_length", 500)
	v.SetDefault("game.history_rounds_in_context", 5)
	v.SetDefault("game.chunk_size", 1000)
	v.SetDefault("game.opening_max_length", 400)
	v.SetDefault("game.dm_response_max_length", 500)
	v.SetDefault("game.dm_style", "vivid, cinematic, moderately detailed")

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
}
