package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	StaticPath    string        `mapstructure:"static_path"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	CookieSecret  string        `mapstructure:"cookie_secret"`
	DatabaseURL   string        `mapstructure:"database_url"`
	FreeMinutes   int           `mapstructure:"free_minutes"`
	RoomRetention time.Duration `mapstructure:"room_retention"`
	UsageTick     time.Duration `mapstructure:"usage_tick"`
	PersistEvery  time.Duration `mapstructure:"persist_every"`

	Speech struct {
		Key    string `mapstructure:"key"`
		Region string `mapstructure:"region"`
	} `mapstructure:"speech"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("public_base_url", "")
	v.SetDefault("cookie_secret", "")
	v.SetDefault("database_url", "")
	v.SetDefault("free_minutes", 300)
	v.SetDefault("room_retention", "6h")
	v.SetDefault("usage_tick", "1s")
	v.SetDefault("persist_every", "60s")
	v.SetDefault("speech.key", "")
	v.SetDefault("speech.region", "")

	v.SetEnvPrefix("BABBLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
