package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	APIURL      string        `mapstructure:"API_URL"`
	WSURL       string        `mapstructure:"WS_URL"`
	Token       string        `mapstructure:"TOKEN"`
	ListenAddr  string        `mapstructure:"LISTEN_ADDR"`
	LogLevel    string        `mapstructure:"LOG_LEVEL"`
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`
}

func Load() Config {
	viper.SetEnvPrefix("LINKUP")
	viper.AutomaticEnv()
	viper.SetDefault("API_URL", "http://localhost:8080")
	viper.SetDefault("WS_URL", "ws://localhost:8080/ws")
	viper.SetDefault("TOKEN", "")
	viper.SetDefault("LISTEN_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_TIMEOUT", 10*time.Second)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
