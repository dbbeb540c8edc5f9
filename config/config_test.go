package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WSURL)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("LINKUP_API_URL", "https://api.example.com")
	t.Setenv("LINKUP_TOKEN", "abc123")
	t.Setenv("LINKUP_LOG_LEVEL", "debug")

	cfg := Load()
	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, "abc123", cfg.Token)
	assert.Equal(t, "debug", cfg.LogLevel)
}
