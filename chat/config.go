package chat

import (
	"os"
	"strings"
	"time"
)

// DefaultAddr is where the server listens unless told otherwise.
const DefaultAddr = "127.0.0.1:1800"

// Config holds the server settings. Zero values disable the admission guards.
type Config struct {
	// Addr is the TCP listen address.
	Addr string
	// MaxPerIP caps concurrent connections from one IP.
	MaxPerIP int
	// ConnRateLimit caps new connections per IP per ConnRateWindow; offenders are banned.
	ConnRateLimit  int
	ConnRateWindow time.Duration
	// Bans lists IPs refused at accept time.
	Bans []string
	// Store backs the chat history. Nil means in memory.
	Store MessageStore
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		ConnRateWindow: time.Minute,
	}
}

// ConfigFromEnv overlays CHATROOM_ADDR on the defaults.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if addr := strings.TrimSpace(os.Getenv("CHATROOM_ADDR")); addr != "" {
		cfg.Addr = addr
	}
	return cfg
}

func sanitizeConfig(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxPerIP < 0 {
		cfg.MaxPerIP = 0
	}
	if cfg.ConnRateLimit < 0 {
		cfg.ConnRateLimit = 0
	}
	if cfg.ConnRateWindow <= 0 {
		cfg.ConnRateWindow = time.Minute
	}
	bans := make([]string, 0, len(cfg.Bans))
	for _, ip := range cfg.Bans {
		if ip = strings.TrimSpace(ip); ip != "" {
			bans = append(bans, ip)
		}
	}
	cfg.Bans = bans
	if cfg.Store == nil {
		cfg.Store = NewMemoryMessageStore()
	}
	return cfg
}
