package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, populated from the environment.
type Config struct {
	// Port the HTTP surface listens on.
	Port string `env:"PORT" envDefault:"8080"`

	// PeerID is this director's network identity. Empty means one is
	// generated at startup.
	PeerID string `env:"PEER_ID"`

	// LiveSlots is the supported live slot set the authority accepts
	// control requests for.
	LiveSlots []string `env:"LIVE_SLOTS" envSeparator:"," envDefault:"studio_live,tv_live"`

	// JournalPath is the sqlite file the authority change journal writes
	// to. Empty disables the journal.
	JournalPath string `env:"JOURNAL_PATH"`

	// EventBuffer is the per-subscriber change channel depth.
	EventBuffer int `env:"EVENT_BUFFER" envDefault:"64"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load reads .env files into the environment. With no paths ".env" is used;
// a missing file is reported as an error callers can ignore and fall back to
// the system environment.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Parse populates a Config from the environment.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
