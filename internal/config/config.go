// Package config reads process configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/Shivanand-hulikatti/event-rsvp/internal/database"
)

// Store backends selected by the scheme of STORE.
const (
	BackendMemory   = "memory"
	BackendKVDB     = "kvdb"
	BackendPostgres = "postgres"
)

// Config holds the settings of one server process.
type Config struct {
	Port        string
	LogLevel    slog.Level
	OTLPAddr    string
	ServiceName string
	Store       Store
}

// Store says which repository backend to open and where.
type Store struct {
	Backend string
	// Path is the bbolt file for BackendKVDB.
	Path string
	// DSN is the connection string for BackendPostgres.
	DSN string
}

// Load reads the configuration, applying defaults for anything unset.
func Load() (Config, error) {
	cfg := Config{
		Port:        getEnv("PORT", "8080"),
		OTLPAddr:    os.Getenv("OTLP_GRPC"),
		ServiceName: getEnv("SERVICE_NAME", "event-rsvp"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "INFO"))); err != nil {
		return Config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	store, err := ParseStore(getEnv("STORE", "memory://"))
	if err != nil {
		return Config{}, err
	}
	cfg.Store = store
	return cfg, nil
}

// ParseStore interprets a store connection string: memory://, kvdb://<path> or a
// postgres URL. A bare "postgres" builds its DSN from the DB_* variables.
func ParseStore(raw string) (Store, error) {
	if raw == BackendMemory || raw == BackendPostgres {
		raw += "://"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Store{}, fmt.Errorf("parse STORE: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case BackendMemory:
		return Store{Backend: BackendMemory}, nil
	case BackendKVDB:
		path := u.Host + u.Path
		if path == "" {
			return Store{}, fmt.Errorf("STORE %q: kvdb needs a file path", raw)
		}
		return Store{Backend: BackendKVDB, Path: path}, nil
	case BackendPostgres, "postgresql":
		if u.Host == "" && u.Path == "" {
			return Store{Backend: BackendPostgres, DSN: database.ConfigFromEnv().DSN()}, nil
		}
		return Store{Backend: BackendPostgres, DSN: raw}, nil
	default:
		return Store{}, fmt.Errorf("STORE %q: unknown storage backend %q", raw, u.Scheme)
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
