package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Advisor AdvisorConfig
	API     APIConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	// Backend is one of BackendMemory, BackendCSV or BackendSQLite.
	Backend string
	DataDir string
}

type LogConfig struct {
	Level string
}

type AdvisorConfig struct {
	// Name signs entries logged from the CLI and MCP when no name is given.
	Name string
}

type APIConfig struct {
	// Token is set only from the environment; see APIToken.
	Token string
}

// Contact log backends.
const (
	BackendMemory = "memory"
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			Backend: BackendCSV,
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, and environment variables.
//
// On macOS the backend is UserDefaults (domain: com.advisorhub.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/advisorhub/config.json.
//
// Environment variables (ADVISORHUB_*) override backend values on all
// platforms; a .env file only fills variables that are not already set.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return loadWith(newPlatformBackend())
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendCSV, BackendSQLite:
	default:
		return fmt.Errorf("invalid storage.backend %q: want %s, %s or %s", c.Storage.Backend, BackendMemory, BackendCSV, BackendSQLite)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Storage.DataDir == "" && c.Storage.Backend != BackendMemory {
		return fmt.Errorf("storage.data_dir is required for the %s backend", c.Storage.Backend)
	}
	return nil
}
