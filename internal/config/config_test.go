package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// mapBackend is an in-memory Backend.
type mapBackend struct {
	data map[string]any
}

func newMapBackend(kv map[string]any) *mapBackend {
	if kv == nil {
		kv = make(map[string]any)
	}
	return &mapBackend{data: kv}
}

func (m *mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return "", false, nil
	}
	s, _ := v.(string)
	return s, true, nil
}

func (m *mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m.data[key]
	if !ok {
		return 0, false, nil
	}
	i, ok := v.(int)
	if !ok {
		return 0, true, errors.New("not an int")
	}
	return i, true, nil
}

func (m *mapBackend) SetString(key, val string) error {
	m.data[key] = val
	return nil
}

func (m *mapBackend) SetInt(key string, val int) error {
	m.data[key] = val
	return nil
}

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	values map[string]string
	setErr error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[service+"/"+account] = value
	return nil
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when the backend is empty.
func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(newMapBackend(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want 4100", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendCSV {
		t.Errorf("Storage.Backend = %q, want %q", cfg.Storage.Backend, BackendCSV)
	}
	if !strings.HasSuffix(cfg.Storage.DataDir, "advisorhub") {
		t.Errorf("Storage.DataDir = %q, want an advisorhub directory", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.Advisor.Name != "" {
		t.Errorf("Advisor.Name = %q, want empty", cfg.Advisor.Name)
	}
}

// TestBackendValues verifies that every non-secret key is read from the backend.
func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := newMapBackend(map[string]any{
		"server.port":      5000,
		"storage.backend":  "sqlite",
		"storage.data_dir": "/tmp/advisorhub-test",
		"log.level":        "debug",
		"advisor.name":     "Ana",
		"api.token":        "ignored",
	})
	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendSQLite {
		t.Errorf("Storage.Backend = %q", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir != "/tmp/advisorhub-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Advisor.Name != "Ana" {
		t.Errorf("Advisor.Name = %q", cfg.Advisor.Name)
	}
	if cfg.API.Token != "" {
		t.Errorf("secrets must not be read from the backend, got %q", cfg.API.Token)
	}
}

// TestEnvOverride verifies that environment variables override backend values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVISORHUB_ADVISOR", "Luis")
	t.Setenv("ADVISORHUB_SERVER_PORT", "4200")
	t.Setenv("ADVISORHUB_API_TOKEN", "env-token")

	cfg, err := loadWith(newMapBackend(map[string]any{"advisor.name": "Ana", "server.port": 5000}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Advisor.Name != "Luis" {
		t.Errorf("Advisor.Name = %q, want Luis", cfg.Advisor.Name)
	}
	if cfg.Server.Port != 4200 {
		t.Errorf("Server.Port = %d, want 4200", cfg.Server.Port)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("API.Token = %q, want env-token", cfg.API.Token)
	}
}

func TestEnvOverride_BadIntKeepsValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVISORHUB_SERVER_PORT", "not-a-port")

	cfg, err := loadWith(newMapBackend(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4100 {
		t.Errorf("Server.Port = %d, want default 4100", cfg.Server.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"csv needs data dir", func(c *Config) { c.Storage.DataDir = "" }, "data_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}

	cfg := defaults()
	cfg.Storage.Backend = BackendMemory
	cfg.Storage.DataDir = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("memory backend without data dir: %v", err)
	}
}

func TestAPIToken(t *testing.T) {
	t.Run("env wins", func(t *testing.T) {
		cfg := defaults()
		cfg.API.Token = "from-env"
		kc := &mockKeychain{values: map[string]string{"advisorhub/api_token": "stored"}}
		tok, err := cfg.APIToken(kc)
		if err != nil || tok != "from-env" {
			t.Fatalf("APIToken() = %q, %v", tok, err)
		}
	})

	t.Run("stored token reused", func(t *testing.T) {
		kc := &mockKeychain{values: map[string]string{"advisorhub/api_token": "stored"}}
		tok, err := defaults().APIToken(kc)
		if err != nil || tok != "stored" {
			t.Fatalf("APIToken() = %q, %v", tok, err)
		}
	})

	t.Run("generated once", func(t *testing.T) {
		kc := &mockKeychain{}
		first, err := defaults().APIToken(kc)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(first) != 64 {
			t.Errorf("token length = %d, want 64 hex chars", len(first))
		}
		second, err := defaults().APIToken(kc)
		if err != nil || second != first {
			t.Fatalf("second call = %q, %v; want %q", second, err, first)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		kc := &mockKeychain{setErr: errors.New("locked")}
		if _, err := defaults().APIToken(kc); err == nil {
			t.Fatal("expected error when the token cannot be stored")
		}
	})
}

func TestSetKey(t *testing.T) {
	b := newMapBackend(nil)

	if err := setKeyWith(b, "server.port", "4300"); err != nil {
		t.Fatalf("setting port: %v", err)
	}
	if b.data["server.port"] != 4300 {
		t.Errorf("server.port = %v, want 4300", b.data["server.port"])
	}
	if err := setKeyWith(b, "advisor.name", "Ana"); err != nil {
		t.Fatalf("setting advisor: %v", err)
	}

	for _, tc := range []struct{ key, value string }{
		{"server.port", "abc"},
		{"storage.backend", "redis"},
		{"api.token", "secret"},
		{"nope", "x"},
	} {
		if err := setKeyWith(b, tc.key, tc.value); err == nil {
			t.Errorf("setKeyWith(%q, %q) succeeded, want error", tc.key, tc.value)
		}
	}
	if _, ok := b.data["api.token"]; ok {
		t.Error("secret written to backend")
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.API.Token = "secret"
	for _, ki := range ShowAll(cfg) {
		if ki.Key == "api.token" || ki.Value == "secret" {
			t.Fatalf("ShowAll leaked the token: %+v", ki)
		}
	}
	if got, want := len(ValidKeys()), len(specs)-1; got != want {
		t.Errorf("ValidKeys() has %d keys, want %d", got, want)
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	os.Unsetenv("ADVISORHUB_ADVISOR")
	t.Cleanup(func() { os.Unsetenv("ADVISORHUB_ADVISOR") })

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("ADVISORHUB_ADVISOR=Marta\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Advisor.Name != "Marta" {
		t.Errorf("Advisor.Name = %q, want value from .env", cfg.Advisor.Name)
	}
}
