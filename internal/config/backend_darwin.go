//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// On macOS settings live in the user defaults domain com.advisorhub.app
// (inspect with `defaults read com.advisorhub.app`) and the contact log
// under ~/Library/Application Support/advisorhub.
const defaultsDomain = "com.advisorhub.app"

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "Library", "Application Support", appDir)
	}
	return appDir + "-data"
}

func tokenHint() string {
	return fmt.Sprintf(" in the macOS Keychain (service %q, account %q)", keychainService, tokenAccount)
}

// defaultsBackend shells out to defaults(1). Reading a missing key exits 1.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return defaultsBackend{domain: defaultsDomain}
}

func (b defaultsBackend) run(args ...string) (string, error) {
	out, err := exec.Command("defaults", args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (b defaultsBackend) GetString(key string) (string, bool, error) {
	out, err := b.run("read", b.domain, key)
	if err == nil {
		return out, true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return "", false, nil
	}
	return "", false, fmt.Errorf("defaults read %s %s: %w (%s)", b.domain, key, err, out)
}

func (b defaultsBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("%s in %s: %q is not an integer", key, b.domain, s)
	}
	return i, true, nil
}

func (b defaultsBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b defaultsBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b defaultsBackend) write(key, kind, val string) error {
	if out, err := b.run("write", b.domain, key, kind, val); err != nil {
		return fmt.Errorf("defaults write %s %s: %w (%s)", b.domain, key, err, out)
	}
	return nil
}
