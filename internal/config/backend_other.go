//go:build !darwin

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Off macOS, settings live in $XDG_CONFIG_HOME/advisorhub/config.json and
// the contact log under $XDG_DATA_HOME/advisorhub.

// xdgPath resolves $envVar/advisorhub/elem..., falling back to
// ~/homeRel/advisorhub/elem... when envVar is unset.
func xdgPath(envVar, homeRel string, elem ...string) (string, error) {
	base := os.Getenv(envVar)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, homeRel)
	}
	return filepath.Join(append([]string{base, appDir}, elem...)...), nil
}

func defaultDataDir() string {
	p, err := xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"))
	if err != nil {
		return appDir + "-data"
	}
	return p
}

func configFilePath() string {
	p, err := xdgPath("XDG_CONFIG_HOME", ".config", "config.json")
	if err != nil {
		return filepath.Join(appDir, "config.json")
	}
	return p
}

func tokenHint() string {
	return " in " + secretsFilePath()
}

// writePrivateFile replaces path with data, mode 0600, via a rename so a
// crash never leaves a half-written file.
func writePrivateFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// fileBackend is a flat JSON object of dotted keys, for example
// {"server.port": 4100, "storage.backend": "csv"}. A file that cannot be
// parsed fails every read instead of silently falling back to defaults.
type fileBackend struct {
	path    string
	vals    map[string]any
	loadErr error
}

func newPlatformBackend() Backend {
	return newFileBackend(configFilePath())
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, vals: make(map[string]any)}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		b.loadErr = fmt.Errorf("reading %s: %w", path, err)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&b.vals); err != nil {
			b.loadErr = fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return b
}

func (b *fileBackend) lookup(key string) (any, bool, error) {
	if b.loadErr != nil {
		return nil, false, b.loadErr
	}
	v, ok := b.vals[key]
	return v, ok, nil
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return "", ok, err
	}
	if s, isString := v.(string); isString {
		return s, true, nil
	}
	return fmt.Sprint(v), true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok, err := b.lookup(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	var raw string
	switch n := v.(type) {
	case json.Number:
		raw = n.String()
	case string:
		raw = n
	default:
		return 0, true, fmt.Errorf("%s in %s: expected an integer, got %T", key, b.path, v)
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("%s in %s: %q is not an integer", key, b.path, raw)
	}
	return i, true, nil
}

func (b *fileBackend) SetString(key, val string) error {
	return b.set(key, val)
}

func (b *fileBackend) SetInt(key string, val int) error {
	return b.set(key, val)
}

// set rewrites the file with key updated. Writing over a file that failed to
// parse replaces it.
func (b *fileBackend) set(key string, val any) error {
	if b.loadErr != nil {
		b.vals = make(map[string]any)
		b.loadErr = nil
	}
	b.vals[key] = val
	data, err := json.MarshalIndent(b.vals, "", "  ")
	if err != nil {
		return err
	}
	return writePrivateFile(b.path, append(data, '\n'))
}
