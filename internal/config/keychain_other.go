//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Without a system keychain the API token is kept in
// $XDG_DATA_HOME/advisorhub/secrets.json, mode 0600, as
// {"<service>": {"<account>": "<secret>"}}.

type secretsFile map[string]map[string]string

func secretsFilePath() string {
	p, err := xdgPath("XDG_DATA_HOME", filepath.Join(".local", "share"), "secrets.json")
	if err != nil {
		return filepath.Join(appDir, "secrets.json")
	}
	return p
}

func readSecrets(path string) (secretsFile, error) {
	s := make(secretsFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

func keychainGet(service, account string) ([]byte, error) {
	s, err := readSecrets(secretsFilePath())
	if err != nil {
		return nil, err
	}
	v, ok := s[service][account]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", errSecretNotStored, service, account)
	}
	return []byte(v), nil
}

// keychainSet refuses to touch a secrets file it cannot parse.
func keychainSet(service, account, value string) error {
	path := secretsFilePath()
	s, err := readSecrets(path)
	if err != nil {
		return err
	}
	if s[service] == nil {
		s[service] = make(map[string]string)
	}
	s[service][account] = value

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return writePrivateFile(path, append(data, '\n'))
}
