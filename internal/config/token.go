package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	keychainService = "advisorhub"
	tokenAccount    = "api_token"
)

// errSecretNotStored is returned by the secret store for a missing item.
var errSecretNotStored = errors.New("secret not stored")

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store: macOS Keychain on darwin,
// a 0600 JSON file under $XDG_DATA_HOME/advisorhub elsewhere.
func NewKeychain() Keychain { return keychainStore{} }

type keychainStore struct{}

func (keychainStore) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (keychainStore) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// APIToken returns the bearer token shared by the server and the CLI client.
// ADVISORHUB_API_TOKEN wins; otherwise the token is read from kc, and
// generated and stored there on first use.
func (c Config) APIToken(kc Keychain) (string, error) {
	if c.API.Token != "" {
		return c.API.Token, nil
	}
	if tok, err := kc.Get(keychainService, tokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok := hex.EncodeToString(buf)
	if err := kc.Set(keychainService, tokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token"+tokenHint()+": %w", err)
	}
	return tok, nil
}
