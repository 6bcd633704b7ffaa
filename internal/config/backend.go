package config

// appDir names the advisorhub directory under each platform base directory.
const appDir = "advisorhub"

// Backend persists the non-secret keys of the key table (server.port,
// storage.backend, storage.data_dir, log.level, advisor.name) between runs.
// The API token never goes through a Backend; it lives in the Keychain.
type Backend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
}
