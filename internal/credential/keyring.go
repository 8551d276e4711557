package credential

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/99designs/keyring"

	"github.com/toba/linsync/internal/constants"
)

// Keyring item keys.
const (
	tokenKey         = "api-token"
	webhookSecretKey = "webhook-secret"
)

// OpenKeyring opens the system keyring for linsync. The encrypted-file backend
// is the last resort and lives next to the credentials file.
func OpenKeyring(dir string) (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: constants.AppName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "keyring"),
		FilePasswordFunc:         keyring.FixedStringPrompt(constants.AppName + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func ringGet(ring keyring.Keyring, key string) (string, error) {
	item, err := ring.Get(key)
	if missingKey(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting %q from keyring: %w", key, err)
	}
	return string(item.Data), nil
}

func ringSet(ring keyring.Keyring, key, value string) error {
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: constants.AppName + " " + key}); err != nil {
		return fmt.Errorf("storing %q in keyring: %w", key, err)
	}
	return nil
}

func ringRemove(ring keyring.Keyring, key string) error {
	err := ring.Remove(key)
	if err != nil && !missingKey(err) {
		return fmt.Errorf("removing %q from keyring: %w", key, err)
	}
	return nil
}

// missingKey reports whether err means the item was never stored. The file
// backend returns the raw *fs.PathError instead of ErrKeyNotFound.
func missingKey(err error) bool {
	return errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, fs.ErrNotExist)
}
