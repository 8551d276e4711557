// Package credential persists the Linear API token, default team and webhook
// settings. Secrets are sealed with a host-derived key in the credentials file,
// or kept in the system keyring when the keyring backend is selected.
package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/99designs/keyring"

	"github.com/toba/linsync/internal/constants"
)

const personalKeyPrefix = "lin_api_"

var (
	// ErrNoToken is returned when no API token has been stored.
	ErrNoToken = errors.New("no API token configured; run 'linsync auth login'")
	// ErrNoTeam is returned when no default team has been chosen.
	ErrNoTeam = errors.New("no default team configured; run 'linsync auth login --team <key>'")
	// ErrInvalidToken is returned for tokens that cannot be a Linear credential.
	ErrInvalidToken = errors.New("invalid API token")
)

// Credentials is the on-disk credentials document.
type Credentials struct {
	EncryptedToken string     `json:"encryptedToken,omitempty"`
	TeamID         string     `json:"teamId,omitempty"`
	Configured     bool       `json:"configured"`
	UserID         string     `json:"userId,omitempty"`
	LastAuthAt     *time.Time `json:"lastAuthAt,omitempty"`
	WebhookID      string     `json:"webhookId,omitempty"`
	WebhookSecret  string     `json:"webhookSecret,omitempty"` // encrypted
	WebhookURL     string     `json:"webhookUrl,omitempty"`
	Backend        string     `json:"backend,omitempty"`
}

// Store reads and writes the credentials document.
type Store struct {
	path    string
	backend string
	cipher  *Cipher
	ring    keyring.Keyring

	mu sync.Mutex
}

// Option configures a Store.
type Option func(*Store) error

// WithKey replaces the host-derived encryption key.
func WithKey(key []byte) Option {
	return func(s *Store) error {
		c, err := NewCipher(key)
		if err != nil {
			return err
		}
		s.cipher = c
		return nil
	}
}

// WithKeyring stores secrets in ring instead of the credentials file.
func WithKeyring(ring keyring.Keyring) Option {
	return func(s *Store) error {
		s.ring = ring
		s.backend = constants.BackendKeyring
		return nil
	}
}

// Open returns a Store for the credentials file at path.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{path: path, backend: constants.BackendFile}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cipher == nil {
		c, err := NewCipher(HostKey())
		if err != nil {
			return nil, err
		}
		s.cipher = c
	}
	return s, nil
}

// Path returns the credentials file path.
func (s *Store) Path() string {
	return s.path
}

// Backend returns where secrets are kept.
func (s *Store) Backend() string {
	return s.backend
}

// ValidateToken checks that token has the shape of a Linear credential.
func ValidateToken(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	if strings.IndexFunc(token, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: contains whitespace", ErrInvalidToken)
	}
	if strings.HasPrefix(token, personalKeyPrefix) && len(token) == len(personalKeyPrefix) {
		return fmt.Errorf("%w: key body missing", ErrInvalidToken)
	}
	return nil
}

// Load reads the credentials document. A missing file yields empty credentials.
func (s *Store) Load() (*Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (*Credentials, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Credentials{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing credentials %s: %w", s.path, err)
	}
	return &c, nil
}

func (s *Store) save(c *Credentials) error {
	c.Backend = s.backend
	c.Configured = c.TeamID != "" && s.hasToken(c)

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".credentials-*.json")
	if err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

func (s *Store) hasToken(c *Credentials) bool {
	if s.ring != nil {
		tok, err := ringGet(s.ring, tokenKey)
		return err == nil && tok != ""
	}
	return c.EncryptedToken != ""
}

// update loads, mutates and saves the document under the store lock.
func (s *Store) update(fn func(c *Credentials) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return s.save(c)
}

// Token returns the decrypted API token.
func (s *Store) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ring != nil {
		tok, err := ringGet(s.ring, tokenKey)
		if err != nil {
			return "", err
		}
		if tok == "" {
			return "", ErrNoToken
		}
		return tok, nil
	}

	c, err := s.load()
	if err != nil {
		return "", err
	}
	if c.EncryptedToken == "" {
		return "", ErrNoToken
	}
	tok, err := s.cipher.Decrypt(c.EncryptedToken)
	if err != nil {
		return "", fmt.Errorf("stored token is unreadable on this machine; run 'linsync auth login' again: %w", err)
	}
	return tok, nil
}

// TeamID returns the default team id.
func (s *Store) TeamID() (string, error) {
	c, err := s.Load()
	if err != nil {
		return "", err
	}
	if c.TeamID == "" {
		return "", ErrNoTeam
	}
	return c.TeamID, nil
}

// SetToken validates and stores token along with the id of the user it belongs to.
func (s *Store) SetToken(token, userID string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	return s.update(func(c *Credentials) error {
		if s.ring != nil {
			if err := ringSet(s.ring, tokenKey, token); err != nil {
				return err
			}
			c.EncryptedToken = ""
		} else {
			enc, err := s.cipher.Encrypt(token)
			if err != nil {
				return err
			}
			c.EncryptedToken = enc
		}
		now := time.Now().UTC().Truncate(time.Second)
		c.UserID = userID
		c.LastAuthAt = &now
		return nil
	})
}

// SetTeam stores the default team id.
func (s *Store) SetTeam(teamID string) error {
	return s.update(func(c *Credentials) error {
		c.TeamID = teamID
		return nil
	})
}

// SetWebhook records a registered webhook and its signing secret.
func (s *Store) SetWebhook(id, secret, url string) error {
	return s.update(func(c *Credentials) error {
		c.WebhookID = id
		c.WebhookURL = url
		if s.ring != nil {
			c.WebhookSecret = ""
			return ringSet(s.ring, webhookSecretKey, secret)
		}
		enc, err := s.cipher.Encrypt(secret)
		if err != nil {
			return err
		}
		c.WebhookSecret = enc
		return nil
	})
}

// WebhookSecret returns the webhook signing secret, or "" if none is stored.
func (s *Store) WebhookSecret() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ring != nil {
		return ringGet(s.ring, webhookSecretKey)
	}
	c, err := s.load()
	if err != nil {
		return "", err
	}
	if c.WebhookSecret == "" {
		return "", nil
	}
	return s.cipher.Decrypt(c.WebhookSecret)
}

// ClearWebhook forgets the registered webhook.
func (s *Store) ClearWebhook() error {
	return s.update(func(c *Credentials) error {
		c.WebhookID, c.WebhookURL, c.WebhookSecret = "", "", ""
		if s.ring != nil {
			return ringRemove(s.ring, webhookSecretKey)
		}
		return nil
	})
}

// Clear removes all stored credentials.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ring != nil {
		if err := ringRemove(s.ring, tokenKey); err != nil {
			return err
		}
		if err := ringRemove(s.ring, webhookSecretKey); err != nil {
			return err
		}
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}
