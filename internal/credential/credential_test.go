package credential

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/99designs/keyring"

	"github.com/toba/linsync/internal/constants"
)

var testKey = bytes.Repeat([]byte{7}, 32)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := Open(path, append([]Option{WithKey(testKey)}, opts...)...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := c.Encrypt("lin_api_secret")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(enc, "secret") {
		t.Error("ciphertext leaks plaintext")
	}
	got, err := c.Decrypt(enc)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if got != "lin_api_secret" {
		t.Errorf("Decrypt() = %q", got)
	}

	enc2, _ := c.Encrypt("lin_api_secret")
	if enc == enc2 {
		t.Error("two encryptions should use distinct nonces")
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	a, _ := NewCipher(testKey)
	b, _ := NewCipher(bytes.Repeat([]byte{9}, 32))

	enc, _ := a.Encrypt("token")
	if _, err := b.Decrypt(enc); err == nil {
		t.Error("decrypting with another key should fail")
	}
	if _, err := a.Decrypt("AAAA"); err == nil {
		t.Error("short ciphertext should fail")
	}
}

func TestHostKey_Deterministic(t *testing.T) {
	if !bytes.Equal(HostKey(), HostKey()) {
		t.Error("HostKey() should be stable on one machine")
	}
	if len(HostKey()) != 32 {
		t.Errorf("len(HostKey()) = %d, want 32", len(HostKey()))
	}
}

func TestValidateToken(t *testing.T) {
	tests := []struct {
		token string
		ok    bool
	}{
		{"lin_api_abcdef", true},
		{"oauth_access_token", true},
		{"", false},
		{"lin_api_", false},
		{"lin_api_abc def", false},
		{"tok\n", false},
	}
	for _, tt := range tests {
		err := ValidateToken(tt.token)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateToken(%q) = %v, want ok=%v", tt.token, err, tt.ok)
		}
		if err != nil && !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateToken(%q) error should wrap ErrInvalidToken", tt.token)
		}
	}
}

func TestStore_Empty(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() error = %v, want ErrNoToken", err)
	}
	if _, err := s.TeamID(); !errors.Is(err, ErrNoTeam) {
		t.Errorf("TeamID() error = %v, want ErrNoTeam", err)
	}
	c, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if c.Configured {
		t.Error("empty credentials should not be configured")
	}
}

func TestStore_TokenAndTeam(t *testing.T) {
	s := newTestStore(t)

	if err := s.SetToken("lin_api_abc123", "user-1"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	c, _ := s.Load()
	if c.Configured {
		t.Error("configured should stay false until a team is set")
	}

	if err := s.SetTeam("team-1"); err != nil {
		t.Fatalf("SetTeam() error = %v", err)
	}

	tok, err := s.Token()
	if err != nil || tok != "lin_api_abc123" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
	team, err := s.TeamID()
	if err != nil || team != "team-1" {
		t.Errorf("TeamID() = %q, %v", team, err)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("abc123")) {
		t.Error("token stored in plain text")
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["configured"] != true || doc["userId"] != "user-1" || doc["backend"] != constants.BackendFile {
		t.Errorf("document = %v", doc)
	}
	if doc["lastAuthAt"] == nil {
		t.Error("lastAuthAt should be stamped")
	}

	info, err := os.Stat(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestStore_RejectsMalformedToken(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetToken("has space", ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("SetToken() error = %v, want ErrInvalidToken", err)
	}
	if _, err := os.Stat(s.Path()); !os.IsNotExist(err) {
		t.Error("rejected token should not create the file")
	}
}

func TestStore_OtherMachineCannotRead(t *testing.T) {
	s := newTestStore(t)
	if err := s.SetToken("lin_api_abc123", ""); err != nil {
		t.Fatal(err)
	}

	other, err := Open(s.Path(), WithKey(bytes.Repeat([]byte{1}, 32)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.Token(); err == nil {
		t.Error("Token() with another key should fail")
	}
}

func TestStore_Webhook(t *testing.T) {
	s := newTestStore(t)

	secret, err := s.WebhookSecret()
	if err != nil || secret != "" {
		t.Errorf("WebhookSecret() = %q, %v; want empty", secret, err)
	}

	if err := s.SetWebhook("wh-1", "s3cret", "https://example.com/hook"); err != nil {
		t.Fatalf("SetWebhook() error = %v", err)
	}
	secret, err = s.WebhookSecret()
	if err != nil || secret != "s3cret" {
		t.Errorf("WebhookSecret() = %q, %v", secret, err)
	}
	c, _ := s.Load()
	if c.WebhookID != "wh-1" || c.WebhookURL != "https://example.com/hook" || c.WebhookSecret == "s3cret" {
		t.Errorf("credentials = %+v", c)
	}

	if err := s.ClearWebhook(); err != nil {
		t.Fatal(err)
	}
	c, _ = s.Load()
	if c.WebhookID != "" || c.WebhookSecret != "" {
		t.Errorf("webhook not cleared: %+v", c)
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	_ = s.SetToken("lin_api_abc123", "")
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := s.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() after Clear = %v, want ErrNoToken", err)
	}
	if err := s.Clear(); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestStore_KeyringBackend(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	s := newTestStore(t, WithKeyring(ring))

	if err := s.SetToken("lin_api_ring", "u"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	if err := s.SetTeam("team-1"); err != nil {
		t.Fatal(err)
	}
	if err := s.SetWebhook("wh", "ring-secret", "https://x"); err != nil {
		t.Fatal(err)
	}

	tok, err := s.Token()
	if err != nil || tok != "lin_api_ring" {
		t.Errorf("Token() = %q, %v", tok, err)
	}
	item, err := ring.Get(tokenKey)
	if err != nil || string(item.Data) != "lin_api_ring" {
		t.Errorf("keyring item = %q, %v", item.Data, err)
	}

	c, _ := s.Load()
	if c.EncryptedToken != "" || c.WebhookSecret != "" {
		t.Error("secrets should not be written to the file with the keyring backend")
	}
	if !c.Configured || c.Backend != constants.BackendKeyring {
		t.Errorf("credentials = %+v", c)
	}

	if err := s.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, err := ring.Get(tokenKey); !errors.Is(err, keyring.ErrKeyNotFound) {
		t.Errorf("keyring token after Clear: %v", err)
	}
}

func TestStore_FileKeyringClearWithoutWebhook(t *testing.T) {
	dir := t.TempDir()
	ring, err := keyring.Open(keyring.Config{
		ServiceName:      "linsync-test",
		AllowedBackends:  []keyring.BackendType{keyring.FileBackend},
		FileDir:          filepath.Join(dir, "keyring"),
		FilePasswordFunc: keyring.FixedStringPrompt("test"),
	})
	if err != nil {
		t.Fatalf("keyring.Open() error = %v", err)
	}
	path := filepath.Join(dir, "credentials.json")
	s, err := Open(path, WithKey(testKey), WithKeyring(ring))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.SetToken("lin_api_abc", "u1"); err != nil {
		t.Fatalf("SetToken() error = %v", err)
	}
	if secret, err := s.WebhookSecret(); err != nil || secret != "" {
		t.Errorf("WebhookSecret() before register = %q, %v", secret, err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() after login without webhook = %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("credentials file after Clear: %v", err)
	}
	if _, err := s.Token(); !errors.Is(err, ErrNoToken) {
		t.Errorf("Token() after Clear = %v, want ErrNoToken", err)
	}
}
