package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	mem := NewMemoryStore()
	manager := NewManagerWithStores(mem)

	account := &Account{
		Username:      "testuser",
		SessionCookie: "PHPSESSID=12345678_abcdefghijklmnop",
		UserAgent:     "TestAgent/1.0",
	}
	if err := manager.Store(account); err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}

	retrieved, err := manager.Retrieve("testuser")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.SessionCookie != "12345678_abcdefghijklmnop" {
		t.Errorf("cookie not normalized: got %s", retrieved.SessionCookie)
	}
	if retrieved.LastModified.IsZero() {
		t.Error("LastModified should be set on store")
	}

	sanitized := SanitizeAccount(retrieved)
	if sanitized.SessionCookie == retrieved.SessionCookie {
		t.Error("SessionCookie should be masked")
	}
	if sanitized.Username != "testuser" {
		t.Error("Username should not be masked")
	}

	if err := manager.Delete("testuser"); err != nil {
		t.Fatalf("Failed to delete account: %v", err)
	}
	if _, err := manager.Retrieve("testuser"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
	if mem.Count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", mem.Count())
	}
}

func TestManagerValidation(t *testing.T) {
	manager := NewManagerWithStores(NewMemoryStore())
	if err := manager.Store(&Account{SessionCookie: "x"}); err == nil {
		t.Error("expected error for missing username")
	}
	if err := manager.Store(&Account{Username: "u"}); err == nil {
		t.Error("expected error for missing cookie")
	}
}

func TestManagerFallsThroughFailingStore(t *testing.T) {
	broken := NewMemoryStore()
	broken.StoreError = errors.New("keychain locked")
	backup := NewMemoryStore()
	manager := NewManagerWithStores(broken, backup)

	if err := manager.Store(&Account{Username: "u", SessionCookie: "c"}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !backup.Exists("u") {
		t.Error("account should land in the second store")
	}
}

func TestRetrieveDefault(t *testing.T) {
	t.Setenv(cookieEnv, "")
	mem := NewMemoryStore()
	_ = mem.Store(&Account{Username: "old", SessionCookie: "a", LastModified: time.Now().Add(-time.Hour)})
	_ = mem.Store(&Account{Username: "new", SessionCookie: "b", LastModified: time.Now()})
	manager := NewManagerWithStores(mem, NewEnvironmentStore())

	acc, err := manager.RetrieveDefault()
	if err != nil {
		t.Fatalf("RetrieveDefault: %v", err)
	}
	if acc.Username != "new" {
		t.Errorf("expected newest account, got %s", acc.Username)
	}

	t.Setenv(cookieEnv, "envcookie")
	acc, err = manager.RetrieveDefault()
	if err != nil {
		t.Fatalf("RetrieveDefault: %v", err)
	}
	if acc.SessionCookie != "envcookie" {
		t.Errorf("environment session should win, got %s", acc.SessionCookie)
	}

	empty := NewManagerWithStores(NewMemoryStore())
	t.Setenv(cookieEnv, "")
	if _, err := empty.RetrieveDefault(); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "test_passphrase_123")
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	account := &Account{Username: "encrypted_user", SessionCookie: "encrypted_session"}
	if err := store.Store(account); err != nil {
		t.Fatalf("Failed to store in encrypted file: %v", err)
	}
	if err := store.Store(&Account{Username: "second", SessionCookie: "other"}); err != nil {
		t.Fatalf("second store: %v", err)
	}

	retrieved, err := store.Retrieve("encrypted_user")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.SessionCookie != account.SessionCookie {
		t.Errorf("SessionCookie mismatch after encryption/decryption")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(content, []byte("encrypted_session")) {
		t.Error("File contains plaintext session cookie")
	}

	accounts, _ := store.List()
	if len(accounts) != 2 {
		t.Errorf("expected 2 accounts, got %d", len(accounts))
	}

	wrong, _ := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	if _, err := wrong.Retrieve("encrypted_user"); err == nil {
		t.Error("wrong passphrase should not decrypt")
	}

	_ = store.Delete("second")
	if err := store.Delete("encrypted_user"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("file should be removed with the last account")
	}
}

func TestEncryptedFileStorePassphraseFromEnv(t *testing.T) {
	t.Setenv(passphraseEnv, "from_env")
	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "c.enc"))
	if err != nil {
		t.Fatalf("NewEncryptedFileStore: %v", err)
	}
	if store.passphrase != "from_env" {
		t.Errorf("passphrase = %q", store.passphrase)
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(cookieEnv, "PHPSESSID=env_session; other=1")
	t.Setenv(userAgentEnv, "EnvAgent")
	t.Setenv(usernameEnv, "")

	store := NewEnvironmentStore()
	account, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if account.SessionCookie != "env_session" {
		t.Errorf("SessionCookie mismatch: got %s", account.SessionCookie)
	}
	if account.UserAgent != "EnvAgent" {
		t.Errorf("UserAgent mismatch: got %s", account.UserAgent)
	}
	if _, err := store.Retrieve("someone"); err == nil {
		t.Error("named lookup should not match the default env account")
	}
	if err := store.Store(&Account{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
}

func TestNormalizeCookie(t *testing.T) {
	cases := map[string]string{
		"abc":                       "abc",
		" PHPSESSID=abc ":           "abc",
		"foo=1; PHPSESSID=xyz; b=2": "xyz",
		"device_token=1; other=2":   "device_token=1; other=2",
	}
	for in, want := range cases {
		if got := NormalizeCookie(in); got != want {
			t.Errorf("NormalizeCookie(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCookieGuideMentionsSite(t *testing.T) {
	var buf bytes.Buffer
	ShowCookieExtractionGuide(&buf, "https://example.net")
	if !strings.Contains(buf.String(), "https://example.net") || !strings.Contains(buf.String(), "PHPSESSID") {
		t.Error("guide should name the site and the cookie")
	}
}
