package auth

import (
	"os"
	"time"
)

const (
	cookieEnv    = "ARTSYNC_COOKIE"
	userAgentEnv = "ARTSYNC_USER_AGENT"
	usernameEnv  = "ARTSYNC_USERNAME"
)

// EnvironmentStore reads a single read-only session from ARTSYNC_COOKIE
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(*Account) error {
	return ErrStoreUnavailable
}

// Retrieve ignores username unless ARTSYNC_USERNAME pins one
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	cookie := os.Getenv(cookieEnv)
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}

	name := os.Getenv(usernameEnv)
	if name == "" {
		name = "default"
	}
	if username != "" && username != name {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:      name,
		SessionCookie: NormalizeCookie(cookie),
		UserAgent:     os.Getenv(userAgentEnv),
		LastModified:  time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

func (e *EnvironmentStore) Delete(string) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
