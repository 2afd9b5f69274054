package auth

import (
	"os"
	"time"
)

// envNames lists, per secret, the variables consulted in order. The
// twit_client_* names are the ones earlier deployments exported.
var envNames = struct {
	consumerKey, consumerSecret, accessToken, accessTokenSecret []string
}{
	consumerKey:       []string{"TWARCHIVE_CONSUMER_KEY", "twit_client_consumer_key"},
	consumerSecret:    []string{"TWARCHIVE_CONSUMER_SECRET", "twit_client_consumer_secret"},
	accessToken:       []string{"TWARCHIVE_ACCESS_TOKEN", "twit_client_access_token"},
	accessTokenSecret: []string{"TWARCHIVE_ACCESS_TOKEN_SECRET", "twit_client_access_token_secret"},
}

// EnvironmentStore implements CredentialStore over environment variables.
// It is read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve builds an account from the environment. The name is taken from
// TWARCHIVE_ACCOUNT, then the argument, then "default".
func (e *EnvironmentStore) Retrieve(name string) (*Account, error) {
	account := &Account{
		Name:              firstEnv("TWARCHIVE_ACCOUNT"),
		ConsumerKey:       firstEnv(envNames.consumerKey...),
		ConsumerSecret:    firstEnv(envNames.consumerSecret...),
		AccessToken:       firstEnv(envNames.accessToken...),
		AccessTokenSecret: firstEnv(envNames.accessTokenSecret...),
		LastModified:      time.Now(),
	}
	if account.Name == "" {
		account.Name = name
	}
	if account.Name == "" {
		account.Name = "default"
	}

	if account.Validate() != nil {
		return nil, ErrCredentialsNotFound
	}
	return account, nil
}

// List returns a single account if the environment is complete
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if complete environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
