package auth

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"twarchive/pkg/config"
)

func testAccount(name string) *Account {
	return &Account{
		Name:              name,
		ConsumerKey:       "consumer_key_12345",
		ConsumerSecret:    "consumer_secret_67890",
		AccessToken:       "access_token_abcdef",
		AccessTokenSecret: "access_token_secret_ghijkl",
		LastModified:      time.Now(),
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TWARCHIVE_ACCOUNT", "")
	for _, keys := range [][]string{envNames.consumerKey, envNames.consumerSecret, envNames.accessToken, envNames.accessTokenSecret} {
		for _, k := range keys {
			t.Setenv(k, "")
		}
	}
}

func TestCredentialManager(t *testing.T) {
	manager, mockStore := NewMockManager()
	account := testAccount("archivist")

	require.NoError(t, manager.Store(account))

	retrieved, err := manager.Retrieve("archivist")
	require.NoError(t, err)
	assert.Equal(t, account.ConsumerKey, retrieved.ConsumerKey)
	assert.Equal(t, account.AccessTokenSecret, retrieved.AccessTokenSecret)

	accounts, err := manager.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 1)

	require.NoError(t, manager.Delete("archivist"))
	_, err = manager.Retrieve("archivist")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.Equal(t, 0, mockStore.Count())
}

func TestManagerStoreRejectsIncompleteAccount(t *testing.T) {
	manager, mockStore := NewMockManager()

	account := testAccount("archivist")
	account.AccessTokenSecret = ""

	err := manager.Store(account)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token secret")
	assert.Equal(t, 0, mockStore.Count())
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("keychain locked")
	working := NewMockStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(testAccount("archivist")))
	assert.Equal(t, 0, broken.Count())
	assert.True(t, working.Exists("archivist"))
}

func TestManagerListPrefersNewestCopy(t *testing.T) {
	older, newer := NewMockStore(), NewMockStore()

	stale := testAccount("archivist")
	stale.LastModified = time.Now().Add(-time.Hour)
	stale.AccessToken = "stale"
	require.NoError(t, older.Store(stale))

	fresh := testAccount("archivist")
	fresh.AccessToken = "fresh"
	require.NoError(t, newer.Store(fresh))

	other := testAccount("second")
	other.LastModified = time.Now().Add(-2 * time.Hour)
	require.NoError(t, older.Store(other))

	accounts, err := NewManagerWithStores(older, newer).List()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "archivist", accounts[0].Name)
	assert.Equal(t, "fresh", accounts[0].AccessToken)
	assert.Equal(t, "second", accounts[1].Name)
}

func TestManagerRetrieveDefault(t *testing.T) {
	clearEnv(t)
	mockStore := NewMockStore()
	manager := NewManagerWithStores(mockStore, NewEnvironmentStore())

	_, err := manager.RetrieveDefault()
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, mockStore.Store(testAccount("stored")))
	account, err := manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "stored", account.Name)

	t.Setenv("TWARCHIVE_CONSUMER_KEY", "ck")
	t.Setenv("TWARCHIVE_CONSUMER_SECRET", "cs")
	t.Setenv("TWARCHIVE_ACCESS_TOKEN", "at")
	t.Setenv("TWARCHIVE_ACCESS_TOKEN_SECRET", "ats")
	account, err = manager.RetrieveDefault()
	require.NoError(t, err)
	assert.Equal(t, "ck", account.ConsumerKey)
}

func TestManagerDeleteMissing(t *testing.T) {
	manager := NewManagerWithStores(NewMockStore(), NewEnvironmentStore())
	err := manager.Delete("nobody")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestSanitizeAccount(t *testing.T) {
	account := testAccount("archivist")
	sanitized := SanitizeAccount(account)

	assert.Equal(t, "archivist", sanitized.Name)
	assert.Equal(t, "cons...2345", sanitized.ConsumerKey)
	assert.NotEqual(t, account.ConsumerSecret, sanitized.ConsumerSecret)
	assert.NotEqual(t, account.AccessToken, sanitized.AccessToken)
	assert.NotEqual(t, account.AccessTokenSecret, sanitized.AccessTokenSecret)
	assert.Equal(t, "********", maskString("short"))
	assert.Nil(t, SanitizeAccount(nil))
}

func TestApplyToFillsOnlyMissing(t *testing.T) {
	tc := config.TwitterConfig{ConsumerKey: "from-config"}
	testAccount("archivist").ApplyTo(&tc)

	assert.Equal(t, "from-config", tc.ConsumerKey)
	assert.Equal(t, "consumer_secret_67890", tc.ConsumerSecret)
	assert.Equal(t, "access_token_abcdef", tc.AccessToken)
	assert.Equal(t, "access_token_secret_ghijkl", tc.AccessTokenSecret)
	assert.Equal(t, "archivist", tc.Account)
}

func TestEncryptedFileStore(t *testing.T) {
	t.Setenv(PassphraseEnv, "test_passphrase_123")
	path := filepath.Join(t.TempDir(), "creds", "credentials.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	assert.False(t, store.Exists("archivist"))
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	account := testAccount("archivist")
	require.NoError(t, store.Store(account))
	require.NoError(t, store.Store(testAccount("second")))

	retrieved, err := store.Retrieve("archivist")
	require.NoError(t, err)
	assert.Equal(t, account.AccessTokenSecret, retrieved.AccessTokenSecret)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), account.ConsumerSecret)
	assert.NotContains(t, string(content), account.AccessTokenSecret)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, store.Delete("archivist"))
	assert.ErrorIs(t, store.Delete("archivist"), ErrCredentialsNotFound)
	require.NoError(t, store.Delete("second"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.enc")

	t.Setenv(PassphraseEnv, "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testAccount("archivist")))

	t.Setenv(PassphraseEnv, "second")
	other, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	_, err = other.Retrieve("archivist")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong passphrase")
}

func TestEnvironmentStore(t *testing.T) {
	clearEnv(t)
	store := NewEnvironmentStore()

	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	accounts, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	t.Setenv("TWARCHIVE_CONSUMER_KEY", "env_ck")
	t.Setenv("twit_client_consumer_secret", "legacy_cs")
	t.Setenv("TWARCHIVE_ACCESS_TOKEN", "env_at")
	t.Setenv("twit_client_access_token_secret", "legacy_ats")

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", account.Name)
	assert.Equal(t, "env_ck", account.ConsumerKey)
	assert.Equal(t, "legacy_cs", account.ConsumerSecret)
	assert.Equal(t, "legacy_ats", account.AccessTokenSecret)
	assert.True(t, store.Exists("x"))

	t.Setenv("TWARCHIVE_ACCOUNT", "from_env")
	account, err = store.Retrieve("ignored")
	require.NoError(t, err)
	assert.Equal(t, "from_env", account.Name)

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	_, err = store.Retrieve("archivist")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(testAccount("archivist")))
	require.NoError(t, store.Store(testAccount("second")))
	assert.True(t, store.Exists("archivist"))

	accounts, err := store.List()
	require.NoError(t, err)
	assert.Len(t, accounts, 2)

	require.NoError(t, store.Delete("archivist"))
	assert.False(t, store.Exists("archivist"))
	assert.ErrorIs(t, store.Delete("archivist"), ErrCredentialsNotFound)

	accounts, err = store.List()
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "second", accounts[0].Name)
}

func TestShowCredentialGuide(t *testing.T) {
	var buf bytes.Buffer
	ShowCredentialGuide(&buf)
	assert.Contains(t, buf.String(), "access token secret")

	buf.Reset()
	ShowQuickGuide(&buf)
	assert.Contains(t, buf.String(), "Access Token Secret")
}
