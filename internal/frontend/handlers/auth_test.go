package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/roomsync/internal/storage"
)

// mockAccountStore implements storage.AccountStore for testing.
type mockAccountStore struct {
	mu        sync.Mutex
	accounts  map[string]storage.Account
	passwords map[string]string
	err       error
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		accounts:  make(map[string]storage.Account),
		passwords: make(map[string]string),
	}
}

func (m *mockAccountStore) Create(_ context.Context, username, password string) (storage.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return storage.Account{}, m.err
	}
	if _, exists := m.accounts[username]; exists {
		return storage.Account{}, storage.ErrAccountExists
	}
	acct := storage.Account{
		ID:        int64(len(m.accounts) + 1),
		Username:  username,
		CreatedAt: time.Now(),
	}
	m.accounts[username] = acct
	m.passwords[username] = password
	return acct, nil
}

func (m *mockAccountStore) Authenticate(_ context.Context, username, password string) (storage.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return storage.Account{}, m.err
	}
	acct, exists := m.accounts[username]
	if !exists {
		return storage.Account{}, storage.ErrAccountNotFound
	}
	if m.passwords[username] != password {
		return storage.Account{}, storage.ErrInvalidCredentials
	}
	return acct, nil
}

func (m *mockAccountStore) Ping(context.Context) error { return m.err }
func (m *mockAccountStore) Close() error              { return nil }

func newTestRouter(t *testing.T, store storage.AccountStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewAuthHandler(store, zaptest.NewLogger(t)).Register(r)
	return r
}

func post(t *testing.T, r http.Handler, path string, body any) (int, string) {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var resp struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), "body %q", rec.Body.String())
	return rec.Code, resp.Message
}

func TestSignupThenLogin(t *testing.T) {
	r := newTestRouter(t, newMockAccountStore())

	code, msg := post(t, r, "/signup", credentials{Username: "alice", Password: "secret"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgSignUpSuccessful, msg)

	code, msg = post(t, r, "/login", credentials{Username: "alice", Password: "secret"})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgLoginSuccessful, msg)
}

func TestSignup_DuplicateIsConflict(t *testing.T) {
	r := newTestRouter(t, newMockAccountStore())
	code, _ := post(t, r, "/signup", credentials{Username: "alice", Password: "secret"})
	require.Equal(t, http.StatusOK, code)

	code, msg := post(t, r, "/signup", credentials{Username: "alice", Password: "other"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, MsgAccountExists, msg)
}

func TestSignup_BadRequest(t *testing.T) {
	r := newTestRouter(t, newMockAccountStore())
	cases := map[string]any{
		"malformed json":   "{not json",
		"missing username": credentials{Password: "secret"},
		"missing password": credentials{Username: "alice"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			code, msg := post(t, r, "/signup", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	r := newTestRouter(t, newMockAccountStore())
	code, _ := post(t, r, "/signup", credentials{Username: "alice", Password: "secret"})
	require.Equal(t, http.StatusOK, code)

	code, msg := post(t, r, "/login", credentials{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, MsgInvalidCredentials, msg)

	// Unknown accounts are indistinguishable from bad passwords.
	code, msg = post(t, r, "/login", credentials{Username: "bob", Password: "secret"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, MsgInvalidCredentials, msg)
}

func TestLogin_BadRequest(t *testing.T) {
	r := newTestRouter(t, newMockAccountStore())
	code, _ := post(t, r, "/login", "[]")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = post(t, r, "/login", credentials{Username: "alice"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStoreFailureIsInternalError(t *testing.T) {
	store := newMockAccountStore()
	store.err = errors.New("connection refused")
	r := newTestRouter(t, store)

	code, msg := post(t, r, "/login", credentials{Username: "alice", Password: "secret"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgInternalError, msg)

	code, msg = post(t, r, "/signup", credentials{Username: "alice", Password: "secret"})
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, MsgInternalError, msg)
}
