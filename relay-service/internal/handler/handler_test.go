package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/weiawesome/wes-dm-relay/pkg/database"
	"github.com/weiawesome/wes-dm-relay/pkg/jwt"
	"github.com/weiawesome/wes-dm-relay/pkg/middleware"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/cache"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/service"
)

type testEnv struct {
	router *gin.Engine
	tokens *jwt.Manager
	hub    *hub.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(&database.Config{
		Driver:       "sqlite",
		FilePath:     fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	tokens, err := jwt.NewManager("test-secret", time.Hour, "relay-test")
	require.NoError(t, err)
	auth := middleware.NewAuthMiddleware(tokens)

	userRepo := repository.NewGormUserRepository(db)
	users := service.NewUserDirectory(userRepo, cache.NewNoopUserCache(), time.Minute)
	h := hub.NewHub()
	t.Cleanup(h.CloseAll)

	delivery := service.NewDeliveryService(h, repository.NewGormMessageRepository(db, nil), nil, config.DeliveryConfig{})
	contacts := service.NewContactService(repository.NewGormChatRequestRepository(db), users, nil, config.ContactsConfig{RequireKnownUsers: true})
	accounts := service.NewAccountService(userRepo, users, tokens, bcrypt.MinCost)

	r := gin.New()
	NewHandler(accounts, contacts, delivery, auth).RegisterRoutes(r)
	NewWSHandler(delivery, auth, config.WebSocketConfig{
		PingInterval:   time.Minute,
		PongWait:       2 * time.Minute,
		WriteWait:      5 * time.Second,
		MaxMessageSize: 4096,
	}).RegisterRoutes(r)

	return &testEnv{router: r, tokens: tokens, hub: h}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (e *testEnv) signupAndLogin(t *testing.T, username string) string {
	t.Helper()

	code, _ := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": username,
		"password": "password1",
		"question": "First pet?",
		"answer":   "Rex",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "password1",
	})
	require.Equal(t, http.StatusOK, code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, body.Success)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	env.signupAndLogin(t, "alice")

	code, body := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "alice", "password": "password1", "question": "q", "answer": "a",
	})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "CONFLICT", body.Error.Code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = env.do(t, http.MethodGet, "/api/v1/auth/recovery-question/alice", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), "First pet?")

	code, _ = env.do(t, http.MethodGet, "/api/v1/auth/recovery-question/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/verify-recovery", "", map[string]string{
		"username": "alice", "answer": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/verify-recovery", "", map[string]string{
		"username": "alice", "answer": "rex",
	})
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"username": "alice", "answer": "Rex", "new_password": "password2",
	})
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "alice", "password": "password2",
	})
	assert.Equal(t, http.StatusOK, code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/v1/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/users", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestUsersListHidesCredentials(t *testing.T) {
	env := newTestEnv(t)
	token := env.signupAndLogin(t, "alice")
	env.signupAndLogin(t, "bob")

	code, body := env.do(t, http.MethodGet, "/api/v1/users", token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `"bob"`)
	assert.NotContains(t, string(body.Data), "password")
	assert.NotContains(t, string(body.Data), "$2a$")
}

func TestRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	bob := env.signupAndLogin(t, "bob")
	carol := env.signupAndLogin(t, "carol")

	pair := map[string]string{"from_user": "alice", "to_user": "bob"}

	code, _ := env.do(t, http.MethodPost, "/api/v1/requests", bob, pair)
	assert.Equal(t, http.StatusForbidden, code, "only the requester may create")

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests", alice, map[string]string{"from_user": "alice", "to_user": "alice"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests", alice, map[string]string{"from_user": "alice", "to_user": "ghost"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests", alice, pair)
	require.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests", alice, pair)
	assert.Equal(t, http.StatusConflict, code)

	code, body := env.do(t, http.MethodGet, "/api/v1/requests/pending/bob", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body.Data), `"from_user":"alice"`)

	code, _ = env.do(t, http.MethodGet, "/api/v1/requests/pending/bob", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/accept", carol, pair)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/accept", bob, pair)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/accept", bob, pair)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = env.do(t, http.MethodGet, "/api/v1/contacts/alice", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"user":"bob","status":"accepted"}]`, string(body.Data))

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/status", alice, map[string]string{
		"from_user": "alice", "to_user": "bob", "new_status": "whatever",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/status", alice, map[string]string{
		"from_user": "alice", "to_user": "bob", "new_status": "blocked",
	})
	assert.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodPost, "/api/v1/requests", bob, map[string]string{"from_user": "bob", "to_user": "alice"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "FORBIDDEN", body.Error.Code)
}

func TestRejectThenStatusIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	bob := env.signupAndLogin(t, "bob")
	pair := map[string]string{"from_user": "alice", "to_user": "bob"}

	code, _ := env.do(t, http.MethodPost, "/api/v1/requests", alice, pair)
	require.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/reject", bob, pair)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/reject", bob, pair)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/status", alice, map[string]string{
		"from_user": "alice", "to_user": "bob", "new_status": "accepted",
	})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHistoryRequiresParty(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	carol := env.signupAndLogin(t, "carol")

	code, body := env.do(t, http.MethodGet, "/api/v1/history/alice/bob", alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(body.Data))

	code, _ = env.do(t, http.MethodGet, "/api/v1/history/alice/bob", carol, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestOverlongPasswordIsBadRequest(t *testing.T) {
	env := newTestEnv(t)

	// 40 runes pass the max=72 binding but encode to 80 bytes.
	long := strings.Repeat("é", 40)
	code, body := env.do(t, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"username": "alice", "password": long, "question": "q", "answer": "a",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "BAD_REQUEST", body.Error.Code)

	env.signupAndLogin(t, "bob")
	code, _ = env.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", map[string]string{
		"username": "bob", "answer": "Rex", "new_password": long,
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPaddedUsernamesInRequestBodies(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signupAndLogin(t, "alice")
	bob := env.signupAndLogin(t, "bob")

	code, _ := env.do(t, http.MethodPost, "/api/v1/requests", alice, map[string]string{"from_user": " alice", "to_user": "bob "})
	require.Equal(t, http.StatusCreated, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/requests/accept", bob, map[string]string{"from_user": "alice ", "to_user": " bob"})
	assert.Equal(t, http.StatusOK, code)
}
