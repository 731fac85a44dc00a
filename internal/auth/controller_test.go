package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"magicstream/internal/audit"
	"magicstream/internal/shared/middleware"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
)

type memoryUsers struct {
	mu    sync.Mutex
	byID  map[string]*users.User
	clock func() time.Time
}

func newMemoryUsers(clock func() time.Time) *memoryUsers {
	return &memoryUsers{byID: map[string]*users.User{}, clock: clock}
}

func (m *memoryUsers) CreateUser(_ context.Context, u *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.Email = strings.ToLower(u.Email)
	u.CreatedAt = m.clock()
	u.UpdatedAt = u.CreatedAt
	m.byID[u.Identity()] = u
	return nil
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == strings.ToLower(email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, users.ErrUserNotFound
}

func (m *memoryUsers) GetUserByID(_ context.Context, id string) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memoryUsers) UpdateUserPassword(_ context.Context, id, hashed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.ErrUserNotFound
	}
	u.Password = hashed
	return nil
}

func (m *memoryUsers) UpdateUserRole(_ context.Context, id string, role users.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.ErrUserNotFound
	}
	u.Role = role
	return nil
}

func (m *memoryUsers) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.GetUserByEmail(ctx, email)
	return err == nil, nil
}

// flakyStore fails every call while down is set.
type flakyStore struct {
	tokens.Store
	mu   sync.Mutex
	down bool
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *flakyStore) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return fmt.Errorf("%w: connection refused", tokens.ErrStoreUnavailable)
	}
	return nil
}

func (s *flakyStore) SaveRefreshHash(ctx context.Context, id, hash string) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.Store.SaveRefreshHash(ctx, id, hash)
}

func (s *flakyStore) LoadRefreshHash(ctx context.Context, id string) (string, error) {
	if err := s.err(); err != nil {
		return "", err
	}
	return s.Store.LoadRefreshHash(ctx, id)
}

func (s *flakyStore) SwapRefreshHash(ctx context.Context, id, expected, next string) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.Store.SwapRefreshHash(ctx, id, expected, next)
}

func (s *flakyStore) ClearRefreshHash(ctx context.Context, id string) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.Store.ClearRefreshHash(ctx, id)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	engine *gin.Engine
	repo   *memoryUsers
	store  *flakyStore
	clock  *testClock
	hasher *tokens.Hasher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.Discard()
	clock := &testClock{now: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	repo := newMemoryUsers(clock.Now)
	store := &flakyStore{Store: tokens.NewMemoryStore()}
	hasher := tokens.NewHasher(bcrypt.MinCost)

	tokenService, err := tokens.NewService(tokens.Config{
		AccessSecret:  []byte("access-secret"),
		RefreshSecret: []byte("refresh-secret"),
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
		StoreTimeout:  time.Second,
	}, store, repo, hasher, tokens.WithLogger(log), tokens.WithClock(clock.Now))
	require.NoError(t, err)

	svc := NewService(repo, tokenService, hasher, audit.NopPublisher{}, log)
	controller := NewController(svc, CookieSettings{
		AccessTTL:  24 * time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
	}, log)

	engine := gin.New()
	NewRouter(controller, tokenService, log).SetupRoutes(engine.Group("/api/v1"))

	return &harness{engine: engine, repo: repo, store: store, clock: clock, hasher: hasher}
}

func (h *harness) do(method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func (h *harness) register(t *testing.T, email string) (access, refresh *http.Cookie) {
	t.Helper()
	w := h.do(http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     email,
		Password:  "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	access, refresh = authCookies(w)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

func authCookies(w *httptest.ResponseRecorder) (access, refresh *http.Cookie) {
	for _, c := range w.Result().Cookies() {
		switch c.Name {
		case middleware.AccessTokenCookie:
			access = c
		case middleware.RefreshTokenCookie:
			refresh = c
		}
	}
	return access, refresh
}

func TestRegisterSetsCookiesAndHidesSecrets(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "grace@example.com",
		Password:  "s3cret-pass",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	access, refresh := authCookies(w)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, access.HttpOnly)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, "/", access.Path)
	assert.Equal(t, 24*60*60, access.MaxAge)
	assert.Equal(t, 7*24*60*60, refresh.MaxAge)

	body := w.Body.String()
	assert.NotContains(t, body, refresh.Value)
	assert.NotContains(t, body, access.Value)
	assert.NotContains(t, body, "password")
	assert.Contains(t, body, `"role":"USER"`)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	h := newHarness(t)
	h.register(t, "grace@example.com")

	w := h.do(http.MethodPost, "/api/v1/auth/register", RegisterRequest{
		FirstName: "Grace",
		LastName:  "Hopper",
		Email:     "GRACE@example.com",
		Password:  "another-pass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "/api/v1/auth/register", RegisterRequest{Email: "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.register(t, "grace@example.com")

	w := h.do(http.MethodGet, "/api/v1/auth/me", nil, access)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "grace@example.com")

	h.clock.Advance(25 * time.Hour)
	w = h.do(http.MethodGet, "/api/v1/auth/me", nil, access)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired token")

	w = h.do(http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	newAccess, newRefresh := authCookies(w)
	require.NotNil(t, newAccess)
	require.NotNil(t, newRefresh)
	assert.NotEqual(t, refresh.Value, newRefresh.Value)

	w = h.do(http.MethodGet, "/api/v1/auth/me", nil, newAccess)
	assert.Equal(t, http.StatusOK, w.Code)

	// the rotated-out refresh token is dead
	w = h.do(http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestProtectedWithoutCookie(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/v1/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "No token provided")
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	h.register(t, "grace@example.com")

	w := h.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "grace@example.com", Password: "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	access, _ := authCookies(w)
	assert.Nil(t, access)

	w = h.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "nobody@example.com", Password: "s3cret-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "grace@example.com", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	access, refresh := authCookies(w)
	assert.NotNil(t, access)
	assert.NotNil(t, refresh)
}

func TestLoginPersistFailureHandsOutNoTokens(t *testing.T) {
	h := newHarness(t)
	h.register(t, "grace@example.com")
	h.store.setDown(true)

	w := h.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "grace@example.com", Password: "s3cret-pass"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	access, refresh := authCookies(w)
	assert.Nil(t, access)
	assert.Nil(t, refresh)
}

func TestRefreshStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	_, refresh := h.register(t, "grace@example.com")
	h.store.setDown(true)

	w := h.do(http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	access, _ := authCookies(w)
	assert.Nil(t, access)
}

func TestRefreshWithAccessToken(t *testing.T) {
	h := newHarness(t)
	access, _ := h.register(t, "grace@example.com")

	w := h.do(http.MethodPost, "/api/v1/auth/refresh", nil, &http.Cookie{Name: middleware.RefreshTokenCookie, Value: access.Value})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/v1/auth/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesAndClearsCookies(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.register(t, "grace@example.com")

	w := h.do(http.MethodPost, "/api/v1/auth/logout", nil, access, refresh)
	require.Equal(t, http.StatusOK, w.Code)
	clearedAccess, clearedRefresh := authCookies(w)
	require.NotNil(t, clearedAccess)
	require.NotNil(t, clearedRefresh)
	assert.Empty(t, clearedAccess.Value)
	assert.Less(t, clearedRefresh.MaxAge, 0)

	w = h.do(http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutWithExpiredAccessUsesRefreshCookie(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.register(t, "grace@example.com")
	h.clock.Advance(8 * 24 * time.Hour)

	w := h.do(http.MethodPost, "/api/v1/auth/logout", nil, access, refresh)
	require.Equal(t, http.StatusOK, w.Code)

	id := h.repoOnlyUserID(t)
	_, err := h.store.LoadRefreshHash(context.Background(), id)
	assert.ErrorIs(t, err, tokens.ErrNotFound)
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.register(t, "grace@example.com")

	for name, cookies := range map[string][]*http.Cookie{
		"no cookies":     nil,
		"garbage cookie": {{Name: middleware.RefreshTokenCookie, Value: "garbage"}},
		"valid cookies":  {access, refresh},
	} {
		t.Run(name, func(t *testing.T) {
			h.store.setDown(true)
			defer h.store.setDown(false)

			w := h.do(http.MethodPost, "/api/v1/auth/logout", nil, cookies...)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestChangePasswordRevokesSession(t *testing.T) {
	h := newHarness(t)
	access, refresh := h.register(t, "grace@example.com")

	w := h.do(http.MethodPut, "/api/v1/auth/change-password", ChangePasswordRequest{
		CurrentPassword: "wrong-pass",
		NewPassword:     "new-s3cret",
	}, access)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPut, "/api/v1/auth/change-password", ChangePasswordRequest{
		CurrentPassword: "s3cret-pass",
		NewPassword:     "new-s3cret",
	}, access)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/auth/refresh", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "grace@example.com", Password: "new-s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminRevoke(t *testing.T) {
	h := newHarness(t)
	userAccess, userRefresh := h.register(t, "grace@example.com")
	userID := h.repoOnlyUserID(t)

	h.register(t, "admin@example.com")
	admin, err := h.repo.GetUserByEmail(context.Background(), "admin@example.com")
	require.NoError(t, err)
	require.NoError(t, h.repo.UpdateUserRole(context.Background(), admin.Identity(), users.RoleAdmin))

	// role changes reach the access token on the next login
	w := h.do(http.MethodPost, "/api/v1/auth/login", LoginRequest{Email: "admin@example.com", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	adminAccess, _ := authCookies(w)

	path := "/api/v1/admin/users/" + userID + "/refresh-token"

	w = h.do(http.MethodDelete, path, nil, userAccess)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.do(http.MethodDelete, path, nil, adminAccess)
	require.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/auth/refresh", nil, userRefresh)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodDelete, "/api/v1/admin/users/"+uuid.NewString()+"/refresh-token", nil, adminAccess)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// repoOnlyUserID returns the id of the first registered non-admin user.
func (h *harness) repoOnlyUserID(t *testing.T) string {
	t.Helper()
	h.repo.mu.Lock()
	defer h.repo.mu.Unlock()
	for id, u := range h.repo.byID {
		if u.Email == "grace@example.com" {
			return id
		}
	}
	t.Fatal("grace not registered")
	return ""
}
