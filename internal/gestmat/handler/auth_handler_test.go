package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/mairie-adjarra/gestmat/internal/config"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/entity"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/repository"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/service"
	"github.com/mairie-adjarra/gestmat/internal/gestmat/testutil"
	"golang.org/x/crypto/bcrypt"
)

func setupAuthTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	cfg := &config.Config{}
	cfg.JWT.Secret = testutil.JWTSecret
	cfg.JWT.Issuer = "gestmat"
	cfg.JWT.AccessTokenExpire = 24 * time.Hour

	authSvc := service.NewAuthService(repos.User, cfg)
	h := NewAuthHandler(authSvc)

	router := testutil.SetupRouter()
	router.POST("/api/v1/auth/login", h.Login)
	api := testutil.AuthGroup(router, "/api/v1")
	api.GET("/auth/me", h.Me)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

func seedLoginUser(t *testing.T, env *testutil.TestEnv, email, password string) *entity.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := &entity.User{
		ID:           "user-login-001",
		Name:         "Login User",
		Email:        email,
		PasswordHash: string(hash),
		Role:         entity.RoleAgent,
		Active:       true,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := env.DB.Create(user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

// TestLoginAndMe logs in, then uses the issued token on /auth/me.
func TestLoginAndMe(t *testing.T) {
	env := setupAuthTest(t)
	seedLoginUser(t, env, "agent@mairie.test", "motdepasse1")

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/auth/login",
		map[string]interface{}{"email": "agent@mairie.test", "password": "motdepasse1"}, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("expected a token")
	}
	if data["user"].(map[string]interface{})["role"] != entity.RoleAgent {
		t.Fatalf("expected agent role in payload")
	}

	w2 := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/auth/me", nil, token)
	if w2.Code != http.StatusOK {
		t.Fatalf("expected 200 on /auth/me, got %d: %s", w2.Code, w2.Body.String())
	}
	resp2 := testutil.ParseResponse(w2)
	if resp2["data"].(map[string]interface{})["email"] != "agent@mairie.test" {
		t.Fatalf("expected profile email, got %v", resp2["data"])
	}
}

// TestLoginBadPassword rejects wrong credentials with 401 and no hint
// about which part was wrong.
func TestLoginBadPassword(t *testing.T) {
	env := setupAuthTest(t)
	seedLoginUser(t, env, "agent@mairie.test", "motdepasse1")

	w := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/auth/login",
		map[string]interface{}{"email": "agent@mairie.test", "password": "wrong"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}

	w2 := testutil.DoRequest(env.Router, http.MethodPost, "/api/v1/auth/login",
		map[string]interface{}{"email": "nobody@mairie.test", "password": "motdepasse1"}, "")
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown email, got %d: %s", w2.Code, w2.Body.String())
	}
}

// TestMeRequiresToken rejects missing credentials.
func TestMeRequiresToken(t *testing.T) {
	env := setupAuthTest(t)

	w := testutil.DoRequest(env.Router, http.MethodGet, "/api/v1/auth/me", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}
