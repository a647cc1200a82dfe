package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/auth"
	"github.com/stockaudit/stockaudit-backend/internal/db/repositories"
)

// newAuthRouter wires AuthMiddleware against a sqlmock-backed user repository and a
// single protected route that echoes the identity placed in the request context.
func newAuthRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := repositories.NewUserRepository(sqlxDB)

	r := gin.New()
	r.Use(AuthMiddleware(repo))
	r.GET("/protected", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString("user_id"),
			"role":    c.GetString("role"),
		})
	})
	return r, mock
}

var userTestColumns = []string{"id", "username", "name", "password_hash", "role", "active", "created_at", "updated_at"}

// UUID columns are fed as strings: the sqlmock driver hands row values to Scan
// unconverted, and uuid.UUID only scans from string or []byte.
func userRow(id uuid.UUID, role string, active bool) *sqlmock.Rows {
	return sqlmock.NewRows(userTestColumns).
		AddRow(id.String(), "mlopez", "Maria Lopez", "$2a$10$abcdefghijklmnopqrstuv", role, active, time.Now(), time.Now())
}

func validToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := auth.GenerateJWT(userID.String(), "mlopez", role, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	return token
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for missing Authorization header", w.Code)
	}
}

func TestAuthMiddleware_NotBearer(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for non-Bearer scheme", w.Code)
	}
}

func TestAuthMiddleware_EmptyToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer   ")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for empty bearer token", w.Code)
	}
}

func TestAuthMiddleware_InvalidToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for malformed JWT", w.Code)
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r, mock := newAuthRouter(t)

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, username.*FROM users WHERE id").
		WithArgs(userID).
		WillReturnRows(userRow(userID, "audit_manager", true))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, userID, "audit_manager"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, userID.String()) {
		t.Errorf("response %q missing user_id %s from context", body, userID)
	}
	if !strings.Contains(body, "audit_manager") {
		t.Errorf("response %q missing role from context", body)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAuthMiddleware_UnknownUser(t *testing.T) {
	r, mock := newAuthRouter(t)

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, username.*FROM users WHERE id").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(userTestColumns))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, userID, "counter"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when token subject no longer exists", w.Code)
	}
}

func TestAuthMiddleware_DisabledUser(t *testing.T) {
	r, mock := newAuthRouter(t)

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, username.*FROM users WHERE id").
		WithArgs(userID).
		WillReturnRows(userRow(userID, "counter", false))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, userID, "counter"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for deactivated account", w.Code)
	}
	if !strings.Contains(w.Body.String(), "disabled") {
		t.Errorf("body = %q, want disabled-account message", w.Body.String())
	}
}

func TestAuthMiddleware_ScopesDerivedFromRole(t *testing.T) {
	// The JWT carries role "admin" but the database row says "counter". The scopes
	// in the request context must reflect the database, so a demotion takes effect
	// without reissuing tokens.
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	repo := repositories.NewUserRepository(sqlx.NewDb(db, "sqlmock"))

	var gotScopes []string
	r := gin.New()
	r.Use(AuthMiddleware(repo))
	r.GET("/protected", func(c *gin.Context) {
		if v, ok := c.Get("scopes"); ok {
			gotScopes, _ = v.([]string)
		}
		c.Status(http.StatusOK)
	})

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, username.*FROM users WHERE id").
		WithArgs(userID).
		WillReturnRows(userRow(userID, "counter", true))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, userID, "admin"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if auth.HasScope(gotScopes, auth.ScopeAuditFinalize) {
		t.Errorf("scopes %v grant audit:finalize, but the stored role is counter", gotScopes)
	}
	if !auth.HasScope(gotScopes, auth.ScopeAuditConfirm) {
		t.Errorf("scopes %v missing audit:confirm for counter role", gotScopes)
	}
}

// ---------------------------------------------------------------------------
// OptionalAuthMiddleware
// ---------------------------------------------------------------------------

func newOptionalAuthRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	repo := repositories.NewUserRepository(sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.Use(OptionalAuthMiddleware(repo))
	r.GET("/open", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id")})
	})
	return r, mock
}

func TestOptionalAuthMiddleware_NoHeaderPassesThrough(t *testing.T) {
	r, _ := newOptionalAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for anonymous request", w.Code)
	}
}

func TestOptionalAuthMiddleware_BadTokenPassesThrough(t *testing.T) {
	r, _ := newOptionalAuthRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when optional auth fails", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"user_id":""`) {
		t.Errorf("body = %q, expected no user identity to be set", w.Body.String())
	}
}

func TestOptionalAuthMiddleware_ValidTokenSetsContext(t *testing.T) {
	r, mock := newOptionalAuthRouter(t)

	userID := uuid.New()
	mock.ExpectQuery("SELECT id, username.*FROM users WHERE id").
		WithArgs(userID).
		WillReturnRows(userRow(userID, "counter", true))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer "+validToken(t, userID, "counter"))
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), userID.String()) {
		t.Errorf("body = %q, want user_id %s in context", w.Body.String(), userID)
	}
}
