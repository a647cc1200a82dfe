package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stockaudit/stockaudit-backend/internal/config"
	"github.com/stockaudit/stockaudit-backend/internal/db/models"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// ---------------------------------------------------------------------------
// Test setup helpers
// ---------------------------------------------------------------------------

// userSQLCols are the columns returned by user SELECT queries.
var userSQLCols = []string{"id", "username", "name", "password_hash", "role", "active", "created_at", "updated_at"}

var testUserID = uuid.MustParse("7f0c2a1e-0000-4000-8000-000000000001")

// testPassword is hashed once; bcrypt at the default cost is slow enough to matter
// across a test package.
var testPasswordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("correct horse battery"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// UUID columns are fed as strings: the sqlmock driver hands row values to Scan
// unconverted, and uuid.UUID only scans from string or []byte.
func sampleUserRow(role string, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userSQLCols).
		AddRow(testUserID.String(), "morgan", "Morgan Reyes", testPasswordHash, role, active, now, now)
}

func emptyUserRows() *sqlmock.Rows {
	return sqlmock.NewRows(userSQLCols)
}

func testConfig() *config.Config {
	return &config.Config{
		Auth: config.AuthConfig{
			TokenDuration: time.Hour,
			BcryptCost:    bcrypt.MinCost,
		},
	}
}

func newAuthRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuthHandlers(testConfig(), sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.POST("/login", h.LoginHandler())
	r.GET("/me", h.MeHandler())
	r.PUT("/password", h.ChangePasswordHandler())
	return mock, r
}

func jsonBody(v interface{}) *bytes.Buffer {
	b, _ := json.Marshal(v)
	return bytes.NewBuffer(b)
}

func getJSON(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &m); err != nil {
		t.Fatalf("response is not JSON: %v (body=%s)", err, resp.Body.String())
	}
	return m
}

// ---------------------------------------------------------------------------
// LoginHandler
// ---------------------------------------------------------------------------

func TestLoginHandler_Success(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("morgan").
		WillReturnRows(sampleUserRow("audit_manager", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login",
		jsonBody(map[string]string{"username": "morgan", "password": "correct horse battery"})))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["token"] == nil || resp["token"] == "" {
		t.Error("response missing token")
	}
	user, _ := resp["user"].(map[string]interface{})
	if user == nil {
		t.Fatal("response missing user")
	}
	if _, leaked := user["password_hash"]; leaked {
		t.Error("password hash leaked in login response")
	}
}

func TestLoginHandler_WrongPassword(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("morgan").
		WillReturnRows(sampleUserRow("audit_manager", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login",
		jsonBody(map[string]string{"username": "morgan", "password": "nope"})))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginHandler_UnknownUser(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("ghost").
		WillReturnRows(emptyUserRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login",
		jsonBody(map[string]string{"username": "ghost", "password": "whatever"})))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestLoginHandler_DisabledUser(t *testing.T) {
	mock, r := newAuthRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("morgan").
		WillReturnRows(sampleUserRow("audit_manager", false))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login",
		jsonBody(map[string]string{"username": "morgan", "password": "correct horse battery"})))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 for disabled user", w.Code)
	}
}

func TestLoginHandler_MissingFields(t *testing.T) {
	_, r := newAuthRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/login",
		jsonBody(map[string]string{"username": "morgan"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// MeHandler
// ---------------------------------------------------------------------------

func TestMeHandler_Unauthenticated(t *testing.T) {
	_, r := newAuthRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestMeHandler_Success(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuthHandlers(testConfig(), sqlx.NewDb(db, "sqlmock"))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user", &models.User{ID: testUserID, Username: "morgan", Role: models.RoleCounter, Active: true})
		c.Set("scopes", []string{"audit:read", "audit:confirm"})
		c.Next()
	})
	r.GET("/me", h.MeHandler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/me", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["user"] == nil {
		t.Error("response missing user")
	}
	scopes, _ := resp["scopes"].([]interface{})
	if len(scopes) != 2 {
		t.Errorf("scopes = %v, want the two granted scopes", resp["scopes"])
	}
}

// ---------------------------------------------------------------------------
// ChangePasswordHandler
// ---------------------------------------------------------------------------

func newPasswordRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewAuthHandlers(testConfig(), sqlx.NewDb(db, "sqlmock"))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user", &models.User{ID: testUserID, Username: "morgan", PasswordHash: testPasswordHash, Role: models.RoleCounter, Active: true})
		c.Next()
	})
	r.PUT("/password", h.ChangePasswordHandler())
	return mock, r
}

func TestChangePasswordHandler_Success(t *testing.T) {
	mock, r := newPasswordRouter(t)

	mock.ExpectExec("UPDATE users SET password_hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/password",
		jsonBody(map[string]string{"current_password": "correct horse battery", "new_password": "a new long password"})))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204: body=%s", w.Code, w.Body.String())
	}
}

func TestChangePasswordHandler_WrongCurrent(t *testing.T) {
	_, r := newPasswordRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/password",
		jsonBody(map[string]string{"current_password": "nope", "new_password": "a new long password"})))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestChangePasswordHandler_TooShort(t *testing.T) {
	_, r := newPasswordRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/password",
		jsonBody(map[string]string{"current_password": "correct horse battery", "new_password": "short"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
