package admin

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// newUserRouter creates a gin router with all UserHandlers routes registered.
func newUserRouter(t *testing.T) (sqlmock.Sqlmock, *gin.Engine) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewUserHandlers(testConfig(), sqlx.NewDb(db, "sqlmock"))

	r := gin.New()
	r.GET("/users", h.ListUsersHandler())
	r.GET("/users/:id", h.GetUserHandler())
	r.POST("/users", h.CreateUserHandler())
	r.PUT("/users/:id", h.UpdateUserHandler())
	r.PUT("/users/:id/password", h.ResetPasswordHandler())
	return mock, r
}

// ---------------------------------------------------------------------------
// ListUsersHandler
// ---------------------------------------------------------------------------

func TestListUsersHandler_Success(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT").
		WillReturnRows(sampleUserRow("counter", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["users"] == nil {
		t.Error("response missing 'users' key")
	}
	if resp["pagination"] == nil {
		t.Error("response missing 'pagination' key")
	}
}

func TestListUsersHandler_PaginationClamped(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT").WithArgs(20, 0).
		WillReturnRows(emptyUserRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users?page=-3&per_page=9999", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// GetUserHandler
// ---------------------------------------------------------------------------

func TestGetUserHandler_Success(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs(testUserID.String()).
		WillReturnRows(sampleUserRow("counter", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users/"+testUserID.String(), nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
}

func TestGetUserHandler_NotFound(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs(testUserID.String()).
		WillReturnRows(emptyUserRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users/"+testUserID.String(), nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestGetUserHandler_BadUUID(t *testing.T) {
	_, r := newUserRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/users/nope", nil))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// CreateUserHandler
// ---------------------------------------------------------------------------

func TestCreateUserHandler_InvalidJSON(t *testing.T) {
	_, r := newUserRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/users", bytes.NewBufferString("{bad json")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateUserHandler_InvalidRole(t *testing.T) {
	_, r := newUserRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/users",
		jsonBody(map[string]string{
			"username": "casey", "name": "Casey", "password": "long enough pw", "role": "superuser",
		})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown role", w.Code)
	}
}

func TestCreateUserHandler_UsernameTaken(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("morgan").
		WillReturnRows(sampleUserRow("counter", true))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/users",
		jsonBody(map[string]string{
			"username": "morgan", "name": "Morgan", "password": "long enough pw", "role": "counter",
		})))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestCreateUserHandler_Success(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs("casey").
		WillReturnRows(emptyUserRows())
	mock.ExpectExec("INSERT INTO users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/users",
		jsonBody(map[string]string{
			"username": "casey", "name": "Casey Flores", "password": "long enough pw", "role": "counter",
		})))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["username"] != "casey" {
		t.Errorf("username = %v, want casey", resp["username"])
	}
	if _, leaked := resp["password_hash"]; leaked {
		t.Error("password hash leaked in create response")
	}
}

func TestCreateUserHandler_ShortPassword(t *testing.T) {
	_, r := newUserRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("POST", "/users",
		jsonBody(map[string]string{
			"username": "casey", "name": "Casey", "password": "short", "role": "counter",
		})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// ---------------------------------------------------------------------------
// UpdateUserHandler
// ---------------------------------------------------------------------------

func TestUpdateUserHandler_NotFound(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs(testUserID.String()).
		WillReturnRows(emptyUserRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/"+testUserID.String(),
		jsonBody(map[string]string{"name": "New Name"})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateUserHandler_Deactivate(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs(testUserID.String()).
		WillReturnRows(sampleUserRow("counter", true))
	mock.ExpectExec("UPDATE users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	active := false
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/"+testUserID.String(),
		jsonBody(map[string]*bool{"active": &active})))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: body=%s", w.Code, w.Body.String())
	}
	resp := getJSON(t, w)
	if resp["active"] != false {
		t.Errorf("active = %v, want false", resp["active"])
	}
}

func TestUpdateUserHandler_InvalidRole(t *testing.T) {
	_, r := newUserRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/"+testUserID.String(),
		jsonBody(map[string]string{"role": "superuser"})))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown role", w.Code)
	}
}

// ---------------------------------------------------------------------------
// ResetPasswordHandler
// ---------------------------------------------------------------------------

func TestResetPasswordHandler_Success(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs(testUserID.String()).
		WillReturnRows(sampleUserRow("counter", true))
	mock.ExpectExec("UPDATE users SET password_hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/"+testUserID.String()+"/password",
		jsonBody(map[string]string{"password": "a replacement pw"})))

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204: body=%s", w.Code, w.Body.String())
	}
}

func TestResetPasswordHandler_NotFound(t *testing.T) {
	mock, r := newUserRouter(t)

	mock.ExpectQuery("SELECT").WithArgs(testUserID.String()).
		WillReturnRows(emptyUserRows())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("PUT", "/users/"+testUserID.String()+"/password",
		jsonBody(map[string]string{"password": "a replacement pw"})))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
