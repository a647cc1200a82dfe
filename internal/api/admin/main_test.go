package admin

import (
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Set JWT secret for tests that exercise GenerateJWT (the login success path)
	os.Setenv("STA_JWT_SECRET", "test-admin-jwt-secret-that-is-32chars!!")
	os.Exit(m.Run())
}
