// Package testing switches the process into test mode when imported for side effects, so
// binaries and config loaders skip network startup under go test.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("REGWATCH_TEST_MODE", "1")
		if os.Getenv("BACKEND_JWT_SECRET") == "" {
			_ = os.Setenv("BACKEND_JWT_SECRET", "regwatch-test-secret-0123456789abcdef")
		}
		if os.Getenv("CSRF_SECRET") == "" {
			_ = os.Setenv("CSRF_SECRET", "regwatch-test-csrf-secret")
		}
		if os.Getenv("SESSION_SECRET") == "" {
			_ = os.Setenv("SESSION_SECRET", "regwatch-test-session-secret")
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
