package testing

import (
	"os"
	"sync"
	stdtesting "testing"

	"github.com/diptrack/diptrack/internal/testing/guard"
)

var once sync.Once

// testDefaults satisfy the required configuration keys so packages that call
// app.LoadConfig can run under go test without a .env file.
var testDefaults = map[string]string{
	guard.EnvKey:     "1",
	"SESSION_SECRET": "test-session-secret",
	"CSRF_SECRET":    "test-csrf-secret",
	"JWT_SECRET":     "test-jwt-secret-test-jwt-secret-32",
}

func ensureTestMode() {
	once.Do(func() {
		for key, value := range testDefaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
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
