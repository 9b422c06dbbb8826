// Package guard flips the process into test mode as a side effect of being
// imported. Internal test packages that cannot import the top-level testing
// package without a cycle blank-import this one instead.
package guard

import (
	"os"
	"sync"
)

// EnvKey is the variable app.InTestMode reads.
const EnvKey = "DIPTRACK_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(EnvKey) == "" {
			_ = os.Setenv(EnvKey, "1")
		}
	})
}
