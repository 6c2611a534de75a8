// Package guard flips the runtime into test mode before any package under
// test initializes. Import it blank from tests that touch runtime wiring.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("AUTHCORE_TEST_MODE") == "" {
			_ = os.Setenv("AUTHCORE_TEST_MODE", "1")
		}
	})
}
