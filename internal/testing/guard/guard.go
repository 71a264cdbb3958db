// Package guard forces test mode when blank-imported from a test, keeping
// runtime startup side effects out of the test process.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ACCESS_TEST_MODE") == "" {
			_ = os.Setenv("ACCESS_TEST_MODE", "1")
		}
	})
}
