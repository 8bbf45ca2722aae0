package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PAINTSTOCK_TEST_MODE") == "" {
			_ = os.Setenv("PAINTSTOCK_TEST_MODE", "1")
		}
	})
}
