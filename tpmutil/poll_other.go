//go:build !linux && !darwin

package tpmutil

import (
	"os"
	"time"
)

const pollNoTimeout = time.Duration(-1)

// poll is a no-op where readiness polling is not available; the following
// read blocks instead.
func poll(*os.File, time.Duration) error {
	return nil
}
