// Package runtime provides environment/runtime detection helpers shared across the service layer.
package runtime

import (
	"os"
	"strings"
	"sync"
)

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the service should fail closed on
// identity/security boundaries: insecure development defaults are refused
// and required secrets must be present.
//
// KEEPER_STRICT=1 forces strict mode regardless of environment, so a
// mis-set ENVIRONMENT cannot silently weaken trust boundaries.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		env := Env()
		forced := strings.TrimSpace(os.Getenv("KEEPER_STRICT")) == "1"
		strictIdentityModeValue = env == Production || forced
	})
	return strictIdentityModeValue
}
