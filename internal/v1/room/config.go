package room

import "time"

// SetControlOwnershipTTL overrides the default 2000ms lease TTL used
// by validateOwnership. Intended to be called once at engine startup
// from config, before any room is created.
func SetControlOwnershipTTL(d time.Duration) {
	if d > 0 {
		controlOwnershipTTL = d
	}
}

