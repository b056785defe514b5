// Package catalog provides local track metadata lookups for rooms whose
// clients don't supply title/duration themselves. The wire protocol never
// requires a catalog; this is an enrichment path, not a hard dependency.
package catalog

import "context"

// Catalog resolves a track id to display metadata.
type Catalog interface {
	Lookup(ctx context.Context, trackID string) (title string, durationSec float64, ok bool)
	Ping(ctx context.Context) error
}
