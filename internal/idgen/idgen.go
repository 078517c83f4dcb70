// Package idgen mints the ULID-shaped, lexicographically sortable
// identifiers spec.md requires for every entity (target, run, request,
// tls, dns, cms, signal, finding ids).
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New mints a fresh ULID string. Monotonic entropy guarantees that IDs
// minted within the same millisecond still sort in mint order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
