package identifier

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Entity ID prefixes. IDs are lexically sortable by creation time within a
// prefix.
const (
	PrefixUser      = "usr"
	PrefixPharmacy  = "phc"
	PrefixMedicine  = "med"
	PrefixInventory = "inv"
	PrefixOrder     = "ord"
	PrefixDelivery  = "dlv"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a prefixed ULID, e.g. "ord_01J....".
func New(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy)
	entropyMu.Unlock()
	return prefix + "_" + id.String()
}

// Generator yields IDs for one entity prefix. Services take it as a plain
// func field so tests can pin deterministic IDs.
func Generator(prefix string) func() string {
	return func() string { return New(prefix) }
}

// HasPrefix reports whether the ID carries the given entity prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix+"_")
}
