package orders

import (
	"crypto/rand"
	"encoding/base32"
	"time"
)

var numberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewOrderNumber returns a human-readable number such as GRP-20261018-K3M9QZ.
// Uniqueness is enforced by the store, not by this function.
func NewOrderNumber(now time.Time) string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	suffix := numberEncoding.EncodeToString(b[:])[:6]
	return "GRP-" + now.UTC().Format("20060102") + "-" + suffix
}
