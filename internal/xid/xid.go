package xid

import "github.com/google/uuid"

// New returns a random identifier carrying a readable prefix, e.g. "snap-3f0c...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
