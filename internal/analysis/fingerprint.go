// Package analysis decides whether a persisted analysis is still valid for
// the source data it was computed from.
package analysis

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint computes a stable SHA-256 digest over a set of source-record
// ids. Discovery order is irrelevant: ids are sorted lexicographically and
// joined before hashing, so identical sets always produce identical digests.
// Returns "" for an empty set.
func Fingerprint(ids []string) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	hash := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return fmt.Sprintf("%x", hash)
}
