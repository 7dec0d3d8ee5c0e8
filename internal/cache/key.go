package cache

import (
	"strings"

	"github.com/mfenderov/knowra/pkg/models"
)

const (
	// MaxKeyPartLen is the longest part kept verbatim in a cache key.
	MaxKeyPartLen = 100
	// hashedPrefixLen is how much of a long part survives in front of its hash.
	hashedPrefixLen = 50
	keySeparator    = ":"
)

var keyEscaper = strings.NewReplacer("%", "%25", keySeparator, "%3A")

// Key joins parts into a cache key. Empty parts keep their position. Parts
// longer than MaxKeyPartLen are replaced by a fixed prefix plus a hash of the
// whole part, and the separator is escaped inside parts so distinct tuples
// never collide.
func Key(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(part) > MaxKeyPartLen {
			part = part[:hashedPrefixLen] + "_" + models.ShortHash(part)
		}
		kept = append(kept, keyEscaper.Replace(part))
	}
	return strings.Join(kept, keySeparator)
}
