package filter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const hashLength = 16

// hashConfig produces a short deterministic fingerprint of the
// configuration. Keys are encoded in a fixed order and contract lists are
// lowercased and sorted, so two engines with the same effective
// configuration hash identically regardless of list ordering. Truncated
// sha256 is plenty for cache partitioning; a collision only causes
// overly-coarse cache sharing, never a correctness failure.
func hashConfig(cfg Config) string {
	canonical := orderedmap.New[string, any]()
	canonical.Set("version", cfg.Version)
	canonical.Set("requireMetadata", cfg.Basic.RequireMetadata)
	canonical.Set("requireBalance", cfg.Basic.RequireBalance)
	canonical.Set("minBalance", cfg.Basic.MinBalance)
	canonical.Set("excludePreferSymbol", cfg.Utility.ExcludePreferSymbol)
	canonical.Set("excludeDecimalsAboveZero", cfg.Utility.ExcludeDecimalsAboveZero)
	canonical.Set("requireImage", cfg.Metadata.RequireImage)
	canonical.Set("requireName", cfg.Metadata.RequireName)
	canonical.Set("allow", normalizeContracts(cfg.Contracts.Allow))
	canonical.Set("deny", normalizeContracts(cfg.Contracts.Deny))

	encoded, err := json.Marshal(canonical)
	if err != nil {
		// The canonical map only holds strings, bools and ints; this
		// cannot happen at runtime.
		panic(err)
	}

	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:])[:hashLength]
}

func normalizeContracts(contracts []string) []string {
	normalized := make([]string, 0, len(contracts))
	for _, contract := range contracts {
		normalized = append(normalized, strings.ToLower(contract))
	}
	sort.Strings(normalized)
	return normalized
}
