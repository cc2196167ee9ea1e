package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix namespaces all cache keys, so a shared backend (Redis) can be
// cleared without touching unrelated data.
const KeyPrefix = "gqlcache:"

// Key derives a deterministic cache key from the target endpoint, the query
// document, and the operation variables. Identical logical requests always
// map to the same key; variable map ordering does not matter.
func Key(endpoint, query string, variables map[string]any) string {
	h := sha256.New()
	h.Write([]byte(endpoint))
	h.Write([]byte{0})
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(canonicalVariables(variables)))

	return KeyPrefix + hex.EncodeToString(h.Sum(nil)[:16])
}

// canonicalVariables renders variables with sorted keys so map iteration
// order cannot change the key. List-valued variables keep their order.
func canonicalVariables(variables map[string]any) string {
	if len(variables) == 0 {
		return ""
	}

	keys := make([]string, 0, len(variables))
	for k := range variables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		encoded, err := json.Marshal(variables[k])
		if err != nil {
			// Unencodable values still need a stable representation.
			encoded = []byte(fmt.Sprintf("%v", variables[k]))
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(encoded)
		b.WriteByte(';')
	}
	return b.String()
}
