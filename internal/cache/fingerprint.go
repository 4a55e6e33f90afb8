// Package cache implements the two-tier Response Cache: an in-memory LRU
// fronting a content-addressed on-disk store, both keyed by a deterministic
// fingerprint over prompt, model and parameters.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Fingerprint computes the cache key: SHA-256 over
// "prompt|model|sortedParamString" where sortedParamString renders each
// parameter as "key=value;" with keys in lexicographic order — so
// permuting the parameter map's insertion order never changes the
// fingerprint.
func Fingerprint(prompt, model string, params map[string]any) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte("|"))
	h.Write([]byte(model))
	h.Write([]byte("|"))
	h.Write([]byte(sortedParamString(params)))
	return hex.EncodeToString(h.Sum(nil))
}

func sortedParamString(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, params[k])
	}
	return b.String()
}
