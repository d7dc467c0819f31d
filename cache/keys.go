package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// keyPrefix namespaces cache entries in a shared store.
const keyPrefix = "serp:cache:"

// NormalizeQuery canonicalizes query text so that semantically identical
// queries derive the same cache key: lowercased, trimmed, inner
// whitespace collapsed to single spaces.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// Key derives a deterministic cache key from a normalized query and a set
// of search options. Option ordering does not affect the key; options
// with empty values are ignored.
func Key(query string, opts map[string]string) string {
	names := make([]string, 0, len(opts))
	for name, value := range opts {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(NormalizeQuery(query))
	for _, name := range names {
		b.WriteByte('|')
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(opts[name])
	}
	return fmt.Sprintf("%s%016x", keyPrefix, xxhash.Sum64String(b.String()))
}
