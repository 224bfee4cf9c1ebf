package feed

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// LocalID hashes the first non-empty candidate (GUID, link, title by
// convention) into a short base36 token. The same input always yields the
// same token. Callers should end the list with a candidate that is never
// empty.
func LocalID(candidates ...string) string {
	var key string
	for _, candidate := range candidates {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			key = candidate
			break
		}
	}

	return strconv.FormatUint(xxhash.Sum64String(key), 36)
}

// ItemID namespaces a provider-local identifier.
func ItemID(provider, localID string) string {
	return provider + ":" + localID
}

// ProviderOf returns the provider prefix of an item id, or "" when the id is
// not namespaced.
func ProviderOf(id string) string {
	provider, _, ok := strings.Cut(id, ":")
	if !ok {
		return ""
	}
	return provider
}

// LocalOf strips the provider prefix from an item id.
func LocalOf(id string) string {
	_, local, ok := strings.Cut(id, ":")
	if !ok {
		return id
	}
	return local
}
