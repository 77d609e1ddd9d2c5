package query

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key identifies a cached query, e.g. K("audition", 42). Elements must be JSON encodable.
type Key []any

// K builds a Key.
func K(parts ...any) Key {
	return Key(parts)
}

// String is the JSON form of the key, used as the storage key.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = element(p)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// HasPrefix reports whether the first len(prefix) elements of k equal prefix.
// An empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if element(k[i]) != element(prefix[i]) {
			return false
		}
	}
	return true
}

func element(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(b)
}
