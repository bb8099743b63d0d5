// Package naming derives deterministic job identifiers from variable mappings.
package naming

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"sort"
	"strings"
)

// FromVariables returns a short, deterministic identifier for a variable
// mapping. The mapping is serialized with sorted keys so logically equal
// mappings always yield the same name.
func FromVariables(vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(vars[key])
		b.WriteByte('\n')
	}

	return Hash(b.String())
}

// Hash returns a short url-safe identifier for a string.
func Hash(s string) string {
	sum := md5.Sum([]byte(s))
	encoded := base64.RawURLEncoding.EncodeToString(sum[:])
	if len(encoded) > 20 {
		encoded = encoded[:20]
	}
	return encoded
}

// Encode represents an object as a url-safe base64 string of its canonical
// JSON form. Used when a full round-trippable identifier is needed.
func Encode(obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode reverses Encode into the provided destination.
func Decode(encoded string, dest any) error {
	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}
