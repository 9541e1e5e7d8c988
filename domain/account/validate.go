package account

import "strings"

// KeyHexLen is the number of hex characters after the key prefix.
const KeyHexLen = 32

// ValidateFormat checks if a raw API key has the shape of an issued key:
// expectedPrefix followed by KeyHexLen lowercase hex characters.
// This is a PURE function.
func ValidateFormat(rawKey, expectedPrefix string) bool {
	if !strings.HasPrefix(rawKey, expectedPrefix) {
		return false
	}
	rest := rawKey[len(expectedPrefix):]
	if len(rest) != KeyHexLen {
		return false
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Mask shortens a key for log output.
func Mask(rawKey string) string {
	if len(rawKey) <= 10 {
		return rawKey
	}
	return rawKey[:10] + "..."
}
