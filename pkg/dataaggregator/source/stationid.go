package source

import "strings"

// ExtractKey returns the value of key in a composite "A=1@O=Köln Hbf@L=8000207@" style id
func ExtractKey(id string, key string) (string, bool) {
	prefix := key + "="

	for _, part := range strings.Split(id, "@") {
		if strings.HasPrefix(part, prefix) {
			return strings.TrimPrefix(part, prefix), true
		}
	}

	return "", false
}

// EVAFromID returns the EVA number of a station id. Bare ids are already canonical.
func EVAFromID(id string) string {
	if eva, ok := ExtractKey(id, "L"); ok && eva != "" {
		return eva
	}

	return strings.TrimSpace(id)
}

// NameFromID returns the station name carried in a composite id, or the id itself
func NameFromID(id string) string {
	if name, ok := ExtractKey(id, "O"); ok && name != "" {
		return name
	}

	return strings.TrimSpace(id)
}
