// Package identity normalizes raw directory login values into the canonical
// form the remote service keys users by, and selects attribute values from
// prioritized candidate lists.
package identity

import "strings"

// Identity is a normalized login name. Two raw directory values that
// normalize to the same string refer to the same user.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// Normalize derives an Identity from a raw directory attribute value:
// whitespace is trimmed, the value is lower-cased, and a leading `domain\`
// prefix or a trailing `@suffix` is stripped.
//
//	"CORP\\jdoe"    -> "jdoe"
//	"jdoe@corp.com" -> "jdoe"
//	" JDoe "        -> "jdoe"
func Normalize(raw string) Identity {
	s := strings.ToLower(strings.TrimSpace(raw))

	if idx := strings.LastIndex(s, `\`); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[:idx]
	}

	return Identity(s)
}

// SelectAttribute returns the first non-empty value among the prioritized
// candidate attribute names. Name matching is case-insensitive and an absent
// attribute counts as empty. Returns "" when no candidate has a value.
func SelectAttribute(attributes map[string]string, candidates []string) string {
	lowered := make(map[string]string, len(attributes))
	for name, value := range attributes {
		key := strings.ToLower(name)
		if existing, ok := lowered[key]; !ok || existing == "" {
			lowered[key] = value
		}
	}

	for _, candidate := range candidates {
		if value := lowered[strings.ToLower(candidate)]; value != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
