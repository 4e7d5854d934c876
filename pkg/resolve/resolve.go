// Package resolve maps free-form user references ("itm 1001", "#1001",
// "the chair") onto stored entities. Matching runs in tiers of decreasing
// precision and the first tier with any hit wins; tiers are never merged,
// so an exact code match is never diluted with loose substring hits.
package resolve

import (
	"strings"
	"unicode"
)

// Tier identifies which matching rule produced a hit.
type Tier int

const (
	// TierExact matches the whole code, the entity ID, or the code's
	// numeric portion against a numeric query.
	TierExact Tier = iota + 1
	// TierSuffix matches the tail of a code.
	TierSuffix
	// TierSubstring matches anywhere in the code or description.
	TierSubstring
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierSuffix:
		return "suffix"
	case TierSubstring:
		return "substring"
	default:
		return "none"
	}
}

// Entity is one resolvable record, already scoped by the caller.
type Entity struct {
	ID          string
	Code        string
	Description string
}

// Match pairs an entity with the tier that matched it.
type Match struct {
	Entity Entity
	Tier   Tier
}

// reference prefixes users habitually attach to codes.
var refPrefixes = []string{"item", "itm", "sub", "sa"}

// Normalize canonicalizes a user reference for matching: lowercase,
// trimmed, with leading "#" and habitual prefixes like "itm-" removed.
// "ITM-1001", "#1001" and "item 1001" all normalize to "1001".
func Normalize(query string) string {
	q := strings.ToLower(strings.TrimSpace(query))
	q = strings.TrimLeft(q, "#")
	q = strings.TrimSpace(q)
	for _, p := range refPrefixes {
		rest, ok := strings.CutPrefix(q, p)
		if !ok {
			continue
		}
		trimmed := strings.TrimLeft(rest, " -_")
		// Only treat the prefix as decoration when something separable
		// follows it; "sales" must not lose its "sa".
		if trimmed != rest || allDigits(rest) {
			if trimmed != "" {
				q = trimmed
			}
			break
		}
	}
	return q
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// trailingDigits returns the digit run at the end of s, or "".
func trailingDigits(s string) string {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	return s[i:]
}

// Resolve matches the query against the entities and returns the hits
// from the most precise non-empty tier, preserving input order.
func Resolve(query string, entities []Entity) []Match {
	// Already-canonical identifiers pass through unchanged, so the raw
	// query is kept for ID comparison alongside the normalized form.
	raw := strings.ToLower(strings.TrimSpace(query))
	q := Normalize(query)
	if q == "" {
		return nil
	}

	var exact, suffix, substring []Match
	for _, e := range entities {
		id := strings.ToLower(e.ID)
		code := strings.ToLower(e.Code)
		desc := strings.ToLower(e.Description)

		switch {
		case q == code || q == id || raw == id || (allDigits(q) && trailingDigits(code) == q):
			exact = append(exact, Match{Entity: e, Tier: TierExact})
		case strings.HasSuffix(code, q):
			suffix = append(suffix, Match{Entity: e, Tier: TierSuffix})
		case strings.Contains(code, q) || (desc != "" && strings.Contains(desc, q)):
			substring = append(substring, Match{Entity: e, Tier: TierSubstring})
		}
	}

	if len(exact) > 0 {
		return exact
	}
	if len(suffix) > 0 {
		return suffix
	}
	return substring
}
