// Package matching scores candidate register entries against a target
// property address and picks the best match above a threshold. It is
// deterministic and side-effect-free: identical input always produces
// identical output.
package matching

import "strings"

// Normalize lowercases an address, strips punctuation and collapses runs of
// whitespace, so "Flat 2, 10 High St." and "flat 2 10 high st" compare equal.
func Normalize(address string) string {
	lower := strings.ToLower(address)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch r {
		case ',', '.', '\'':
			// stripped
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// StructuralKey is the coarse identity extracted from a normalized address:
// either "flat <id> <number>" when a flat token is present, or the leading
// building number alone.
type StructuralKey struct {
	FlatID string
	Number string
}

// Empty reports whether no structural information could be extracted.
func (k StructuralKey) Empty() bool {
	return k.FlatID == "" && k.Number == ""
}

// ExtractKey pulls the structural key out of a normalized address. The flat
// pattern is "flat <id> ... <number>"; absent that, the first numeric token is
// taken as the building number.
func ExtractKey(normalized string) StructuralKey {
	tokens := strings.Fields(normalized)

	for i, tok := range tokens {
		if (tok == "flat" || tok == "apartment" || tok == "unit") && i+1 < len(tokens) {
			key := StructuralKey{FlatID: tokens[i+1]}
			// The building number is the first numeric token anywhere other
			// than the flat id itself, so "Flat 2, 10 High Street" and
			// "10 High Street, Flat 2" extract the same key.
			for j, t := range tokens {
				if j != i+1 && isNumeric(t) {
					key.Number = t
					break
				}
			}
			return key
		}
	}

	for _, tok := range tokens {
		if isNumeric(tok) {
			return StructuralKey{Number: tok}
		}
	}
	return StructuralKey{}
}

// isNumeric accepts plain numbers and UK-style suffixed numbers like "10a".
func isNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	digits := 0
	for i, r := range tok {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r >= 'a' && r <= 'z' && i == len(tok)-1 && digits > 0:
			// trailing letter suffix
		default:
			return false
		}
	}
	return digits > 0
}

// sharedSignificantTokens counts tokens longer than minLen appearing in both
// normalized strings.
func sharedSignificantTokens(a, b string, minLen int) int {
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(a) {
		if len(tok) > minLen {
			seen[tok] = true
		}
	}
	shared := 0
	for _, tok := range strings.Fields(b) {
		if len(tok) > minLen && seen[tok] {
			shared++
			seen[tok] = false
		}
	}
	return shared
}
