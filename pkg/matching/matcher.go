package matching

import (
	"sort"
	"strings"
)

// Match score constants. These are heuristic tiers, named so call sites and
// tests never hard-code the literals.
const (
	ScoreExact        = 100 // normalized strings identical
	ScoreSubstring    = 90  // one normalized string contains the other
	ScoreStrongTokens = 80  // structural keys match with several shared tokens
	ScoreWeakTokens   = 70  // structural keys match with few shared tokens
)

// Acceptance thresholds. General matching accepts token-level matches; strict
// register matching (official data joined onto a record) demands more.
const (
	ThresholdGeneral = 70
	ThresholdStrict  = 80
)

// strongTokenCount is how many shared significant tokens lift a structural
// match from the weak tier to the strong tier.
const strongTokenCount = 3

// Candidate is one register entry being scored against a target address.
// Candidates are ephemeral: they are discarded once the matching stage
// resolves.
type Candidate struct {
	ID      string
	Address string
	// Payload carries the register row for the caller to apply on a match.
	Payload any
}

// Options tunes a match pass.
type Options struct {
	// Threshold below which no candidate is accepted.
	Threshold int
	// MinTokenLen is the significance cutoff for shared-token counting.
	// Tokens must be strictly longer than this to count.
	MinTokenLen int
}

// DefaultOptions returns the general-purpose matching configuration.
func DefaultOptions() Options {
	return Options{Threshold: ThresholdGeneral, MinTokenLen: 2}
}

// StrictOptions returns the configuration for matching against official
// registers, where a wrong join is worse than no join.
func StrictOptions() Options {
	return Options{Threshold: ThresholdStrict, MinTokenLen: 3}
}

// Score computes the match score between a target address and one candidate
// address. Both are normalized internally.
func Score(target, candidate string, opts Options) int {
	nt := Normalize(target)
	nc := Normalize(candidate)

	if nt == "" || nc == "" {
		return 0
	}
	if nt == nc {
		return ScoreExact
	}
	// Containment or a reordering of the same tokens ("Flat 2, 10 High
	// Street" vs "10 High Street, Flat 2") both count as the substring tier.
	if strings.Contains(nt, nc) || strings.Contains(nc, nt) || sortedTokens(nt) == sortedTokens(nc) {
		return ScoreSubstring
	}

	kt := ExtractKey(nt)
	kc := ExtractKey(nc)
	if kt.Empty() || kt != kc {
		return 0
	}

	if sharedSignificantTokens(nt, nc, opts.MinTokenLen) >= strongTokenCount {
		return ScoreStrongTokens
	}
	return ScoreWeakTokens
}

// BestMatch scores every candidate against the target address in a single
// pass and returns the highest-scoring candidate at or above the threshold,
// along with its score. Ties keep the first-seen candidate. Returns nil when
// nothing reaches the threshold; callers must not fall back to a guess.
func BestMatch(target string, candidates []Candidate, opts Options) (*Candidate, int) {
	var (
		best      *Candidate
		bestScore int
	)
	for i := range candidates {
		s := Score(target, candidates[i].Address, opts)
		if s > bestScore {
			best = &candidates[i]
			bestScore = s
		}
	}
	if best == nil || bestScore < opts.Threshold {
		return nil, 0
	}
	return best, bestScore
}

// SameAddress reports whether two addresses are the same address written
// differently: identical after normalization, or a reordering of the same
// tokens. Containment does not qualify, because the shorter address may be
// the parent building of the longer one ("10 High Street" vs
// "Flat 2, 10 High Street").
func SameAddress(a, b string) bool {
	na := Normalize(a)
	nb := Normalize(b)
	if na == "" || nb == "" {
		return false
	}
	return na == nb || sortedTokens(na) == sortedTokens(nb)
}

// sortedTokens renders a normalized address as its tokens in sorted order, so
// permutations of the same address compare equal.
func sortedTokens(normalized string) string {
	tokens := strings.Fields(normalized)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
