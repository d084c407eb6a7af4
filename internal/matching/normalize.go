package matching

import (
	"sort"
	"strings"
)

// separators that providers put between their prefix and the code.
const prefixSeparators = "-_:#/."

// NormalizeReference canonicalizes a provider reference so that values from
// different sources compare equal: whitespace is removed, letters are
// uppercased and the longest matching provider prefix is stripped.
// "mpesa-abc123" and "ABC123 " both become "ABC123".
func NormalizeReference(raw string, prefixes []string) string {
	return newReferenceNormalizer(prefixes).normalize(raw)
}

type referenceNormalizer struct {
	prefixes []string // uppercased, longest first
}

func newReferenceNormalizer(prefixes []string) referenceNormalizer {
	out := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		p = compact(p)
		p = strings.TrimRight(p, prefixSeparators)
		if p != "" {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return referenceNormalizer{prefixes: out}
}

func (n referenceNormalizer) normalize(raw string) string {
	ref := compact(raw)
	if ref == "" {
		return ""
	}
	for _, p := range n.prefixes {
		if !strings.HasPrefix(ref, p) {
			continue
		}
		// A reference that is only the prefix is kept as-is.
		if rest := strings.TrimLeft(ref[len(p):], prefixSeparators); rest != "" {
			return rest
		}
		return ref
	}
	return ref
}

func compact(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
