// Package kmer provides k-mer primitives (reverse complement, canonical
// form, window iteration), the on-disk per-sample k-mer database, and the
// counting engine implementations used by the count stage.
package kmer

import "strings"

// complement table over bytes; zero means "not a nucleotide".
var comp [256]byte

func init() {
	comp['A'], comp['C'], comp['G'], comp['T'] = 'T', 'G', 'C', 'A'
	comp['a'], comp['c'], comp['g'], comp['t'] = 'T', 'G', 'C', 'A'
}

// ReverseComplement returns the reverse complement of seq. Bases outside
// ACGT map to 'N'.
func ReverseComplement(seq string) string {
	var rc strings.Builder
	rc.Grow(len(seq))
	for i := len(seq) - 1; i >= 0; i-- {
		if c := comp[seq[i]]; c != 0 {
			rc.WriteByte(c)
		} else {
			rc.WriteByte('N')
		}
	}
	return rc.String()
}

// Canonical returns the lexicographically smaller of seq and its reverse
// complement. The same representative must be used consistently across all
// samples and stages, otherwise a k-mer and its complement double count.
func Canonical(seq string) string {
	rc := ReverseComplement(seq)
	if rc < seq {
		return rc
	}
	return seq
}

// ForEach calls fn for every k-length window of seq that contains only ACGT
// bases, upper-cased, in canonical form when canonical is true. Windows
// overlapping other characters are skipped, matching the counting engine's
// treatment of ambiguous bases.
func ForEach(seq string, k int, canonical bool, fn func(kmer string)) {
	if k < 1 || len(seq) < k {
		return
	}
	s := strings.ToUpper(seq)
	// lastBad tracks the most recent non-ACGT position so windows crossing
	// it are skipped without rescanning.
	lastBad := -1
	for i := 0; i < len(s); i++ {
		if comp[s[i]] == 0 {
			lastBad = i
		}
		if i < k-1 {
			continue
		}
		start := i - k + 1
		if lastBad >= start {
			continue
		}
		w := s[start : i+1]
		if canonical {
			w = Canonical(w)
		}
		fn(w)
	}
}

// CountHits returns the number of k-length windows of seq present in
// targets, stopping early once stop hits are found (stop <= 0 disables the
// early exit). Matching is canonical-aware so reads match on either strand
// when the upstream count was canonical.
func CountHits(seq string, k int, canonical bool, targets map[string]struct{}, stop int) int {
	hits := 0
	ForEach(seq, k, canonical, func(w string) {
		if hits >= stop && stop > 0 {
			return
		}
		if _, ok := targets[w]; ok {
			hits++
		}
	})
	return hits
}
