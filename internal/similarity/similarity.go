// Package similarity provides stateless string-similarity metrics used by
// the obfuscation and category detection engines. All functions are total:
// they are defined for empty inputs, and the similarity of two empty strings
// is 1.0 (distance 0).
package similarity

import (
	"math"
	"strings"

	"github.com/agnivade/levenshtein"
)

// phoneticGroups maps each consonant to its equivalence class. Letters in
// the same class are considered interchangeable when building phonetic codes
// (e.g. "b"/"p", "c"/"k"/"q").
var phoneticGroups = map[rune]string{
	'b': "bp", 'c': "ckq", 'd': "dt", 'f': "fv", 'g': "gj",
	'h': "h", 'j': "gj", 'k': "ckq", 'l': "l", 'm': "mn",
	'n': "mn", 'p': "bp", 'q': "ckq", 'r': "r", 's': "sz",
	't': "dt", 'v': "fv", 'w': "w", 'x': "ks", 'y': "y", 'z': "sz",
}

// Distance returns the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// Levenshtein returns a similarity in [0,1] derived from the edit distance:
// 1 - distance/maxLen. Two empty strings are identical (1.0).
func Levenshtein(a, b string) float64 {
	maxLen := max(runeLen(a), runeLen(b))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(Distance(a, b))/float64(maxLen)
}

// Jaro returns the Jaro similarity of a and b.
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}

	r1, r2 := []rune(a), []rune(b)
	len1, len2 := len(r1), len(r2)
	if len1 == 0 || len2 == 0 {
		return 0.0
	}

	matchDistance := max(len1, len2)/2 - 1
	if matchDistance < 0 {
		matchDistance = 0
	}

	matched1 := make([]bool, len1)
	matched2 := make([]bool, len2)

	matches := 0
	for i := 0; i < len1; i++ {
		start := max(0, i-matchDistance)
		end := min(i+matchDistance+1, len2)
		for j := start; j < end; j++ {
			if matched2[j] || r1[i] != r2[j] {
				continue
			}
			matched1[i] = true
			matched2[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	// Count transpositions between matched characters.
	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len1) + m/float64(len2) + (m-float64(transpositions)/2)/m) / 3.0
}

// JaroWinkler returns the Jaro-Winkler similarity: the Jaro score boosted by
// the length of the common prefix (up to 4 characters). The boost only
// applies when the Jaro score is at least 0.7.
func JaroWinkler(a, b string) float64 {
	jaro := Jaro(a, b)
	if jaro < 0.7 {
		return jaro
	}

	r1, r2 := []rune(a), []rune(b)
	prefix := 0
	for i := 0; i < min(min(len(r1), len(r2)), 4); i++ {
		if r1[i] != r2[i] {
			break
		}
		prefix++
	}

	return jaro + 0.1*float64(prefix)*(1-jaro)
}

// Ratio returns a sequence-alignment similarity in [0,1]:
// 2*LCS(a,b) / (len(a)+len(b)). It rewards in-order common subsequences the
// way a diff-based matcher does.
func Ratio(a, b string) float64 {
	r1, r2 := []rune(a), []rune(b)
	total := len(r1) + len(r2)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(lcsLength(r1, r2)) / float64(total)
}

// lcsLength computes the longest-common-subsequence length with a rolling
// single-row table.
func lcsLength(r1, r2 []rune) int {
	if len(r1) == 0 || len(r2) == 0 {
		return 0
	}

	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for i := 1; i <= len(r1); i++ {
		for j := 1; j <= len(r2); j++ {
			if r1[i-1] == r2[j-1] {
				curr[j] = prev[j-1] + 1
			} else {
				curr[j] = max(prev[j], curr[j-1])
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// Jaccard returns the Jaccard similarity of the character sets of a and b.
func Jaccard(a, b string) float64 {
	set1 := runeSet(a)
	set2 := runeSet(b)
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}

	intersection := 0
	for r := range set1 {
		if set2[r] {
			intersection++
		}
	}
	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}

// Cosine returns the cosine similarity of the character-frequency vectors of
// a and b.
func Cosine(a, b string) float64 {
	count1 := runeCount(a)
	count2 := runeCount(b)
	if len(count1) == 0 && len(count2) == 0 {
		return 1.0
	}

	var dot, mag1, mag2 float64
	for r, c1 := range count1 {
		dot += float64(c1) * float64(count2[r])
		mag1 += float64(c1) * float64(c1)
	}
	for _, c2 := range count2 {
		mag2 += float64(c2) * float64(c2)
	}

	if mag1 == 0 || mag2 == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(mag1) * math.Sqrt(mag2))
}

// NGram returns the Jaccard similarity of the n-gram sets of a and b.
// Strings shorter than n fall back to Ratio.
func NGram(a, b string, n int) float64 {
	r1, r2 := []rune(a), []rune(b)
	if len(r1) < n || len(r2) < n {
		return Ratio(a, b)
	}

	grams1 := ngramSet(r1, n)
	grams2 := ngramSet(r2, n)

	intersection := 0
	for g := range grams1 {
		if grams2[g] {
			intersection++
		}
	}
	union := len(grams1) + len(grams2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// Bigram is NGram with n=2, the default n-gram size.
func Bigram(a, b string) float64 {
	return NGram(a, b, 2)
}

// PhoneticCode generates a simplified phonetic code for a word: the first
// letter is preserved verbatim, subsequent consonants collapse into their
// phonetic equivalence class, and consecutive letters from the same class
// are deduplicated. The code is asymmetric by construction (the first letter
// is never folded), so PhoneticSimilarity is not a symmetric metric.
func PhoneticCode(word string) string {
	if word == "" {
		return ""
	}

	runes := []rune(strings.ToLower(word))
	var code strings.Builder
	code.WriteRune(runes[0])
	last := runes[0]

	for _, r := range runes[1:] {
		group, ok := phoneticGroups[r]
		if !ok {
			continue
		}
		if strings.ContainsRune(group, last) {
			continue
		}
		first := rune(group[0])
		code.WriteRune(first)
		last = first
	}
	return code.String()
}

// PhoneticSimilarity compares the phonetic codes of a and b using Ratio.
func PhoneticSimilarity(a, b string) float64 {
	return Ratio(PhoneticCode(a), PhoneticCode(b))
}

// algorithms lists every symmetric metric tried by BestMatch, in the order
// scores are compared (first wins on ties).
var algorithms = []struct {
	name string
	fn   func(a, b string) float64
}{
	{"levenshtein", Levenshtein},
	{"jaro_winkler", JaroWinkler},
	{"sequence_ratio", Ratio},
	{"jaccard", Jaccard},
	{"cosine", Cosine},
	{"bigram", Bigram},
}

// BestMatch runs every similarity algorithm on the pair and returns the name
// and score of the highest-scoring one.
func BestMatch(a, b string) (string, float64) {
	bestName := algorithms[0].name
	bestScore := 0.0
	for _, algo := range algorithms {
		if score := algo.fn(a, b); score > bestScore {
			bestScore = score
			bestName = algo.name
		}
	}
	return bestName, bestScore
}

// LengthRatioOK reports whether the shorter/longer length ratio of the pair
// meets minRatio. It is a cheap pre-filter that skips expensive comparisons
// on clearly mismatched candidates.
func LengthRatioOK(a, b string, minRatio float64) bool {
	len1, len2 := runeLen(a), runeLen(b)
	if len1 == 0 || len2 == 0 {
		return false
	}
	return float64(min(len1, len2))/float64(max(len1, len2)) >= minRatio
}

// AdaptiveThreshold returns the minimum similarity required for a target
// word of the given length. Shorter words need higher similarity to keep
// false positives down.
func AdaptiveThreshold(wordLen int) float64 {
	switch {
	case wordLen <= 3:
		return 0.9
	case wordLen <= 5:
		return 0.8
	case wordLen <= 8:
		return 0.75
	default:
		return 0.7
	}
}

func runeLen(s string) int {
	return len([]rune(s))
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}

func runeCount(s string) map[rune]int {
	count := make(map[rune]int, len(s))
	for _, r := range s {
		count[r]++
	}
	return count
}

func ngramSet(runes []rune, n int) map[string]bool {
	set := make(map[string]bool, len(runes))
	for i := 0; i+n <= len(runes); i++ {
		set[string(runes[i:i+n])] = true
	}
	return set
}
