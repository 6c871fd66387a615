// Package obfuscation detects disguised spellings of target words, such as
// "id!ot", "s t u p i d", or "1d10t". It recognizes character substitution,
// separator interleaving, unicode homoglyphs, reversal, and adjacent-swap
// scrambles, and can normalize obfuscated text back toward canonical form.
package obfuscation

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/sentra/guard/internal/similarity"
)

// Type names the transformation family a match was detected through.
type Type string

const (
	TypeSubstitution Type = "character_substitution"
	TypeSpacing      Type = "spacing_obfuscation"
	TypeMixed        Type = "mixed_obfuscation"
	TypeUnicode      Type = "unicode_variants"
	TypeReversed     Type = "reversed_text"
	TypeScrambled    Type = "scrambled_text"
)

// Detection thresholds and generation caps per transformation family.
const (
	maxSubstitutionVariants = 20
	maxMixedBaseVariants    = 10
	maxUnicodeVariants      = 10
	maxScrambleVariants     = 5
	maxScrambleWordLen      = 6

	substitutionThreshold = 0.6
	mixedThreshold        = 0.5
	unicodeThreshold      = 0.7

	spacingConfidence  = 0.8
	reversedConfidence = 0.8
	scrambleConfidence = 0.6
)

// Match is one located disguised occurrence of a target word. Offsets are
// byte positions into the (lowercased) analyzed text.
type Match struct {
	TargetWord  string  `json:"target_word"`
	MatchedText string  `json:"matched_text"`
	Confidence  float64 `json:"confidence"`
	Type        Type    `json:"obfuscation_type"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Transform   string  `json:"transform"`
}

// charSubstitutions maps each plain letter to the visually equivalent
// characters commonly used to disguise it.
var charSubstitutions = map[rune][]rune{
	'a': {'@', '4', 'α', 'à', 'á', 'â', 'ä', 'ã', 'å', 'ā'},
	'e': {'3', 'ε', 'è', 'é', 'ê', 'ë', 'ē', '€'},
	'i': {'1', '!', 'ι', 'ì', 'í', 'î', 'ï', 'ī', '|'},
	'o': {'0', 'ο', 'ò', 'ó', 'ô', 'ö', 'õ', 'ō', '°'},
	'u': {'υ', 'ù', 'ú', 'û', 'ü', 'ū', 'µ'},
	's': {'5', '$', 'ς', 'š', 'ş', '§'},
	't': {'7', '+', 'τ', 'ť', 'ţ'},
	'l': {'1', '|', 'ι', 'ĺ', 'ł'},
	'g': {'9', 'ğ'},
	'b': {'6', 'β'},
	'z': {'2'},
	'c': {'(', 'ç', 'ć', 'č'},
	'n': {'η', 'ñ', 'ń', 'ň'},
	'r': {'γ', 'ř'},
	'h': {'#'},
	'k': {'κ'},
	'm': {'μ'},
	'p': {'ρ'},
	'w': {'ω'},
	'x': {'χ', '×'},
	'y': {'ψ', 'ý', 'ÿ'},
}

// leetMap maps leetspeak characters back to the letters they stand for.
var leetMap = map[rune]rune{
	'@': 'a', '4': 'a', '3': 'e', '1': 'i', '!': 'i',
	'0': 'o', '5': 's', '$': 's', '7': 't', '+': 't',
	'|': 'l', '9': 'g', '6': 'b', '2': 'z', '(': 'c',
	'#': 'h', '×': 'x',
}

// unicodeVariants maps letters to homoglyphs from other scripts (Cyrillic,
// Greek, fullwidth Latin). These survive naive lowercasing, so they are
// matched by fuzzy scan rather than literal search.
var unicodeVariants = map[rune][]rune{
	'a': {'а', 'α', 'ɑ', 'ａ'},
	'e': {'е', 'ε', 'ｅ'},
	'o': {'о', 'ο', 'ｏ'},
	'p': {'р', 'ρ', 'ｐ'},
	'c': {'с', 'ｃ'},
	'x': {'х', 'χ', 'ｘ'},
	'y': {'у', 'ψ', 'ｙ'},
	'k': {'κ', 'ｋ'},
	'n': {'η', 'ｎ'},
	'h': {'һ', 'ｈ'},
	'b': {'ь', 'β', 'ｂ'},
	'm': {'м', 'μ', 'ｍ'},
	'r': {'г', 'γ', 'ｒ'},
	't': {'т', 'τ', 'ｔ'},
	'i': {'і', 'ι', 'ｉ'},
	'u': {'υ', 'ｕ'},
	's': {'ѕ', 'ς', 'ｓ'},
}

// commonSeparators are the characters typically interleaved between letters
// to break up a word ("s.t.u.p.i.d").
var commonSeparators = []rune{' ', '.', '-', '_', '*', '!', '@', '#', '$', '%', '^', '&'}

// curatedLeetVariants are known leetspeak spellings of frequent abuse words
// that single-character substitution alone would miss.
var curatedLeetVariants = map[string][]string{
	"hello":  {"h3llo", "he11o", "h311o", "h3ll0", "he1lo"},
	"stupid": {"5tupid", "stup1d", "stup!d", "5tup1d"},
	"idiot":  {"1diot", "id!ot", "1d10t", "id10t"},
	"hate":   {"h4te", "ha7e", "h@te"},
	"kill":   {"k1ll", "ki11", "k!ll"},
}

// Detector finds disguised target words in free text. It holds only static
// lookup tables and is safe for concurrent use.
type Detector struct{}

// NewDetector returns a ready Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// DetectWords returns every confidently detected disguised occurrence of the
// target words in text, deduplicated and sorted by confidence descending.
func (d *Detector) DetectWords(text string, targets []string) []Match {
	if text == "" || len(targets) == 0 {
		return nil
	}

	lower := strings.ToLower(text)

	var matches []Match
	for _, target := range targets {
		word := strings.ToLower(target)
		if word == "" {
			continue
		}
		matches = append(matches, d.detectSubstitution(lower, word)...)
		matches = append(matches, d.detectSpacing(lower, word)...)
		matches = append(matches, d.detectMixed(lower, word)...)
		matches = append(matches, d.detectUnicode(lower, word)...)
		matches = append(matches, d.detectScrambled(lower, word)...)
	}

	matches = dedupe(matches)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// detectSubstitution searches for single-character substitution variants and
// curated leetspeak spellings of word.
func (d *Detector) detectSubstitution(lower, word string) []Match {
	var matches []Match
	for _, variant := range substitutionVariants(word, maxSubstitutionVariants) {
		confidence := substitutionConfidence(variant, word)
		if confidence <= substitutionThreshold {
			continue
		}
		for _, span := range literalOccurrences(lower, variant) {
			matches = append(matches, Match{
				TargetWord:  word,
				MatchedText: lower[span[0]:span[1]],
				Confidence:  confidence,
				Type:        TypeSubstitution,
				Start:       span[0],
				End:         span[1],
				Transform:   fmt.Sprintf("%s -> %s", word, variant),
			})
		}
	}
	return matches
}

// detectSpacing searches for separator-interleaved spellings of word.
func (d *Detector) detectSpacing(lower, word string) []Match {
	letters := strings.Split(word, "")

	variants := make([]string, 0, len(commonSeparators)+3)
	for _, sep := range []string{" . ", " - ", " _ "} {
		variants = append(variants, strings.Join(letters, sep))
	}
	for _, sep := range commonSeparators {
		variants = append(variants, strings.Join(letters, string(sep)))
	}

	var matches []Match
	for _, variant := range variants {
		for _, span := range literalOccurrences(lower, variant) {
			matches = append(matches, Match{
				TargetWord:  word,
				MatchedText: lower[span[0]:span[1]],
				Confidence:  spacingConfidence,
				Type:        TypeSpacing,
				Start:       span[0],
				End:         span[1],
				Transform:   fmt.Sprintf("spaced as %q", variant),
			})
		}
	}
	return matches
}

// detectMixed searches for substitution variants that are additionally
// broken up with separators. Confidence is the sequence similarity of the
// separator-stripped candidate against the target, penalized by separator
// density.
func (d *Detector) detectMixed(lower, word string) []Match {
	base := substitutionVariants(word, maxMixedBaseVariants)

	var matches []Match
	for _, variant := range base {
		letters := strings.Split(variant, "")
		for _, sep := range []string{" ", ".", "-", "_"} {
			spaced := strings.Join(letters, sep)
			confidence := mixedConfidence(spaced, word)
			if confidence <= mixedThreshold {
				continue
			}
			for _, span := range literalOccurrences(lower, spaced) {
				matches = append(matches, Match{
					TargetWord:  word,
					MatchedText: lower[span[0]:span[1]],
					Confidence:  confidence,
					Type:        TypeMixed,
					Start:       span[0],
					End:         span[1],
					Transform:   fmt.Sprintf("substitution + spacing: %s", spaced),
				})
			}
		}
	}
	return matches
}

// detectUnicode scans for homoglyph variants with a sliding-window sequence
// similarity rather than literal search: lowercasing does not fold
// cross-script homoglyphs, so byte-exact matching would miss them.
func (d *Detector) detectUnicode(lower, word string) []Match {
	variants := homoglyphVariants(word, maxUnicodeVariants)
	if len(variants) == 0 {
		return nil
	}

	runes := []rune(lower)
	// Byte offset of each rune, plus the terminating offset.
	offsets := make([]int, 0, len(runes)+1)
	for i := range lower {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(lower))

	var matches []Match
	for _, variant := range variants {
		vr := []rune(variant)
		if len(vr) > len(runes) {
			continue
		}
		for i := 0; i+len(vr) <= len(runes); i++ {
			window := string(runes[i : i+len(vr)])
			score := similarity.Ratio(variant, window)
			if score <= unicodeThreshold {
				continue
			}
			matches = append(matches, Match{
				TargetWord:  word,
				MatchedText: window,
				Confidence:  score,
				Type:        TypeUnicode,
				Start:       offsets[i],
				End:         offsets[i+len(vr)],
				Transform:   fmt.Sprintf("unicode variant: %s", variant),
			})
		}
	}
	return matches
}

// detectScrambled searches for the reversed word and, for short words, for
// adjacent-character-swap scrambles.
func (d *Detector) detectScrambled(lower, word string) []Match {
	var matches []Match

	reversed := reverse(word)
	if reversed != word {
		for _, span := range literalOccurrences(lower, reversed) {
			matches = append(matches, Match{
				TargetWord:  word,
				MatchedText: lower[span[0]:span[1]],
				Confidence:  reversedConfidence,
				Type:        TypeReversed,
				Start:       span[0],
				End:         span[1],
				Transform:   fmt.Sprintf("reversed: %s", reversed),
			})
		}
	}

	if len([]rune(word)) <= maxScrambleWordLen {
		for _, variant := range scrambleVariants(word, maxScrambleVariants) {
			for _, span := range literalOccurrences(lower, variant) {
				matches = append(matches, Match{
					TargetWord:  word,
					MatchedText: lower[span[0]:span[1]],
					Confidence:  scrambleConfidence,
					Type:        TypeScrambled,
					Start:       span[0],
					End:         span[1],
					Transform:   fmt.Sprintf("scrambled: %s", variant),
				})
			}
		}
	}
	return matches
}

// Normalize rewrites obfuscated text back toward canonical form: leetspeak
// and substitution characters are folded to their plain letters, unicode
// compatibility forms are decomposed, separators collapse, and remaining
// symbols are dropped. The result is suitable for feeding into plain
// keyword matching.
func (d *Detector) Normalize(text string) string {
	// NFKD splits fullwidth/accented forms into base letter + combining
	// marks, which are then dropped below.
	decomposed := norm.NFKD.String(strings.ToLower(text))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if plain, ok := leetMap[r]; ok {
			b.WriteRune(plain)
			continue
		}
		if plain, ok := reverseSubstitution[r]; ok {
			b.WriteRune(plain)
			continue
		}
		if unicode.Is(unicode.Mn, r) {
			continue // combining mark left over from decomposition
		}
		b.WriteRune(r)
	}

	cleaned := b.String()
	fields := strings.FieldsFunc(cleaned, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != ' '
	})
	cleaned = strings.Join(fields, "")
	return strings.Join(strings.Fields(cleaned), " ")
}

// CountByType tallies matches per transformation family.
func CountByType(matches []Match) map[Type]int {
	stats := make(map[Type]int, len(matches))
	for _, m := range matches {
		stats[m.Type]++
	}
	return stats
}

// reverseSubstitution folds every disguise character back to its plain
// letter. Built once from charSubstitutions and unicodeVariants; characters
// claimed by several letters keep the first registration.
var reverseSubstitution = func() map[rune]rune {
	rev := make(map[rune]rune)
	for _, plain := range []rune("abcdefghijklmnopqrstuvwxyz") {
		for _, sub := range charSubstitutions[plain] {
			if _, ok := rev[sub]; !ok {
				rev[sub] = plain
			}
		}
		for _, sub := range unicodeVariants[plain] {
			if _, ok := rev[sub]; !ok {
				rev[sub] = plain
			}
		}
	}
	return rev
}()

// substitutionVariants enumerates disguised spellings of word: the word
// itself, every single-character substitution, the full leetspeak form, and
// any curated variants, capped at maxVariants.
func substitutionVariants(word string, maxVariants int) []string {
	seen := map[string]bool{word: true}
	variants := []string{word}

	add := func(v string) bool {
		if seen[v] {
			return len(variants) < maxVariants
		}
		seen[v] = true
		variants = append(variants, v)
		return len(variants) < maxVariants
	}

	runes := []rune(word)
	for i, r := range runes {
		for _, sub := range charSubstitutions[r] {
			variant := string(runes[:i]) + string(sub) + string(runes[i+1:])
			if !add(variant) {
				return variants
			}
		}
	}

	// Full leetspeak form: every substitutable letter replaced at once.
	leet := strings.Map(func(r rune) rune {
		for leetChar, plain := range leetMap {
			if plain == r {
				return leetChar
			}
		}
		return r
	}, word)
	if !add(leet) {
		return variants
	}

	for _, v := range curatedLeetVariants[word] {
		if !add(v) {
			return variants
		}
	}
	return variants
}

// homoglyphVariants enumerates spellings with one character replaced by a
// cross-script homoglyph, capped at maxVariants.
func homoglyphVariants(word string, maxVariants int) []string {
	var variants []string
	runes := []rune(word)
	for i, r := range runes {
		for _, sub := range unicodeVariants[r] {
			variants = append(variants, string(runes[:i])+string(sub)+string(runes[i+1:]))
			if len(variants) >= maxVariants {
				return variants
			}
		}
	}
	return variants
}

// scrambleVariants enumerates adjacent-character swaps of word, capped at
// maxVariants. The unmodified word is never included.
func scrambleVariants(word string, maxVariants int) []string {
	var variants []string
	runes := []rune(word)
	for i := 0; i+1 < len(runes); i++ {
		if runes[i] == runes[i+1] {
			continue
		}
		swapped := make([]rune, len(runes))
		copy(swapped, runes)
		swapped[i], swapped[i+1] = swapped[i+1], swapped[i]
		variants = append(variants, string(swapped))
		if len(variants) >= maxVariants {
			break
		}
	}
	return variants
}

// substitutionConfidence scores a variant against its target:
// exact character matches count 1.0, known substitutions count 0.8,
// divided by the target length. Variants of a different length score 0.
func substitutionConfidence(variant, target string) float64 {
	vr, tr := []rune(variant), []rune(target)
	if len(vr) != len(tr) {
		return 0.0
	}

	var score float64
	for i := range tr {
		switch {
		case vr[i] == tr[i]:
			score += 1.0
		case isKnownSubstitution(tr[i], vr[i]):
			score += 0.8
		}
	}
	confidence := score / float64(len(tr))
	return min(1.0, confidence)
}

// mixedConfidence scores a separator-interleaved variant: the sequence
// similarity of the stripped candidate against the target, minus a penalty
// of 0.05 per separator character, capped at 0.3.
func mixedConfidence(spaced, target string) float64 {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, spaced)
	if stripped == "" {
		return 0.0
	}

	score := similarity.Ratio(stripped, target)
	separators := len([]rune(spaced)) - len([]rune(stripped))
	penalty := min(0.3, float64(separators)*0.05)
	return max(0.0, score-penalty)
}

func isKnownSubstitution(plain, disguised rune) bool {
	for _, sub := range charSubstitutions[plain] {
		if sub == disguised {
			return true
		}
	}
	if folded, ok := leetMap[disguised]; ok && folded == plain {
		return true
	}
	return false
}

// literalOccurrences returns the byte spans of every non-overlapping
// occurrence of needle in haystack.
func literalOccurrences(haystack, needle string) [][2]int {
	if needle == "" {
		return nil
	}
	var spans [][2]int
	offset := 0
	for {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			return spans
		}
		start := offset + idx
		end := start + len(needle)
		spans = append(spans, [2]int{start, end})
		offset = end
	}
}

// dedupe resolves overlapping candidates: matches are visited in
// (confidence desc, start asc) order and a candidate is dropped when its
// span overlaps an already-kept match for the same target word.
func dedupe(matches []Match) []Match {
	if len(matches) == 0 {
		return matches
	}

	sorted := make([]Match, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Confidence != sorted[j].Confidence {
			return sorted[i].Confidence > sorted[j].Confidence
		}
		return sorted[i].Start < sorted[j].Start
	})

	var kept []Match
	for _, m := range sorted {
		overlaps := false
		for _, k := range kept {
			if k.TargetWord == m.TargetWord && spansOverlap(m.Start, m.End, k.Start, k.End) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, m)
		}
	}
	return kept
}

func spansOverlap(s1, e1, s2, e2 int) bool {
	return s1 < e2 && s2 < e1
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
