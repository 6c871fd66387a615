// Package textnorm cleans raw inbound text before analysis: unicode
// composition, control-character stripping, and whitespace collapsing. It
// deliberately preserves letter case — downstream scorers read capitalization
// as a tone signal.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clean returns a normalized copy of text suitable for the detection
// pipeline. Control and zero-width characters are dropped, runs of
// whitespace collapse to a single space, and the result is NFC-composed.
func Clean(text string) string {
	if text == "" {
		return ""
	}

	text = norm.NFC.String(text)

	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		case unicode.IsControl(r) || isZeroWidth(r):
			// dropped
		default:
			b.WriteRune(r)
			lastSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// isZeroWidth reports whether r is an invisible formatting character often
// used to split words past keyword filters.
func isZeroWidth(r rune) bool {
	switch r {
	case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
		return true
	}
	return false
}
