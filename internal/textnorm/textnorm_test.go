package textnorm

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello world", "hello world"},
		{"collapses whitespace", "you   are\t\tso   annoying", "you are so annoying"},
		{"trims", "  hey  ", "hey"},
		{"strips control chars", "he\x00llo\x1b", "hello"},
		{"strips zero width", "id\u200bio\u200dt", "idiot"},
		{"strips word joiner and bom", "lo\u2060se\ufeffr", "loser"},
		{"preserves case", "STOP Shouting", "STOP Shouting"},
		{"composes accents", "café", "café"},
		{"newlines become spaces", "line one\nline two", "line one line two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
