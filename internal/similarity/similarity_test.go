package similarity

import (
	"math"
	"testing"
)

// symmetricAlgorithms is every metric expected to satisfy sim(x,y)==sim(y,x).
// PhoneticSimilarity is excluded: the code construction preserves the first
// letter verbatim, so it is asymmetric by design.
var symmetricAlgorithms = map[string]func(a, b string) float64{
	"levenshtein":    Levenshtein,
	"jaro":           Jaro,
	"jaro_winkler":   JaroWinkler,
	"sequence_ratio": Ratio,
	"jaccard":        Jaccard,
	"cosine":         Cosine,
	"bigram":         Bigram,
}

func TestIdentity(t *testing.T) {
	inputs := []string{"a", "idiot", "hello world", "über", "x"}

	for name, fn := range symmetricAlgorithms {
		for _, s := range inputs {
			if got := fn(s, s); got != 1.0 {
				t.Errorf("%s(%q, %q) = %v, want 1.0", name, s, s, got)
			}
		}
	}
}

func TestSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"idiot", "id1ot"},
		{"stupid", "stup"},
		{"hello", "world"},
		{"", "abc"},
		{"kitten", "sitting"},
	}

	for name, fn := range symmetricAlgorithms {
		for _, p := range pairs {
			ab := fn(p[0], p[1])
			ba := fn(p[1], p[0])
			if math.Abs(ab-ba) > 1e-9 {
				t.Errorf("%s not symmetric for (%q, %q): %v vs %v", name, p[0], p[1], ab, ba)
			}
		}
	}
}

func TestEmptyStrings(t *testing.T) {
	for name, fn := range symmetricAlgorithms {
		if got := fn("", ""); got != 1.0 {
			t.Errorf("%s(\"\", \"\") = %v, want 1.0", name, got)
		}
	}
	if got := Distance("", ""); got != 0 {
		t.Errorf("Distance(\"\", \"\") = %d, want 0", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		distance int
		sim      float64
	}{
		{"kitten", "sitting", 3, 1.0 - 3.0/7.0},
		{"idiot", "idiot", 0, 1.0},
		{"abc", "", 3, 0.0},
		{"idiot", "id1ot", 1, 0.8},
	}

	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.distance {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.distance)
		}
		if got := Levenshtein(tt.a, tt.b); math.Abs(got-tt.sim) > 1e-9 {
			t.Errorf("Levenshtein(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.sim)
		}
	}
}

func TestJaroWinkler_PrefixBoost(t *testing.T) {
	// Both pairs have the same character overlap, but the shared prefix in
	// the first pair must produce a strictly higher Jaro-Winkler score.
	withPrefix := JaroWinkler("martha", "marhta")
	jaroOnly := Jaro("martha", "marhta")

	if withPrefix <= jaroOnly {
		t.Errorf("JaroWinkler = %v should exceed Jaro = %v for common prefix", withPrefix, jaroOnly)
	}
	if withPrefix > 1.0 {
		t.Errorf("JaroWinkler = %v exceeds 1.0", withPrefix)
	}
}

func TestJaro_Disjoint(t *testing.T) {
	if got := Jaro("abc", "xyz"); got != 0.0 {
		t.Errorf("Jaro of disjoint strings = %v, want 0.0", got)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abcd", "abcd", 1.0},
		{"abcd", "dcba", 2.0 / 8.0},  // LCS length 1
		{"idiot", "idio", 8.0 / 9.0}, // LCS length 4
	}

	for _, tt := range tests {
		if got := Ratio(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Ratio(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	// Sets {a,b,c} and {b,c,d}: intersection 2, union 4.
	if got := Jaccard("abc", "bcd"); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Jaccard(abc, bcd) = %v, want 0.5", got)
	}
	// Repeated characters collapse into the set.
	if got := Jaccard("aaa", "a"); got != 1.0 {
		t.Errorf("Jaccard(aaa, a) = %v, want 1.0", got)
	}
}

func TestBigram(t *testing.T) {
	// "night" and "nacht": bigrams {ni,ig,gh,ht} vs {na,ac,ch,ht}.
	// Intersection {ht} = 1, union = 7.
	if got := Bigram("night", "nacht"); math.Abs(got-1.0/7.0) > 1e-9 {
		t.Errorf("Bigram(night, nacht) = %v, want %v", got, 1.0/7.0)
	}
	// Short strings fall back to Ratio.
	if got := NGram("a", "a", 2); got != 1.0 {
		t.Errorf("NGram short fallback = %v, want 1.0", got)
	}
}

func TestPhoneticCode(t *testing.T) {
	tests := []struct {
		word string
		want string
	}{
		{"", ""},
		{"cat", "cd"},       // c kept, a dropped, t -> d (dt class)
		{"kat", "kd"},       // first letter preserved verbatim
		{"bubble", "bl"},    // repeated same-class letters deduplicated
		{"stupid", "sdbd"},  // s, t->d, p->b, d
	}

	for _, tt := range tests {
		if got := PhoneticCode(tt.word); got != tt.want {
			t.Errorf("PhoneticCode(%q) = %q, want %q", tt.word, got, tt.want)
		}
	}
}

func TestPhoneticSimilarity(t *testing.T) {
	// "cat" and "kat" sound identical but start with different letters, so
	// their codes differ only in the preserved first character.
	got := PhoneticSimilarity("cat", "kat")
	if got < 0.4 || got >= 1.0 {
		t.Errorf("PhoneticSimilarity(cat, kat) = %v, want partial match", got)
	}
	if PhoneticSimilarity("dog", "dog") != 1.0 {
		t.Error("identical words should have phonetic similarity 1.0")
	}
}

func TestBestMatch(t *testing.T) {
	name, score := BestMatch("idiot", "idiot")
	if score != 1.0 {
		t.Errorf("BestMatch identity score = %v, want 1.0", score)
	}
	if name == "" {
		t.Error("BestMatch returned empty algorithm name")
	}

	_, score = BestMatch("idiot", "1d1ot")
	if score <= 0.0 || score > 1.0 {
		t.Errorf("BestMatch(idiot, 1d1ot) score = %v, want (0,1]", score)
	}
}

func TestLengthRatioOK(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		ok   bool
	}{
		{"idiot", "idiots", 0.4, true},
		{"ab", "abcdefghij", 0.4, false},
		{"", "abc", 0.4, false},
		{"abcd", "ab", 0.5, true},
	}

	for _, tt := range tests {
		if got := LengthRatioOK(tt.a, tt.b, tt.min); got != tt.ok {
			t.Errorf("LengthRatioOK(%q, %q, %v) = %v, want %v", tt.a, tt.b, tt.min, got, tt.ok)
		}
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	tests := []struct {
		length int
		want   float64
	}{
		{1, 0.9},
		{3, 0.9},
		{4, 0.8},
		{5, 0.8},
		{6, 0.75},
		{8, 0.75},
		{9, 0.7},
		{20, 0.7},
	}

	for _, tt := range tests {
		if got := AdaptiveThreshold(tt.length); got != tt.want {
			t.Errorf("AdaptiveThreshold(%d) = %v, want %v", tt.length, got, tt.want)
		}
	}
}

func TestScoresInRange(t *testing.T) {
	pairs := [][2]string{
		{"idiot", "1d10t"},
		{"s t u p i d", "stupid"},
		{"a", "abcdefgh"},
		{"", ""},
		{"hello", ""},
	}

	for name, fn := range symmetricAlgorithms {
		for _, p := range pairs {
			got := fn(p[0], p[1])
			if got < 0.0 || got > 1.0 {
				t.Errorf("%s(%q, %q) = %v outside [0,1]", name, p[0], p[1], got)
			}
		}
	}
}
