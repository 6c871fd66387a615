package category

import (
	"testing"
)

func TestDetect_ExactHarassment(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("You are such an idiot!", nil)
	if !result.IsAbusive {
		t.Fatal("expected abusive result")
	}
	if len(result.Detections) != 1 {
		t.Fatalf("got %d detections, want 1: %+v", len(result.Detections), result.Detections)
	}

	det := result.Detections[0]
	if det.Category != "harassment" {
		t.Errorf("category = %s, want harassment", det.Category)
	}
	if det.Method != MethodExact {
		t.Errorf("method = %s, want %s", det.Method, MethodExact)
	}
	if det.Confidence != 1.0 {
		t.Errorf("confidence = %.2f, want 1.0", det.Confidence)
	}
	if len(result.Suggestions) == 0 {
		t.Error("expected remediation suggestions")
	}
}

func TestDetect_PhrasePattern(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("you are so stupid", nil)

	var sawRegex, sawExact bool
	for _, det := range result.Detections {
		switch det.Method {
		case MethodRegex:
			sawRegex = true
			if det.Confidence != 0.9 {
				t.Errorf("regex confidence = %.2f, want 0.9", det.Confidence)
			}
		case MethodExact:
			sawExact = true
		}
	}
	if !sawRegex || !sawExact {
		t.Errorf("expected both regex and exact hits, got %+v", result.Detections)
	}
}

func TestDetect_FuzzyMatch(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("you are stupd", nil)
	if len(result.Detections) != 1 {
		t.Fatalf("got %d detections, want 1: %+v", len(result.Detections), result.Detections)
	}

	det := result.Detections[0]
	if det.Method != MethodFuzzy {
		t.Errorf("method = %s, want %s", det.Method, MethodFuzzy)
	}
	if det.Match != "stupid" || det.ActualWord != "stupd" {
		t.Errorf("match = %q actual = %q, want stupid/stupd", det.Match, det.ActualWord)
	}
	// Fuzzy hits drop one severity step below the category base.
	if det.Severity != SeverityHigh-1 {
		t.Errorf("severity = %d, want %d", det.Severity, SeverityHigh-1)
	}
}

func TestDetect_LeetFoldedByPreprocess(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("you 1d10t", nil)
	if !result.IsAbusive {
		t.Fatalf("leetspeak not detected: %+v", result)
	}
	if result.Detections[0].Method != MethodExact {
		t.Errorf("method = %s, want exact after preprocessing", result.Detections[0].Method)
	}
}

func TestDetect_MultiWordVocabulary(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("buy now and get rich", nil)

	found := make(map[string]bool)
	for _, det := range result.Detections {
		if det.Category == "spam" && det.Method == MethodExact {
			found[det.Match] = true
		}
	}
	if !found["buy now"] || !found["get rich"] {
		t.Errorf("multi-word spam entries missed: %+v", result.Detections)
	}
}

func TestDetect_CleanText(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("what a lovely afternoon for a walk", nil)
	if result.IsAbusive {
		t.Errorf("clean text flagged abusive: %+v", result)
	}
	if result.RiskLevel != LevelNone {
		t.Errorf("risk level = %s, want %s", result.RiskLevel, LevelNone)
	}
}

func TestDetect_EmptyText(t *testing.T) {
	d := NewDetector(DefaultConfig())

	result := d.Detect("", nil)
	if result.IsAbusive {
		t.Error("empty text flagged abusive")
	}
	if result.Confidence != 1.0 {
		t.Errorf("empty-result confidence = %.2f, want 1.0", result.Confidence)
	}
	if result.RiskLevel != LevelNone {
		t.Errorf("risk level = %s, want %s", result.RiskLevel, LevelNone)
	}
}

func TestDetect_DensityCap(t *testing.T) {
	d := NewDetector(DefaultConfig())

	// Dense abuse in short text saturates near the top of the scale.
	result := d.Detect("idiot moron loser", nil)
	if result.RiskScore < 80 || result.RiskScore > 100 {
		t.Errorf("risk score = %.2f, want within [80,100]", result.RiskScore)
	}
	if result.RiskLevel != LevelCritical {
		t.Errorf("risk level = %s, want %s", result.RiskLevel, LevelCritical)
	}
}

func TestDetect_CacheHit(t *testing.T) {
	d := NewDetector(DefaultConfig())

	first := d.Detect("you idiot", nil)
	second := d.Detect("you idiot", nil)

	if first.RiskScore != second.RiskScore {
		t.Errorf("cached score %.2f differs from original %.2f", second.RiskScore, first.RiskScore)
	}
	if stats := d.Stats(); stats.CacheHitRate == 0 {
		t.Errorf("cache hit rate = %.2f, want > 0", stats.CacheHitRate)
	}
}

func TestDetect_CacheKeyIncludesContext(t *testing.T) {
	d := NewDetector(DefaultConfig())

	plain := d.Detect("you idiot", nil)
	gaming := d.Detect("you idiot", map[string]any{"platform": "gaming"})

	// Gaming platforms damp harassment severity, so scores must differ.
	if plain.RiskScore == gaming.RiskScore {
		t.Errorf("context ignored: both scores %.2f", plain.RiskScore)
	}
}

func TestAdjustForContext(t *testing.T) {
	d := NewDetector(DefaultConfig())
	base := []Detection{{Category: "harassment", Severity: SeverityHigh, Confidence: 1.0}}

	tests := []struct {
		name         string
		context      map[string]any
		wantSeverity int
		wantConf     float64
	}{
		{
			name:         "twitter damps harassment",
			context:      map[string]any{"platform": "twitter"},
			wantSeverity: 2,
			wantConf:     1.0,
		},
		{
			name:         "linkedin escalates everything",
			context:      map[string]any{"platform": "LinkedIn"},
			wantSeverity: 3, // int(3 * 1.2) truncates back to 3
			wantConf:     1.0,
		},
		{
			name:         "repeat offender bumps severity",
			context:      map[string]any{"user_history": map[string]any{"repeat_offender": true}},
			wantSeverity: 4,
			wantConf:     1.0,
		},
		{
			name:         "false positive history damps confidence",
			context:      map[string]any{"user_history": map[string]any{"false_positive_history": 5}},
			wantSeverity: 3,
			wantConf:     0.8,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.adjustForContext(base, tt.context)
			if got[0].Severity != tt.wantSeverity {
				t.Errorf("severity = %d, want %d", got[0].Severity, tt.wantSeverity)
			}
			if got[0].Confidence != tt.wantConf {
				t.Errorf("confidence = %.2f, want %.2f", got[0].Confidence, tt.wantConf)
			}
		})
	}
}

func TestAddRemovePattern(t *testing.T) {
	d := NewDetector(DefaultConfig())

	if err := d.AddPattern("harassment", `[invalid`, SeverityHigh); err == nil {
		t.Fatal("malformed pattern accepted")
	}

	if err := d.AddPattern("harassment", `touch\s+grass`, SeverityHigh); err != nil {
		t.Fatalf("valid pattern rejected: %v", err)
	}
	if result := d.Detect("go touch grass", nil); !result.IsAbusive {
		t.Error("custom pattern did not fire")
	}

	if !d.RemovePattern("harassment", `touch\s+grass`) {
		t.Error("RemovePattern returned false for registered pattern")
	}
	if d.RemovePattern("harassment", `touch\s+grass`) {
		t.Error("RemovePattern returned true for already-removed pattern")
	}

	d.ClearCache()
	if result := d.Detect("go touch grass", nil); result.IsAbusive {
		t.Error("removed pattern still fires")
	}
}

func TestStats(t *testing.T) {
	d := NewDetector(DefaultConfig())

	d.Detect("you idiot", nil)
	d.Detect("nice weather today isn't it", nil)

	stats := d.Stats()
	if stats.TotalScanned != 2 {
		t.Errorf("total scanned = %d, want 2", stats.TotalScanned)
	}
	if stats.ThreatsDetected != 1 {
		t.Errorf("threats detected = %d, want 1", stats.ThreatsDetected)
	}
	if stats.Categories["harassment"] != 1 {
		t.Errorf("harassment count = %d, want 1", stats.Categories["harassment"])
	}
	if stats.DetectionRate != 50 {
		t.Errorf("detection rate = %.2f, want 50", stats.DetectionRate)
	}

	d.ResetStats()
	if got := d.Stats(); got.TotalScanned != 0 || got.ThreatsDetected != 0 {
		t.Errorf("stats not reset: %+v", got)
	}
}

func TestLevelForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0, LevelNone},
		{0.5, LevelLow},
		{29.9, LevelLow},
		{30, LevelMedium},
		{59.9, LevelMedium},
		{60, LevelHigh},
		{79.9, LevelHigh},
		{80, LevelCritical},
		{100, LevelCritical},
	}
	for _, tt := range tests {
		if got := LevelForScore(tt.score); got != tt.want {
			t.Errorf("LevelForScore(%.1f) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"You're such an IDIOT!!!", "you re such an idiot"},
		{"1d10t", "idiot"},
		{"  spaced   out  ", "spaced out"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := preprocess(tt.in); got != tt.want {
			t.Errorf("preprocess(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
