// Package intent classifies the communicative intent of a message and
// derives the context multiplier applied during risk fusion: threatening
// intent amplifies risk, playful banter damps it, and platform norms shift
// it by how much aggression each platform tolerates.
package intent

import (
	"regexp"
	"strings"
)

// Type names a communication intent.
type Type string

const (
	GenuineCriticism     Type = "genuine_criticism"
	ConstructiveFeedback Type = "constructive_feedback"
	PlayfulBanter        Type = "playful_banter"
	SarcasticHumor       Type = "sarcastic_humor"
	AggressiveAttack     Type = "aggressive_attack"
	PassiveAggressive    Type = "passive_aggressive"
	Threatening          Type = "threatening"
	Harassment           Type = "harassment"
	Supportive           Type = "supportive"
	Unknown              Type = "unknown"
)

// Classification is the outcome of one intent pass.
type Classification struct {
	Intent     Type    `json:"intent"`
	Confidence float64 `json:"confidence"`
	// RiskMultiplier scales the fused risk score; 1.0 is neutral.
	RiskMultiplier float64 `json:"risk_multiplier"`
	// PlatformAdjustment is an additive risk modifier in [0,1) derived
	// from the platform's tolerance for aggression; 0 when unknown.
	PlatformAdjustment float64 `json:"platform_adjustment"`
}

// profile is the evidence set for one intent type.
type profile struct {
	intent   Type
	patterns []*regexp.Regexp
	keywords []string
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// profiles is scanned in order so ties resolve deterministically toward the
// more severe intent.
var profiles = []profile{
	{
		intent: Threatening,
		patterns: compileAll(
			`i'll\s+get\s+you`, `you're\s+gonna\s+pay`, `watch\s+your\s+back`,
			`meet\s+me\s+outside`, `you're\s+dead`,
		),
		keywords: []string{"threat", "hurt", "kill", "destroy", "revenge"},
	},
	{
		intent: AggressiveAttack,
		patterns: compileAll(
			`you're\s+an\s+idiot`, `shut\s+up`, `you\s+suck`,
			`go\s+to\s+hell`, `i\s+hate\s+you`,
		),
		keywords: []string{"idiot", "stupid", "hate", "suck", "pathetic"},
	},
	{
		intent: SarcasticHumor,
		patterns: compileAll(
			`oh\s+great`, `well\s+done`, `congratulations`,
			`brilliant\s+idea`, `genius\s+move`,
		),
		keywords: []string{"obviously", "clearly", "sure", "right"},
	},
	{
		intent: PlayfulBanter,
		patterns: compileAll(
			`just\s+kidding`, `haha\s+jk`, `lol\s+just\s+messing`,
			`you\s+know\s+i'm\s+joking`, `teasing\s+you`,
		),
		keywords: []string{"kidding", "joking", "teasing", "lol", "haha"},
	},
	{
		intent: ConstructiveFeedback,
		patterns: compileAll(
			`you\s+might\s+want\s+to`, `here's\s+how\s+you\s+can`, `try\s+doing`,
			`next\s+time\s+maybe`, `my\s+advice\s+would\s+be`,
		),
		keywords: []string{"advice", "help", "improve", "better", "suggestion"},
	},
	{
		intent: GenuineCriticism,
		patterns: compileAll(
			`i\s+think\s+you\s+could`, `maybe\s+consider`, `have\s+you\s+thought\s+about`,
			`constructive\s+feedback`, `respectfully\s+disagree`,
		),
		keywords: []string{"improve", "suggestion", "feedback", "constructive"},
	},
}

// riskMultipliers scale fused risk per intent; absent intents are neutral.
var riskMultipliers = map[Type]float64{
	Threatening:          1.5,
	AggressiveAttack:     1.3,
	Harassment:           1.2,
	PassiveAggressive:    1.1,
	SarcasticHumor:       0.8,
	PlayfulBanter:        0.6,
	ConstructiveFeedback: 0.4,
	Supportive:           0.2,
}

// platformTolerance records how much casual aggression each platform
// absorbs before it reads as abuse. The additive platform adjustment is
// 1 - tolerance.
var platformTolerance = map[string]float64{
	"twitter":   0.6,
	"instagram": 0.4,
	"facebook":  0.5,
	"discord":   0.7,
	"reddit":    0.6,
	"tiktok":    0.5,
	"youtube":   0.6,
}

// Classifier scores message intent. Stateless and safe for concurrent use.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify returns the strongest-scoring intent for text and the risk
// modifiers the fusion stage applies. Platform may be empty.
func (c *Classifier) Classify(text, platform string) Classification {
	lower := strings.ToLower(text)

	best := Classification{
		Intent:             Unknown,
		RiskMultiplier:     1.0,
		PlatformAdjustment: platformAdjustment(platform),
	}

	var bestScore float64
	for _, p := range profiles {
		score, evidenced := scoreProfile(lower, p)
		if !evidenced || score <= bestScore {
			continue
		}
		bestScore = score
		best.Intent = p.intent
		best.Confidence = score
		best.RiskMultiplier = multiplierFor(p.intent)
	}
	return best
}

// scoreProfile accumulates 0.3 per pattern hit and 0.2 per keyword hit,
// capped at 1.0; a profile with no hits contributes nothing.
func scoreProfile(lower string, p profile) (float64, bool) {
	var score float64
	var hits int
	for _, re := range p.patterns {
		if re.MatchString(lower) {
			score += 0.3
			hits++
		}
	}
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			score += 0.2
			hits++
		}
	}
	return min(1.0, score), hits > 0
}

func multiplierFor(t Type) float64 {
	if m, ok := riskMultipliers[t]; ok {
		return m
	}
	return 1.0
}

func platformAdjustment(platform string) float64 {
	tolerance, ok := platformTolerance[strings.ToLower(platform)]
	if !ok {
		return 0
	}
	return 1.0 - tolerance
}
