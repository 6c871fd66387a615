// Package fusion combines the per-signal detection results (category scan,
// sentiment, behavioral patterns, obfuscation, intent) into one risk score
// on [0,1]. Fusion is rank-weighted rather than averaged: the strongest
// signal dominates, the second corroborates, and the rest only nudge, so a
// weak noisy signal cannot dilute a strong confident one.
package fusion

import (
	"sort"

	"github.com/sentra/guard/internal/behavior"
	"github.com/sentra/guard/internal/category"
	"github.com/sentra/guard/internal/intent"
	"github.com/sentra/guard/internal/obfuscation"
	"github.com/sentra/guard/internal/sentiment"
)

// Level is the fused risk classification.
type Level string

const (
	LevelMinimal  Level = "MINIMAL"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Signals carries the per-detector results feeding one fusion. Every field
// is optional; absent signals simply contribute no factor.
type Signals struct {
	Category    *category.Result
	Sentiment   *sentiment.Result
	Patterns    []behavior.PatternMatch
	Obfuscation []obfuscation.Match
	Intent      *intent.Classification
}

// Assessment is the fused outcome.
type Assessment struct {
	Score      float64 `json:"risk_score"`
	Level      Level   `json:"risk_level"`
	Confidence float64 `json:"confidence"`
	Factors    int     `json:"factors"`
}

// Fuse computes the combined risk assessment from whatever signals are
// present.
func Fuse(sig Signals) Assessment {
	var factors, confidences []float64

	if sig.Category != nil {
		factors = append(factors, sig.Category.RiskScore/100.0)
		confidences = append(confidences, sig.Category.Confidence)
	}
	if sig.Sentiment != nil {
		factors = append(factors, sig.Sentiment.Toxicity)
		confidences = append(confidences, sig.Sentiment.Confidence)
	}
	if len(sig.Patterns) > 0 {
		var risk, conf float64
		for _, m := range sig.Patterns {
			risk = max(risk, m.Confidence*float64(m.Severity)/4.0)
			conf = max(conf, m.Confidence)
		}
		factors = append(factors, risk)
		confidences = append(confidences, conf)
	}
	if len(sig.Obfuscation) > 0 {
		var risk, conf float64
		for _, m := range sig.Obfuscation {
			risk = max(risk, m.Confidence*0.8)
			conf = max(conf, m.Confidence)
		}
		factors = append(factors, risk)
		confidences = append(confidences, conf)
	}

	if len(factors) == 0 {
		return Assessment{Score: 0, Level: LevelMinimal, Confidence: 0}
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(factors)))

	base := factors[0]
	if len(factors) >= 2 {
		base = 0.6*factors[0] + 0.4*factors[1]
		if rest := factors[2:]; len(rest) > 0 {
			var sum float64
			for _, f := range rest {
				sum += f
			}
			base += 0.1 * (sum / float64(len(rest)))
		}
	}

	score := min(1.0, base*contextMultiplier(sig.Intent))

	var confSum float64
	for _, c := range confidences {
		confSum += c
	}

	return Assessment{
		Score:      score,
		Level:      LevelForScore(score),
		Confidence: confSum / float64(len(confidences)),
		Factors:    len(factors),
	}
}

// contextMultiplier scales risk by communicative intent and platform
// tolerance: threatening intent amplifies, playful banter damps, and less
// tolerant platforms shift risk upward.
func contextMultiplier(c *intent.Classification) float64 {
	if c == nil {
		return 1.0
	}
	return c.RiskMultiplier * (1.0 + c.PlatformAdjustment)
}

// LevelForScore maps a fused [0,1] score onto the risk level ladder.
func LevelForScore(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelCritical
	case score >= 0.6:
		return LevelHigh
	case score >= 0.3:
		return LevelMedium
	case score > 0.1:
		return LevelLow
	default:
		return LevelMinimal
	}
}
