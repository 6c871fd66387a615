// Package sentiment scores the emotional polarity, tone, and toxicity of
// text with a rule-based lexicon tuned for abuse detection. It feeds one of
// the optional signals consumed by risk fusion.
package sentiment

import (
	"regexp"
	"strings"
)

// Polarity classifies overall sentiment on a five-step scale.
type Polarity int

const (
	VeryNegative Polarity = -2
	Negative     Polarity = -1
	Neutral      Polarity = 0
	Positive     Polarity = 1
	VeryPositive Polarity = 2
)

// Tone classifies the emotional register of a message.
type Tone string

const (
	ToneAggressive    Tone = "aggressive"
	ToneHostile       Tone = "hostile"
	ToneSarcastic     Tone = "sarcastic"
	ToneDismissive    Tone = "dismissive"
	ToneThreatening   Tone = "threatening"
	ToneCondescending Tone = "condescending"
	ToneNeutral       Tone = "neutral"
	ToneSupportive    Tone = "supportive"
	ToneEmpathetic    Tone = "empathetic"
)

// Result is the outcome of one sentiment pass.
type Result struct {
	Polarity   Polarity `json:"polarity"`
	Tone       Tone     `json:"tone"`
	Confidence float64  `json:"confidence"`
	Intensity  float64  `json:"intensity"`
	KeyPhrases []string `json:"key_phrases"`
	Indicators []string `json:"indicators"`
	Toxicity   float64  `json:"toxicity"`
}

// lexEntry pairs a word's polarity with its intensity.
type lexEntry struct{ polarity, intensity float64 }

var lexicon = map[string]lexEntry{
	"hate": {-0.9, 0.9}, "despise": {-0.8, 0.8}, "loathe": {-0.8, 0.8},
	"disgusting": {-0.7, 0.7}, "terrible": {-0.7, 0.6}, "awful": {-0.7, 0.6},
	"horrible": {-0.7, 0.7}, "pathetic": {-0.6, 0.6}, "worthless": {-0.8, 0.7},
	"stupid": {-0.6, 0.5}, "idiot": {-0.6, 0.6}, "moron": {-0.7, 0.6},
	"loser": {-0.6, 0.6}, "trash": {-0.7, 0.6}, "garbage": {-0.6, 0.5},
	"kill": {-0.9, 1.0}, "murder": {-0.9, 1.0}, "destroy": {-0.8, 0.9},
	"hurt": {-0.7, 0.8}, "harm": {-0.7, 0.8}, "attack": {-0.8, 0.9},
	"beat": {-0.7, 0.8}, "crush": {-0.6, 0.7}, "eliminate": {-0.8, 0.8},
	"whatever": {-0.3, 0.4}, "obviously": {-0.2, 0.3}, "duh": {-0.3, 0.4},
	"seriously": {-0.2, 0.3}, "ridiculous": {-0.5, 0.5}, "absurd": {-0.5, 0.5},
	"outsider": {-0.4, 0.5}, "outcast": {-0.5, 0.6}, "reject": {-0.6, 0.6},
	"unwelcome": {-0.5, 0.5}, "unwanted": {-0.5, 0.5}, "excluded": {-0.4, 0.5},
	"annoying": {-0.4, 0.4}, "irritating": {-0.4, 0.4}, "bothering": {-0.3, 0.3},
	"weird": {-0.3, 0.3}, "great": {0.6, 0.6}, "amazing": {0.7, 0.7},
	"wonderful": {0.7, 0.7}, "excellent": {0.6, 0.6}, "fantastic": {0.7, 0.7},
	"perfect": {0.6, 0.6}, "awesome": {0.6, 0.6}, "brilliant": {0.6, 0.6},
	"support": {0.5, 0.5}, "help": {0.4, 0.4}, "understand": {0.3, 0.3},
	"care": {0.5, 0.5}, "empathy": {0.6, 0.6}, "compassion": {0.6, 0.6},
	"kindness": {0.6, 0.6}, "respect": {0.5, 0.5}, "appreciate": {0.5, 0.5},
}

var intensifiers = map[string]float64{
	"very": 1.5, "really": 1.4, "extremely": 1.8, "incredibly": 1.7,
	"absolutely": 1.6, "totally": 1.5, "completely": 1.6, "so": 1.3,
	"fucking": 1.8, "damn": 1.4, "super": 1.4,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true, "none": true,
	"nobody": true, "nowhere": true, "neither": true, "nor": true,
	"hardly": true, "scarcely": true, "barely": true, "seldom": true,
	"without": true, "cannot": true, "cant": true, "dont": true,
	"doesnt": true, "didnt": true,
}

// tonePatterns is scanned in order; the first matching tone wins.
var tonePatterns = []struct {
	tone     Tone
	patterns []*regexp.Regexp
}{
	{ToneAggressive, compileAll(
		`i\s+will\s+\w+\s+you`, `you\s+better\s+\w+`, `don't\s+mess\s+with`,
		`i'll\s+show\s+you`, `fight\s+me`, `bring\s+it\s+on`,
	)},
	{ToneHostile, compileAll(`shut\s+up`, `get\s+lost`, `go\s+away`, `leave\s+me\s+alone`)},
	{ToneSarcastic, compileAll(`oh\s+great`, `how\s+wonderful`, `just\s+perfect`, `real\s+smart`)},
	{ToneDismissive, compileAll(`whatever`, `don't\s+care`, `who\s+cares`, `big\s+deal`)},
	{ToneThreatening, compileAll(`you'll\s+regret`, `watch\s+out`, `you're\s+gonna\s+pay`)},
	{ToneCondescending, compileAll(`let\s+me\s+explain`, `you\s+don't\s+understand`, `it's\s+simple`)},
}

var sarcasmPatterns = compileAll(
	`oh\s+(great|wonderful|fantastic)`,
	`real\s+(smart|clever|genius)`,
	`good\s+job\s+genius`,
	`wow\s+(amazing|incredible)`,
	`sure\s+thing`,
	`yeah\s+right`,
)

var toxicPhrases = compileAll(
	`kill\s+(yourself|urself)`, `go\s+die`, `end\s+your\s+life`,
	`nobody\s+loves\s+you`, `you\s+should\s+die`,
)

var toneToxicity = map[Tone]float64{
	ToneThreatening:   2.0,
	ToneAggressive:    1.8,
	ToneHostile:       1.6,
	ToneCondescending: 1.3,
	ToneDismissive:    1.2,
	ToneSarcastic:     1.1,
	ToneNeutral:       1.0,
	ToneSupportive:    0.5,
	ToneEmpathetic:    0.3,
}

var (
	capsRun       = regexp.MustCompile(`[A-Z]{4,}`)
	longCapsRun   = regexp.MustCompile(`[A-Z]{5,}`)
	bangs         = regexp.MustCompile(`[!]{2,}`)
	tripleBangs   = regexp.MustCompile(`[!]{3,}`)
	questions     = regexp.MustCompile(`[?]{2,}`)
	heavyEmphasis = regexp.MustCompile(`[!?]{4,}`)
	trailingDots  = regexp.MustCompile(`[.]{2,}|[!]{2,}`)
	nonWord       = regexp.MustCompile(`[^\w]`)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// Analyzer runs lexicon-based sentiment scoring. Stateless and safe for
// concurrent use.
type Analyzer struct{}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze scores one message. The optional context map recognizes
// "user_history" and "conversation_context" keys, which raise confidence.
func (a *Analyzer) Analyze(text string, context map[string]any) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Polarity: Neutral, Tone: ToneNeutral}
	}

	processed := expandContractions(strings.ToLower(text))
	tokens := strings.Fields(processed)

	polarity, intensity := baseSentiment(tokens)
	polarity, intensity = applyModifiers(tokens, polarity, intensity)
	tone := detectTone(text, polarity)

	if detectSarcasm(text, tokens) {
		polarity *= -1
		tone = ToneSarcastic
	}

	return Result{
		Polarity:   classifyPolarity(polarity),
		Tone:       tone,
		Confidence: confidence(intensity, len(tokens), context),
		Intensity:  min(1.0, intensity),
		KeyPhrases: keyPhrases(text, tokens),
		Indicators: indicators(text, tone),
		Toxicity:   toxicity(text, polarity, tone),
	}
}

func expandContractions(text string) string {
	replacer := strings.NewReplacer(
		"don't", "do not", "won't", "will not", "can't", "cannot",
		"shouldn't", "should not", "wouldn't", "would not",
		"couldn't", "could not", "isn't", "is not", "aren't", "are not",
		"wasn't", "was not", "weren't", "were not", "hasn't", "has not",
		"haven't", "have not", "hadn't", "had not",
	)
	return replacer.Replace(text)
}

func baseSentiment(tokens []string) (polarity, intensity float64) {
	var hits int
	for _, token := range tokens {
		entry, ok := lexicon[cleanToken(token)]
		if !ok {
			continue
		}
		polarity += entry.polarity
		intensity += entry.intensity
		hits++
	}
	if hits == 0 {
		return 0, 0
	}
	return polarity / float64(hits), intensity / float64(hits)
}

// applyModifiers scales sentiment by intensifier words and flips it when a
// negation appears within three tokens of a lexicon word.
func applyModifiers(tokens []string, polarity, intensity float64) (float64, float64) {
	multiplier := 1.0
	for _, token := range tokens {
		if m, ok := intensifiers[cleanToken(token)]; ok {
			multiplier *= m
		}
	}

	negated := false
	for i, token := range tokens {
		if !negations[cleanToken(token)] {
			continue
		}
		for j := i + 1; j < min(i+4, len(tokens)); j++ {
			if _, ok := lexicon[cleanToken(tokens[j])]; ok {
				negated = true
				break
			}
		}
	}
	if negated {
		polarity *= -0.8
	}
	return polarity * multiplier, intensity * multiplier
}

func detectTone(text string, polarity float64) Tone {
	for _, tp := range tonePatterns {
		for _, re := range tp.patterns {
			if re.MatchString(text) {
				return tp.tone
			}
		}
	}

	if capsRun.MatchString(text) {
		return ToneAggressive
	}
	if tripleBangs.MatchString(text) {
		if polarity < -0.3 {
			return ToneHostile
		}
		if polarity > 0.3 {
			return ToneAggressive
		}
	}

	switch {
	case polarity <= -0.6:
		return ToneHostile
	case polarity <= -0.3:
		return ToneDismissive
	case polarity >= 0.6:
		return ToneSupportive
	case polarity >= 0.3:
		return ToneEmpathetic
	default:
		return ToneNeutral
	}
}

func detectSarcasm(text string, tokens []string) bool {
	var score float64
	var found int
	for _, re := range sarcasmPatterns {
		if re.MatchString(text) {
			score += 0.3
			found++
		}
	}

	var positive, negative int
	for _, token := range tokens {
		entry, ok := lexicon[cleanToken(token)]
		if !ok {
			continue
		}
		if entry.polarity > 0.4 {
			positive++
		} else if entry.polarity < -0.4 {
			negative++
		}
	}
	if positive == 1 && negative == 0 && trailingDots.MatchString(text) {
		score += 0.2
		found++
	}
	if positive > 0 && negative > 0 {
		score += 0.1
	}

	return min(1.0, score) > 0.4 && found >= 1
}

func toxicity(text string, polarity float64, tone Tone) float64 {
	var base float64
	if polarity < -0.5 {
		base = -polarity
	}
	score := base * toneToxicity[tone]

	for _, re := range toxicPhrases {
		if re.MatchString(text) {
			score += 0.5
		}
	}
	if longCapsRun.MatchString(text) {
		score += 0.2
	}
	if heavyEmphasis.MatchString(text) {
		score += 0.1
	}
	return min(1.0, score)
}

func classifyPolarity(score float64) Polarity {
	switch {
	case score <= -0.6:
		return VeryNegative
	case score <= -0.2:
		return Negative
	case score >= 0.6:
		return VeryPositive
	case score >= 0.2:
		return Positive
	default:
		return Neutral
	}
}

// keyPhrases picks up to five lexicon words and tone-pattern fragments that
// drove the score.
func keyPhrases(text string, tokens []string) []string {
	seen := make(map[string]bool)
	var phrases []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		phrases = append(phrases, p)
	}

	for _, token := range tokens {
		if _, ok := lexicon[cleanToken(token)]; ok {
			add(token)
		}
	}
	for _, tp := range tonePatterns {
		for _, re := range tp.patterns {
			for _, m := range re.FindAllString(text, -1) {
				add(m)
			}
		}
	}

	if len(phrases) > 5 {
		phrases = phrases[:5]
	}
	return phrases
}

func indicators(text string, tone Tone) []string {
	var out []string
	if capsRun.MatchString(text) {
		out = append(out, "ALL CAPS usage")
	}
	if bangs.MatchString(text) {
		out = append(out, "excessive exclamation marks")
	}
	if questions.MatchString(text) {
		out = append(out, "multiple question marks")
	}
	for _, tp := range tonePatterns {
		if tp.tone != tone {
			continue
		}
		for _, re := range tp.patterns {
			if re.MatchString(text) {
				out = append(out, "pattern: "+re.String())
			}
		}
	}
	return out
}

func confidence(intensity float64, tokenCount int, context map[string]any) float64 {
	c := min(0.9, max(0.0, intensity))
	if tokenCount < 3 {
		c *= 0.7
	} else if tokenCount > 20 {
		c = min(1.0, c*1.1)
	}
	if context["user_history"] != nil {
		c = min(1.0, c*1.1)
	}
	if context["conversation_context"] != nil {
		c = min(1.0, c*1.05)
	}
	return c
}

func cleanToken(token string) string {
	return nonWord.ReplaceAllString(token, "")
}
