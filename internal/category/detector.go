// Package category classifies text into abuse categories (harassment, hate
// speech, spam, threats, cyberbullying, sexual harassment) by combining
// exact vocabulary lookup, fuzzy word matching, and phrase patterns, and
// aggregates the hits into a 0-100 risk score.
package category

import (
	"fmt"
	"hash/fnv"
	"log"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/cloudflare/ahocorasick"

	"github.com/sentra/guard/internal/similarity"
	"github.com/sentra/guard/internal/suggest"
)

// Severity ranks how serious a category is, independent of match confidence.
const (
	SeverityLow      = 1
	SeverityMedium   = 2
	SeverityHigh     = 3
	SeverityCritical = 4
)

// Method names how a detection was produced.
type Method string

const (
	MethodExact Method = "exact"
	MethodFuzzy Method = "fuzzy"
	MethodRegex Method = "regex"
)

// Level is the aggregate risk classification of a scan.
type Level string

const (
	LevelNone     Level = "NONE"
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

// Detection is one lexical or pattern hit.
type Detection struct {
	Category   string  `json:"category"`
	Severity   int     `json:"severity"`
	Match      string  `json:"match"`
	ActualWord string  `json:"actual_word,omitempty"`
	Position   int     `json:"position"`
	Confidence float64 `json:"confidence"`
	Method     Method  `json:"method"`
}

// Result is the full outcome of one scan.
type Result struct {
	IsAbusive      bool          `json:"is_abusive"`
	RiskScore      float64       `json:"risk_score"`
	RiskLevel      Level         `json:"risk_level"`
	Detections     []Detection   `json:"detections"`
	Suggestions    []string      `json:"suggestions"`
	Categories     []string      `json:"categories"`
	Confidence     float64       `json:"confidence"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// Stats is a snapshot of the detector's running counters.
type Stats struct {
	TotalScanned    int            `json:"total_scanned"`
	ThreatsDetected int            `json:"threats_detected"`
	Categories      map[string]int `json:"categories"`
	CacheHitRate    float64        `json:"cache_hit_rate"`
	DetectionRate   float64        `json:"detection_rate"`
}

// PlatformRule scales detection severity on a given platform. An empty
// Categories list applies the multiplier to every category.
type PlatformRule struct {
	Multiplier float64
	Categories []string
}

// Config holds the detector's tunables.
type Config struct {
	CacheSize      int
	FuzzyThreshold float64
	MinFuzzyLen    int
	// PlatformRules scales severity per platform; deployments tune this
	// table rather than the code.
	PlatformRules map[string]PlatformRule
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		CacheSize:      1000,
		FuzzyThreshold: 0.8,
		MinFuzzyLen:    3,
		PlatformRules: map[string]PlatformRule{
			"twitter":  {Multiplier: 0.8, Categories: []string{"harassment"}},
			"linkedin": {Multiplier: 1.2},
			"gaming":   {Multiplier: 0.7, Categories: []string{"harassment", "cyberbullying"}},
			"twitch":   {Multiplier: 0.7, Categories: []string{"harassment", "cyberbullying"}},
			"discord":  {Multiplier: 0.7, Categories: []string{"harassment", "cyberbullying"}},
		},
	}
}

// patternSet is the compiled vocabulary of one category.
type patternSet struct {
	words    []string
	matcher  *ahocorasick.Matcher
	phrases  []*regexp.Regexp
	sources  []string
	severity int
}

func newPatternSet(words, phrases []string, severity int) *patternSet {
	ps := &patternSet{
		words:    words,
		matcher:  ahocorasick.NewStringMatcher(words),
		severity: severity,
	}
	for _, src := range phrases {
		re, err := regexp.Compile("(?i)" + src)
		if err != nil {
			log.Printf("[category] skipping malformed pattern %q: %v", src, err)
			continue
		}
		ps.phrases = append(ps.phrases, re)
		ps.sources = append(ps.sources, src)
	}
	return ps
}

// Detector scans text against the category taxonomy. Safe for concurrent
// use; the result cache and counters are shared across callers.
type Detector struct {
	cfg Config

	mu         sync.RWMutex
	categories map[string]*patternSet

	cacheMu    sync.Mutex
	cache      map[string]*Result
	cacheOrder []string

	statsMu         sync.Mutex
	totalScanned    int
	threatsDetected int
	categoryCounts  map[string]int
	cacheHits       int
	cacheMisses     int
}

// NewDetector builds a Detector with the built-in taxonomy.
func NewDetector(cfg Config) *Detector {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultConfig().CacheSize
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = DefaultConfig().FuzzyThreshold
	}
	if cfg.MinFuzzyLen <= 0 {
		cfg.MinFuzzyLen = DefaultConfig().MinFuzzyLen
	}

	d := &Detector{
		cfg:            cfg,
		categories:     builtinTaxonomy(),
		cache:          make(map[string]*Result),
		categoryCounts: make(map[string]int),
	}
	log.Printf("[category] detector ready: %d categories, cache size %d", len(d.categories), cfg.CacheSize)
	return d
}

// Detect analyzes text and returns the scored detection result. The
// optional context map recognizes "platform" (string) and "user_history"
// (map with "repeat_offender" bool and "false_positive_history" int).
func (d *Detector) Detect(text string, context map[string]any) *Result {
	start := time.Now()

	d.statsMu.Lock()
	d.totalScanned++
	d.statsMu.Unlock()

	if strings.TrimSpace(text) == "" {
		return emptyResult(time.Since(start))
	}

	key := cacheKey(text, context)
	if cached := d.cacheGet(key); cached != nil {
		out := *cached
		out.ProcessingTime = time.Since(start)
		return &out
	}

	preprocessed := preprocess(text)

	var detections []Detection
	d.mu.RLock()
	for name, ps := range d.categories {
		detections = append(detections, d.scanWords(preprocessed, name, ps)...)
		detections = append(detections, scanPhrases(text, name, ps)...)
	}
	d.mu.RUnlock()

	detections = d.adjustForContext(detections, context)

	result := d.score(detections, text)
	result.ProcessingTime = time.Since(start)

	d.recordResult(result)
	d.cachePut(key, result)
	return result
}

// scanWords runs exact and fuzzy vocabulary matching over the preprocessed
// text. The Aho-Corasick pass narrows exact matching to vocabulary entries
// that occur in the text at all.
func (d *Detector) scanWords(text, category string, ps *patternSet) []Detection {
	var detections []Detection

	present := make(map[string]bool)
	for _, idx := range ps.matcher.Match([]byte(text)) {
		present[ps.words[idx]] = true
	}

	// Multi-word vocabulary entries ("buy now") never equal a single
	// field, so they are matched as substrings directly.
	for word := range present {
		if !strings.ContainsRune(word, ' ') {
			continue
		}
		if pos := strings.Index(text, word); pos >= 0 {
			detections = append(detections, Detection{
				Category:   category,
				Severity:   ps.severity,
				Match:      word,
				Position:   pos,
				Confidence: 1.0,
				Method:     MethodExact,
			})
		}
	}

	fields := strings.Fields(text)
	for i, field := range fields {
		if present[field] {
			detections = append(detections, Detection{
				Category:   category,
				Severity:   ps.severity,
				Match:      field,
				Position:   i,
				Confidence: 1.0,
				Method:     MethodExact,
			})
			continue
		}
		if len(field) < d.cfg.MinFuzzyLen {
			continue
		}
		for _, word := range ps.words {
			if len(word) < d.cfg.MinFuzzyLen {
				continue
			}
			score := similarity.Ratio(field, word)
			if score < d.cfg.FuzzyThreshold {
				continue
			}
			detections = append(detections, Detection{
				Category:   category,
				Severity:   max(1, ps.severity-1),
				Match:      word,
				ActualWord: field,
				Position:   i,
				Confidence: score,
				Method:     MethodFuzzy,
			})
		}
	}
	return detections
}

// scanPhrases runs the phrase patterns over the original, unpreprocessed
// text: patterns rely on punctuation and spacing the preprocessor strips.
func scanPhrases(text, category string, ps *patternSet) []Detection {
	var detections []Detection
	for _, re := range ps.phrases {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			detections = append(detections, Detection{
				Category:   category,
				Severity:   ps.severity,
				Match:      text[loc[0]:loc[1]],
				Position:   loc[0],
				Confidence: 0.9,
				Method:     MethodRegex,
			})
		}
	}
	return detections
}

// adjustForContext rescales severity and confidence from the platform rule
// table and the caller-supplied user history.
func (d *Detector) adjustForContext(detections []Detection, context map[string]any) []Detection {
	if len(context) == 0 || len(detections) == 0 {
		return detections
	}

	var rule *PlatformRule
	if platform, ok := context["platform"].(string); ok {
		if r, found := d.cfg.PlatformRules[strings.ToLower(platform)]; found {
			rule = &r
		}
	}

	history, _ := context["user_history"].(map[string]any)
	repeatOffender, _ := history["repeat_offender"].(bool)
	falsePositives, _ := history["false_positive_history"].(int)

	adjusted := make([]Detection, len(detections))
	for i, det := range detections {
		if rule != nil && ruleApplies(rule, det.Category) {
			det.Severity = clampSeverity(int(float64(det.Severity) * rule.Multiplier))
		}
		if repeatOffender {
			det.Severity = clampSeverity(det.Severity + 1)
		} else if falsePositives > 3 {
			det.Confidence *= 0.8
		}
		adjusted[i] = det
	}
	return adjusted
}

func ruleApplies(rule *PlatformRule, category string) bool {
	if len(rule.Categories) == 0 {
		return true
	}
	for _, c := range rule.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func clampSeverity(s int) int {
	return max(SeverityLow, min(SeverityCritical, s))
}

// score aggregates detections into the final 0-100 risk score. The density
// multiplier rewards many hits in short text, capped at 1.5x.
func (d *Detector) score(detections []Detection, text string) *Result {
	if len(detections) == 0 {
		return emptyResult(0)
	}

	var totalSeverity, totalConfidence float64
	categorySet := make(map[string]bool)
	for _, det := range detections {
		totalSeverity += float64(det.Severity) * det.Confidence
		totalConfidence += det.Confidence
		categorySet[det.Category] = true
	}

	base := totalSeverity / (float64(len(detections)) * float64(SeverityCritical)) * 100

	words := len(strings.Fields(text))
	var density float64
	if words > 0 {
		density = float64(len(detections)) / float64(words)
	}
	multiplier := min(1.5, 1+density*2)
	finalScore := min(100, base*multiplier)

	categories := make([]string, 0, len(categorySet))
	for c := range categorySet {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	return &Result{
		IsAbusive:   finalScore > 0,
		RiskScore:   finalScore,
		RiskLevel:   LevelForScore(finalScore),
		Detections:  detections,
		Suggestions: suggest.ForCategories(categories),
		Categories:  categories,
		Confidence:  totalConfidence / float64(len(detections)),
	}
}

// LevelForScore maps a 0-100 score onto the risk level ladder.
func LevelForScore(score float64) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 30:
		return LevelMedium
	case score > 0:
		return LevelLow
	default:
		return LevelNone
	}
}

// AddPattern registers a phrase pattern at runtime, creating the category
// if needed. Malformed patterns are rejected with an error.
func (d *Detector) AddPattern(category, pattern string, severity int) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("category: compile pattern %q: %w", pattern, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ps, ok := d.categories[category]
	if !ok {
		ps = newPatternSet(nil, nil, clampSeverity(severity))
		d.categories[category] = ps
	}
	ps.phrases = append(ps.phrases, re)
	ps.sources = append(ps.sources, pattern)
	log.Printf("[category] added pattern to %s: %s", category, pattern)
	return nil
}

// RemovePattern unregisters a phrase pattern. Returns false when the
// category or pattern is unknown.
func (d *Detector) RemovePattern(category, pattern string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	ps, ok := d.categories[category]
	if !ok {
		return false
	}
	for i, src := range ps.sources {
		if src != pattern {
			continue
		}
		ps.sources = append(ps.sources[:i], ps.sources[i+1:]...)
		ps.phrases = append(ps.phrases[:i], ps.phrases[i+1:]...)
		log.Printf("[category] removed pattern from %s: %s", category, pattern)
		return true
	}
	return false
}

// Stats returns a snapshot of the running counters.
func (d *Detector) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	counts := make(map[string]int, len(d.categoryCounts))
	for k, v := range d.categoryCounts {
		counts[k] = v
	}

	var hitRate, detectionRate float64
	if total := d.cacheHits + d.cacheMisses; total > 0 {
		hitRate = float64(d.cacheHits) / float64(total) * 100
	}
	if d.totalScanned > 0 {
		detectionRate = float64(d.threatsDetected) / float64(d.totalScanned) * 100
	}

	return Stats{
		TotalScanned:    d.totalScanned,
		ThreatsDetected: d.threatsDetected,
		Categories:      counts,
		CacheHitRate:    hitRate,
		DetectionRate:   detectionRate,
	}
}

// ResetStats zeroes all counters.
func (d *Detector) ResetStats() {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	d.totalScanned = 0
	d.threatsDetected = 0
	d.categoryCounts = make(map[string]int)
	d.cacheHits = 0
	d.cacheMisses = 0
}

// ClearCache drops every cached result.
func (d *Detector) ClearCache() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	d.cache = make(map[string]*Result)
	d.cacheOrder = d.cacheOrder[:0]
}

func (d *Detector) recordResult(r *Result) {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	if r.IsAbusive {
		d.threatsDetected++
		for _, c := range r.Categories {
			d.categoryCounts[c]++
		}
	}
}

func (d *Detector) cacheGet(key string) *Result {
	d.cacheMu.Lock()
	r, ok := d.cache[key]
	d.cacheMu.Unlock()

	d.statsMu.Lock()
	if ok {
		d.cacheHits++
	} else {
		d.cacheMisses++
	}
	d.statsMu.Unlock()
	return r
}

func (d *Detector) cachePut(key string, r *Result) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if _, exists := d.cache[key]; exists {
		return
	}
	if len(d.cache) >= d.cfg.CacheSize && len(d.cacheOrder) > 0 {
		oldest := d.cacheOrder[0]
		d.cacheOrder = d.cacheOrder[1:]
		delete(d.cache, oldest)
	}
	d.cache[key] = r
	d.cacheOrder = append(d.cacheOrder, key)
}

// cacheKey fingerprints the first 100 characters of text plus the sorted
// context pairs.
func cacheKey(text string, context map[string]any) string {
	runes := []rune(text)
	if len(runes) > 100 {
		runes = runes[:100]
	}

	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	h.Write([]byte(string(runes)))
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, context[k])
	}
	return fmt.Sprintf("%x", h.Sum64())
}

// preprocess lowercases, folds common leetspeak characters, and strips
// punctuation so the word scan sees canonical tokens.
func preprocess(text string) string {
	text = strings.ToLower(text)

	replacer := strings.NewReplacer(
		"@", "a", "3", "e", "1", "i", "0", "o", "5", "s",
		"$", "s", "4", "a", "7", "t", "+", "t",
	)
	text = replacer.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func emptyResult(elapsed time.Duration) *Result {
	return &Result{
		IsAbusive:      false,
		RiskScore:      0,
		RiskLevel:      LevelNone,
		Confidence:     1.0,
		ProcessingTime: elapsed,
	}
}
