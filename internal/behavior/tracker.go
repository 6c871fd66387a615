// Package behavior tracks per-user and per-conversation messaging patterns
// over time and surfaces conduct that single-message scanning cannot see:
// repetitive harassment, escalating threats, coordinated pile-ons,
// cyberstalking, and related behaviors.
package behavior

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/sentra/guard/internal/similarity"
)

// PatternType names a tracked behavioral pattern.
type PatternType string

const (
	RepetitiveHarassment PatternType = "repetitive_harassment"
	EscalatingThreats    PatternType = "escalating_threats"
	CoordinatedBullying  PatternType = "coordinated_bullying"
	PassiveAggressive    PatternType = "passive_aggressive"
	ExclusionLanguage    PatternType = "exclusion_language"
	IdentityTargeting    PatternType = "identity_targeting"
	Cyberstalking        PatternType = "cyberstalking"
	Impersonation        PatternType = "impersonation"
)

// PatternMatch is one detected behavioral pattern.
type PatternMatch struct {
	Type        PatternType `json:"pattern_type"`
	Confidence  float64     `json:"confidence"`
	Evidence    []string    `json:"evidence"`
	Severity    int         `json:"severity"`
	Description string      `json:"description"`
	Indicators  []string    `json:"behavioral_indicators"`
}

// Context carries the situational fields of one analyzed message.
type Context struct {
	UserID         string
	TargetID       string
	ConversationID string
	Platform       string
	Timestamp      time.Time
}

// Config holds the tracker's window and retention tunables.
type Config struct {
	ShortWindow     time.Duration
	MediumWindow    time.Duration
	LongWindow      time.Duration
	Retention       time.Duration
	MaxTimestamps   int
	MaxConversation int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		ShortWindow:     5 * time.Minute,
		MediumWindow:    time.Hour,
		LongWindow:      24 * time.Hour,
		Retention:       168 * time.Hour,
		MaxTimestamps:   100,
		MaxConversation: 50,
	}
}

// profile accumulates one user's activity. Timestamps stay sorted ascending
// because messages append in arrival order and trims only drop the front.
type profile struct {
	userID       string
	messageCount int
	abusiveCount int
	targets      map[string]bool
	timestamps   []time.Time
	platforms    map[string]int
	escalation   float64
	lastActivity time.Time
}

// storedMessage is one conversation-history entry.
type storedMessage struct {
	text string
	ctx  Context
}

var (
	repetitionPhrases = compileAll(
		`you\s+always\s+\w+`, `every\s+time\s+you`, `you\s+never\s+\w+`,
		`typical\s+\w+`, `as\s+usual`,
	)
	coordinationPhrases = compileAll(
		`everyone\s+knows`, `we\s+all\s+(think|know)`, `nobody\s+likes`, `join\s+us`,
	)
	passiveAggressivePhrases = compileAll(
		`just\s+saying`, `no\s+offense\s+but`, `i'm\s+just\s+being\s+honest`,
		`don't\s+take\s+this\s+wrong`, `bless\s+your\s+heart`, `good\s+for\s+you`,
	)
	exclusionPhrases = compileAll(
		`you\s+don't\s+belong`, `go\s+back\s+to`, `not\s+welcome\s+here`,
		`people\s+like\s+you`, `your\s+kind`, `outsider`,
	)
	identityPhrases = compileAll(
		`your\s+(race|religion|gender|sexuality)`, `because\s+you're\s+\w+`,
		`typical\s+(boy|girl|man|woman)`, `all\s+\w+\s+are`,
	)
	stalkingPhrases = compileAll(
		`i\s+know\s+where`, `followed\s+you`, `watching\s+you`,
		`i\s+saw\s+you\s+at`, `your\s+(address|school|work)`,
	)
	impersonationPhrases = compileAll(
		`this\s+is\s+\w+\s+speaking`, `i\s+am\s+\w+`, `pretending\s+to\s+be`,
	)
)

// threatLadder orders threat vocabulary from mild to explicit; a message's
// threat tier is the index of the first rung containing one of its words.
var threatLadder = [][]string{
	{"annoying", "stupid", "hate"},
	{"hurt", "destroy", "kill"},
	{"find you", "get you", "pay for this"},
}

// escalationLadder grades conversation hostility for the conversation-level
// escalation check.
var escalationLadder = [][]string{
	{"annoyed", "bothered"},
	{"angry", "mad", "furious"},
	{"hate", "despise"},
	{"kill", "destroy", "hurt"},
}

var negativeContextWords = []string{
	"stupid", "wrong", "bad", "terrible", "awful", "hate", "annoying",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// shardCount fixes the number of locks each state map is split across.
const shardCount = 32

type profileShard struct {
	mu sync.Mutex
	m  map[string]*profile
}

type conversationShard struct {
	mu sync.Mutex
	m  map[string][]storedMessage
}

func shardIndex(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

// Tracker is the shared behavioral state store. All methods are safe for
// concurrent use. Profiles and conversation histories live in FNV-sharded
// maps, each shard under its own mutex, so messages from unrelated users
// and conversations never contend on the same lock.
type Tracker struct {
	cfg Config

	profiles      [shardCount]profileShard
	conversations [shardCount]conversationShard
}

func (t *Tracker) profileShardFor(userID string) *profileShard {
	return &t.profiles[shardIndex(userID)]
}

func (t *Tracker) conversationShardFor(conversationID string) *conversationShard {
	return &t.conversations[shardIndex(conversationID)]
}

// NewTracker builds a Tracker.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = def.ShortWindow
	}
	if cfg.MediumWindow <= 0 {
		cfg.MediumWindow = def.MediumWindow
	}
	if cfg.LongWindow <= 0 {
		cfg.LongWindow = def.LongWindow
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.MaxTimestamps <= 0 {
		cfg.MaxTimestamps = def.MaxTimestamps
	}
	if cfg.MaxConversation <= 0 {
		cfg.MaxConversation = def.MaxConversation
	}
	t := &Tracker{cfg: cfg}
	for i := range t.profiles {
		t.profiles[i].m = make(map[string]*profile)
	}
	for i := range t.conversations {
		t.conversations[i].m = make(map[string][]storedMessage)
	}
	return t
}

// Analyze records the message into the sender's profile and conversation
// history and returns every behavioral pattern it triggers. A zero
// ctx.Timestamp is replaced with the current time.
func (t *Tracker) Analyze(message string, ctx Context) []PatternMatch {
	if ctx.Timestamp.IsZero() {
		ctx.Timestamp = time.Now()
	}
	if ctx.UserID == "" {
		ctx.UserID = "anonymous"
	}

	// The checks run against the history as it stood before this message,
	// so a message never matches against itself.
	prior, updated := t.recordConversation(message, ctx)

	ps := t.profileShardFor(ctx.UserID)
	ps.mu.Lock()

	p := updateProfile(ps, ctx, t.cfg.MaxTimestamps)

	var matches []PatternMatch
	checks := []func(string, Context, *profile, []storedMessage) *PatternMatch{
		t.checkRepetitiveHarassment,
		t.checkEscalatingThreats,
		t.checkCoordinatedBullying,
		t.checkPassiveAggressive,
		t.checkExclusionLanguage,
		t.checkIdentityTargeting,
		t.checkCyberstalking,
		t.checkImpersonation,
	}
	for _, check := range checks {
		if m := check(message, ctx, p, prior); m != nil {
			matches = append(matches, *m)
		}
	}
	matches = append(matches, t.temporalPatterns(ctx, p)...)

	ps.mu.Unlock()

	if len(updated) >= 3 {
		if m := conversationEscalation(updated); m != nil {
			matches = append(matches, *m)
		}
	}
	return matches
}

// updateProfile must be called with the shard lock held.
func updateProfile(ps *profileShard, ctx Context, maxTimestamps int) *profile {
	p, ok := ps.m[ctx.UserID]
	if !ok {
		p = &profile{
			userID:    ctx.UserID,
			targets:   make(map[string]bool),
			platforms: make(map[string]int),
		}
		ps.m[ctx.UserID] = p
	}

	p.messageCount++
	p.timestamps = append(p.timestamps, ctx.Timestamp)
	p.lastActivity = ctx.Timestamp
	platform := ctx.Platform
	if platform == "" {
		platform = "unknown"
	}
	p.platforms[platform]++
	if ctx.TargetID != "" {
		p.targets[ctx.TargetID] = true
	}

	if len(p.timestamps) > maxTimestamps {
		p.timestamps = p.timestamps[len(p.timestamps)-maxTimestamps:]
	}
	return p
}

func (t *Tracker) checkRepetitiveHarassment(message string, ctx Context, p *profile, _ []storedMessage) *PatternMatch {
	if ctx.TargetID == "" {
		return nil
	}

	var evidence []string
	for _, re := range repetitionPhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "repetitive pattern: "+re.String())
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	recent := countSince(p.timestamps, ctx.Timestamp.Add(-t.cfg.MediumWindow))
	if recent < 3 {
		return nil
	}

	return &PatternMatch{
		Type:        RepetitiveHarassment,
		Confidence:  min(0.9, float64(recent)/10.0+float64(len(evidence))*0.2),
		Evidence:    evidence,
		Severity:    3,
		Description: "repeated targeting of individual with similar messages",
		Indicators: []string{
			fmt.Sprintf("sent %d messages in time window", recent),
			fmt.Sprintf("targeting user %s repeatedly", ctx.TargetID),
		},
	}
}

func (t *Tracker) checkEscalatingThreats(message string, ctx Context, _ *profile, history []storedMessage) *PatternMatch {
	current := threatTier(message, threatLadder)
	if current < 0 {
		return nil
	}

	if len(history) > 5 {
		history = history[len(history)-5:]
	}

	var evidence []string
	for _, prev := range history {
		prevTier := threatTier(prev.text, threatLadder)
		if prevTier >= 0 && prevTier < current {
			evidence = append(evidence, fmt.Sprintf("escalation from tier %d to %d", prevTier, current))
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	confidence := 0.6
	if len(evidence) >= 2 {
		confidence = 0.8
	}
	return &PatternMatch{
		Type:        EscalatingThreats,
		Confidence:  confidence,
		Evidence:    evidence,
		Severity:    4,
		Description: "progressive escalation in threat level",
		Indicators: []string{
			fmt.Sprintf("threat tier escalated to %d", current),
			"escalating pattern in conversation " + conversationKey(ctx),
		},
	}
}

func (t *Tracker) checkCoordinatedBullying(message string, ctx Context, _ *profile, history []storedMessage) *PatternMatch {
	if ctx.ConversationID == "" {
		return nil
	}

	var evidence []string
	for _, re := range coordinationPhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "coordination indicator: "+re.String())
		}
	}

	var similarCount int
	participants := make(map[string]bool)
	for _, prev := range history {
		if ctx.Timestamp.Sub(prev.ctx.Timestamp) >= t.cfg.ShortWindow {
			continue
		}
		if prev.ctx.UserID == ctx.UserID {
			continue
		}
		score := similarity.Ratio(strings.ToLower(message), strings.ToLower(prev.text))
		if score > 0.7 {
			similarCount++
			participants[prev.ctx.UserID] = true
		}
	}

	if len(participants) < 2 || (len(evidence) == 0 && similarCount == 0) {
		return nil
	}

	evidence = append(evidence, fmt.Sprintf("similar messages from %d users", len(participants)))
	return &PatternMatch{
		Type:        CoordinatedBullying,
		Confidence:  min(0.9, float64(len(participants))/5.0+float64(len(evidence)-1)*0.2),
		Evidence:    evidence,
		Severity:    4,
		Description: "multiple users targeting same individual",
		Indicators: []string{
			fmt.Sprintf("coordinated activity with %d participants", len(participants)),
			"similar message patterns detected",
		},
	}
}

func (t *Tracker) checkPassiveAggressive(message string, _ Context, _ *profile, _ []storedMessage) *PatternMatch {
	var evidence []string
	for _, re := range passiveAggressivePhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "passive-aggressive phrase: "+re.String())
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	confidence := 0.5
	lower := strings.ToLower(message)
	for _, w := range negativeContextWords {
		if strings.Contains(lower, w) {
			confidence = 0.7
			break
		}
	}

	return &PatternMatch{
		Type:        PassiveAggressive,
		Confidence:  confidence,
		Evidence:    evidence,
		Severity:    2,
		Description: "indirect aggressive communication",
		Indicators: []string{
			"uses indirect aggressive language",
			"combines polite phrases with negative content",
		},
	}
}

func (t *Tracker) checkExclusionLanguage(message string, _ Context, _ *profile, _ []storedMessage) *PatternMatch {
	var evidence []string
	for _, re := range exclusionPhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "exclusion phrase: "+re.String())
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	return &PatternMatch{
		Type:        ExclusionLanguage,
		Confidence:  min(0.9, float64(len(evidence))*0.4),
		Evidence:    evidence,
		Severity:    3,
		Description: "language intended to exclude or ostracize",
		Indicators: []string{
			"uses language to exclude or ostracize",
			"targets individual's belonging or acceptance",
		},
	}
}

func (t *Tracker) checkIdentityTargeting(message string, _ Context, _ *profile, _ []storedMessage) *PatternMatch {
	var evidence []string
	for _, re := range identityPhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "identity targeting: "+re.String())
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	return &PatternMatch{
		Type:        IdentityTargeting,
		Confidence:  min(0.9, float64(len(evidence))*0.5),
		Evidence:    evidence,
		Severity:    4,
		Description: "targeting based on identity characteristics",
		Indicators: []string{
			"targets individual based on identity characteristics",
			"uses discriminatory language",
		},
	}
}

// checkCyberstalking requires both a stalking phrase and contact frequency
// above the threshold inside the long window.
func (t *Tracker) checkCyberstalking(message string, ctx Context, p *profile, _ []storedMessage) *PatternMatch {
	var evidence []string
	for _, re := range stalkingPhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "stalking behavior: "+re.String())
		}
	}
	if len(evidence) == 0 || ctx.TargetID == "" || !p.targets[ctx.TargetID] {
		return nil
	}

	recent := countSince(p.timestamps, ctx.Timestamp.Add(-t.cfg.LongWindow))
	if recent < 2 {
		return nil
	}

	confidence := min(0.9, float64(len(evidence))*0.3+float64(recent)*0.1)
	evidence = append(evidence, fmt.Sprintf("high frequency contact: %d times", recent))
	return &PatternMatch{
		Type:        Cyberstalking,
		Confidence:  confidence,
		Evidence:    evidence,
		Severity:    4,
		Description: "persistent unwanted attention and monitoring",
		Indicators: []string{
			"persistent unwanted contact",
			"references personal information or location",
		},
	}
}

func (t *Tracker) checkImpersonation(message string, _ Context, _ *profile, _ []storedMessage) *PatternMatch {
	var evidence []string
	for _, re := range impersonationPhrases {
		if re.MatchString(message) {
			evidence = append(evidence, "impersonation indicator: "+re.String())
		}
	}
	if len(evidence) == 0 {
		return nil
	}

	// Needs account verification to confirm, hence the flat low confidence.
	return &PatternMatch{
		Type:        Impersonation,
		Confidence:  0.6,
		Evidence:    evidence,
		Severity:    3,
		Description: "attempting to impersonate another person",
		Indicators: []string{
			"claims to be another person",
			"may be attempting identity deception",
		},
	}
}

// temporalPatterns flags activity spikes and late-night bursts.
func (t *Tracker) temporalPatterns(ctx Context, p *profile) []PatternMatch {
	var matches []PatternMatch

	recent := countSince(p.timestamps, ctx.Timestamp.Add(-t.cfg.ShortWindow))
	if recent >= 10 {
		matches = append(matches, PatternMatch{
			Type:        RepetitiveHarassment,
			Confidence:  0.7,
			Evidence:    []string{fmt.Sprintf("activity spike: %d messages in %.0f minutes", recent, t.cfg.ShortWindow.Minutes())},
			Severity:    2,
			Description: "unusual burst of activity detected",
			Indicators:  []string{"unusual messaging frequency", "potential harassment campaign"},
		})
	}

	hour := ctx.Timestamp.Hour()
	if (hour >= 22 || hour <= 6) && recent >= 3 {
		matches = append(matches, PatternMatch{
			Type:        Cyberstalking,
			Confidence:  0.5,
			Evidence:    []string{fmt.Sprintf("late night activity: %02d:00 hours", hour)},
			Severity:    2,
			Description: "unusual timing of messages",
			Indicators:  []string{"late night messaging", "potential obsessive behavior"},
		})
	}
	return matches
}

// recordConversation appends the message to its conversation shard and
// returns copies of the history before and after the append. The copies let
// the pattern checks run without holding the conversation shard lock.
func (t *Tracker) recordConversation(message string, ctx Context) (prior, updated []storedMessage) {
	if ctx.ConversationID == "" {
		return nil, nil
	}

	cs := t.conversationShardFor(ctx.ConversationID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	prior = append([]storedMessage(nil), cs.m[ctx.ConversationID]...)
	history := append(cs.m[ctx.ConversationID], storedMessage{text: message, ctx: ctx})
	if len(history) > t.cfg.MaxConversation {
		history = history[len(history)-t.cfg.MaxConversation:]
	}
	cs.m[ctx.ConversationID] = history

	updated = append([]storedMessage(nil), history...)
	return prior, updated
}

// conversationEscalation scans the last five messages for a hostility climb
// reaching at least the third rung of the escalation ladder.
func conversationEscalation(history []storedMessage) *PatternMatch {
	recent := history
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}

	maxTier := -1
	var evidence []string
	for _, msg := range recent {
		lower := strings.ToLower(msg.text)
		for tier, words := range escalationLadder {
			for _, w := range words {
				if strings.Contains(lower, w) {
					if tier > maxTier {
						evidence = append(evidence, fmt.Sprintf("escalation to tier %d: %q", tier, w))
						maxTier = tier
					}
					break
				}
			}
		}
	}

	if maxTier < 2 || len(evidence) == 0 {
		return nil
	}
	return &PatternMatch{
		Type:        EscalatingThreats,
		Confidence:  0.7,
		Evidence:    evidence,
		Severity:    3,
		Description: "conversation escalation detected",
		Indicators:  []string{"progressive increase in aggression", "conversation turning hostile"},
	}
}

// MarkAbusive increments a user's abusive message counter, feeding the
// abuse-rate component of UserRiskScore.
func (t *Tracker) MarkAbusive(userID string) {
	ps := t.profileShardFor(userID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if p, ok := ps.m[userID]; ok {
		p.abusiveCount++
	}
}

// UserRiskScore combines abuse rate, target spread, platform spread, and
// escalation into one [0,1] behavioral risk score.
func (t *Tracker) UserRiskScore(userID string) float64 {
	ps := t.profileShardFor(userID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.m[userID]
	if !ok {
		return 0
	}
	return riskScore(p)
}

// riskScore must be called with the profile's shard lock held.
func riskScore(p *profile) float64 {
	var score float64
	if p.messageCount > 0 {
		score += float64(p.abusiveCount) / float64(p.messageCount) * 0.4
	}
	if len(p.targets) > 1 {
		score += min(1.0, float64(len(p.targets))/10.0) * 0.3
	}
	if len(p.platforms) > 2 {
		score += min(1.0, float64(len(p.platforms))/5.0) * 0.2
	}
	score += p.escalation * 0.1

	return min(1.0, score)
}

// UpdateEscalation raises a user's escalation score by confidence x 0.1 per
// threat or stalking pattern, after first decaying the score by 0.1 per day
// of inactivity.
func (t *Tracker) UpdateEscalation(userID string, matches []PatternMatch) {
	ps := t.profileShardFor(userID)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	p, ok := ps.m[userID]
	if !ok {
		return
	}

	if !p.lastActivity.IsZero() {
		days := time.Since(p.lastActivity).Hours() / 24
		if days > 0 {
			p.escalation = max(0, p.escalation-0.1*days)
		}
	}

	var increase float64
	for _, m := range matches {
		if m.Type == EscalatingThreats || m.Type == Cyberstalking {
			increase += m.Confidence * 0.1
		}
	}
	p.escalation = min(1.0, p.escalation+increase)
}

// Stats is a snapshot of the tracker's population.
type Stats struct {
	TotalUsers        int     `json:"total_users_monitored"`
	HighRiskUsers     int     `json:"high_risk_users"`
	AverageEscalation float64 `json:"average_escalation_score"`
}

// TrackerStats reports the monitored population and its risk spread.
func (t *Tracker) TrackerStats() Stats {
	var stats Stats
	var escalationSum float64
	for i := range t.profiles {
		ps := &t.profiles[i]
		ps.mu.Lock()
		for _, p := range ps.m {
			stats.TotalUsers++
			escalationSum += p.escalation
			if riskScore(p) > 0.7 {
				stats.HighRiskUsers++
			}
		}
		ps.mu.Unlock()
	}
	if stats.TotalUsers > 0 {
		stats.AverageEscalation = escalationSum / float64(stats.TotalUsers)
	}
	return stats
}

// Sweep evicts profiles and conversations idle past the retention window
// and trims surviving timestamp histories to it. Returns how many profiles
// and conversations were dropped.
func (t *Tracker) Sweep(now time.Time) (profilesDropped, conversationsDropped int) {
	cutoff := now.Add(-t.cfg.Retention)

	for i := range t.profiles {
		ps := &t.profiles[i]
		ps.mu.Lock()
		for id, p := range ps.m {
			if !p.lastActivity.IsZero() && p.lastActivity.Before(cutoff) {
				delete(ps.m, id)
				profilesDropped++
				continue
			}
			p.timestamps = trimBefore(p.timestamps, cutoff)
		}
		ps.mu.Unlock()
	}

	for i := range t.conversations {
		cs := &t.conversations[i]
		cs.mu.Lock()
		for id, history := range cs.m {
			var kept []storedMessage
			for _, msg := range history {
				if msg.ctx.Timestamp.After(cutoff) {
					kept = append(kept, msg)
				}
			}
			if len(kept) == 0 {
				delete(cs.m, id)
				conversationsDropped++
			} else {
				cs.m[id] = kept
			}
		}
		cs.mu.Unlock()
	}
	return profilesDropped, conversationsDropped
}

func conversationKey(ctx Context) string {
	if ctx.ConversationID != "" {
		return ctx.ConversationID
	}
	return ctx.UserID + "_default"
}

// threatTier returns the first ladder tier containing a word of the
// message, or -1 when no rung matches.
func threatTier(message string, ladder [][]string) int {
	lower := strings.ToLower(message)
	for tier, words := range ladder {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return tier
			}
		}
	}
	return -1
}

func countSince(timestamps []time.Time, cutoff time.Time) int {
	// Timestamps are sorted ascending, so scan from the tail.
	n := 0
	for i := len(timestamps) - 1; i >= 0; i-- {
		if !timestamps[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

func trimBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	return timestamps[idx:]
}
