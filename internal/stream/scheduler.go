// Package stream is the real-time scheduling layer of the analysis service.
// Inbound messages are classified into priority tiers, queued on bounded
// channels, drained by per-tier worker pools, run through the detection and
// fusion pipeline, and published to registered callbacks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sentra/guard/internal/behavior"
	"github.com/sentra/guard/internal/category"
	"github.com/sentra/guard/internal/fusion"
	"github.com/sentra/guard/internal/intent"
	"github.com/sentra/guard/internal/metrics"
	"github.com/sentra/guard/internal/obfuscation"
	"github.com/sentra/guard/internal/ratelimit"
	"github.com/sentra/guard/internal/sentiment"
	"github.com/sentra/guard/internal/textnorm"
)

// Sentinel errors surfaced to callers at ingress. Queue-full and rate-limit
// rejections are explicit, never silent drops.
var (
	ErrNotRunning  = errors.New("stream: scheduler not running")
	ErrRateLimited = errors.New("stream: rate limited")
	ErrQueueFull   = errors.New("stream: queue full")
)

// Limiter gates message ingress per user. Both ratelimit implementations
// satisfy it.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, error)
}

// Preprocessor cleans raw text before the detection engines see it.
type Preprocessor interface {
	Clean(text string) string
}

// CleanerFunc adapts a plain function to the Preprocessor interface.
type CleanerFunc func(string) string

func (f CleanerFunc) Clean(text string) string { return f(text) }

// CategoryDetector scans text for abusive vocabulary and phrase patterns.
type CategoryDetector interface {
	Detect(text string, context map[string]any) *category.Result
}

// ObfuscationScanner finds disguised occurrences of target words.
type ObfuscationScanner interface {
	DetectWords(text string, targets []string) []obfuscation.Match
}

// BehaviorTracker maintains per-user behavioral state across messages.
type BehaviorTracker interface {
	Analyze(message string, ctx behavior.Context) []behavior.PatternMatch
	UpdateEscalation(userID string, matches []behavior.PatternMatch)
	MarkAbusive(userID string)
	UserRiskScore(userID string) float64
}

// SentimentScorer rates the emotional charge and toxicity of text.
type SentimentScorer interface {
	Analyze(text string, context map[string]any) sentiment.Result
}

// ContextScorer classifies communicative intent and platform tolerance.
type ContextScorer interface {
	Classify(text, platform string) intent.Classification
}

// SuggestionGenerator proposes remediation phrasings for flagged text.
type SuggestionGenerator interface {
	Suggest(text string) []string
}

// Engines is the set of detection components the pipeline drives. Every
// field is optional: a nil engine's signal is simply omitted from fusion.
type Engines struct {
	Preprocessor Preprocessor
	Category     CategoryDetector
	Obfuscation  ObfuscationScanner
	Behavior     BehaviorTracker
	Sentiment    SentimentScorer
	Intent       ContextScorer
	Suggestions  SuggestionGenerator
}

// DefaultEngines wires the full built-in detection stack.
func DefaultEngines() Engines {
	return Engines{
		Preprocessor: CleanerFunc(textnorm.Clean),
		Category:     category.NewDetector(category.DefaultConfig()),
		Obfuscation:  obfuscation.NewDetector(),
		Behavior:     behavior.NewTracker(behavior.DefaultConfig()),
		Sentiment:    sentiment.NewAnalyzer(),
		Intent:       intent.NewClassifier(),
	}
}

// Config holds the scheduler's tunables.
type Config struct {
	BlockingThreshold float64
	HighRiskThreshold float64
	MaxRetries        int
	ProcessingTimeout time.Duration
	EnqueueTimeout    time.Duration
	QueueCapacity     map[Priority]int
	Workers           map[Priority]int
	CompletionHistory int
	BlockedHistory    int
	StatsInterval     time.Duration
	RateLimit         int
	RateWindow        time.Duration

	// Vocabulary is the target word list for the obfuscation scan.
	Vocabulary []string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		BlockingThreshold: 0.7,
		HighRiskThreshold: 0.8,
		MaxRetries:        3,
		ProcessingTimeout: 5 * time.Second,
		EnqueueTimeout:    1 * time.Second,
		QueueCapacity: map[Priority]int{
			PriorityCritical: 1000,
			PriorityHigh:     2000,
			PriorityNormal:   5000,
			PriorityLow:      2000,
		},
		Workers: map[Priority]int{
			PriorityCritical: 2,
			PriorityHigh:     2,
			PriorityNormal:   4,
			PriorityLow:      1,
		},
		CompletionHistory: 1000,
		BlockedHistory:    500,
		StatsInterval:     time.Minute,
		RateLimit:         50,
		RateWindow:        5 * time.Minute,
		Vocabulary:        defaultVocabulary,
	}
}

// defaultVocabulary lists high-frequency abuse words worth an obfuscation
// scan on every message.
var defaultVocabulary = []string{
	"idiot", "stupid", "loser", "hate", "kill", "die", "ugly", "dumb", "trash",
}

// Ingress keyword triage. A threat word routes the message to the CRITICAL
// tier ahead of everything else; harassment words bump it to HIGH.
var (
	threatKeywords     = []string{"kill", "murder", "hurt", "harm", "attack", "violence", "weapon"}
	harassmentKeywords = []string{"hate", "stupid", "idiot", "kill yourself"}
)

// Callback receives a message and its analysis result after processing.
// Callbacks run on worker goroutines and must not block.
type Callback func(msg *Message, res *Result)

// Scheduler routes messages through priority queues and worker pools.
type Scheduler struct {
	cfg     Config
	engines Engines
	limiter Limiter
	queues  map[Priority]chan *Message

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool

	cbMu        sync.RWMutex
	onProcessed []Callback
	onBlocked   []Callback
	onHighRisk  []Callback
	onError     []Callback

	completions *ring
	blockedRing *ring

	statsMu     sync.Mutex
	processed   int64
	blocked     int64
	failed      int64
	rateLimited int64
	throughput  float64
	avgLatency  time.Duration
}

// NewScheduler builds a scheduler. A nil limiter gets an in-process
// sliding-window limiter sized from the config.
func NewScheduler(cfg Config, engines Engines, limiter Limiter) *Scheduler {
	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit, cfg.RateWindow)
	}

	queues := make(map[Priority]chan *Message, len(Priorities))
	for _, p := range Priorities {
		capacity := cfg.QueueCapacity[p]
		if capacity <= 0 {
			capacity = 1
		}
		queues[p] = make(chan *Message, capacity)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:         cfg,
		engines:     engines,
		limiter:     limiter,
		queues:      queues,
		ctx:         ctx,
		cancel:      cancel,
		completions: newRing(cfg.CompletionHistory),
		blockedRing: newRing(cfg.BlockedHistory),
	}
}

// Start launches the per-tier worker pools and the statistics task.
func (s *Scheduler) Start() {
	if !s.running.CompareAndSwap(false, true) {
		log.Println("[scheduler] already running")
		return
	}

	total := 0
	for _, p := range Priorities {
		n := s.cfg.Workers[p]
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			s.wg.Add(1)
			go s.worker(p)
		}
		total += n
	}

	s.wg.Add(1)
	go s.statsLoop()

	log.Printf("[scheduler] started with %d workers across %d tiers", total, len(Priorities))
}

// Stop cancels the workers and waits for in-flight messages to finish.
// Queued messages that were never dequeued are discarded.
func (s *Scheduler) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	s.wg.Wait()
	log.Println("[scheduler] stopped")
}

// Enqueue admits a message into the pipeline and returns its identifier.
// It rejects with ErrRateLimited when the user exceeds the sliding-window
// limit and with ErrQueueFull when the target tier's queue stays full past
// the enqueue timeout.
func (s *Scheduler) Enqueue(text, userID, platform string, msgCtx map[string]any) (string, error) {
	if !s.running.Load() {
		return "", ErrNotRunning
	}

	allowed, err := s.limiter.Allow(s.ctx, userID)
	if err != nil {
		log.Printf("[scheduler] rate limit check for %s: %v", userID, err)
	}
	if !allowed {
		s.statsMu.Lock()
		s.rateLimited++
		s.statsMu.Unlock()
		metrics.MessagesTotal.WithLabelValues("rate_limited").Inc()
		return "", fmt.Errorf("stream: user %s: %w", userID, ErrRateLimited)
	}

	priority := s.classify(text, userID, msgCtx)
	msg := &Message{
		ID:         uuid.New().String(),
		Text:       text,
		UserID:     userID,
		Platform:   platform,
		Context:    msgCtx,
		Priority:   priority,
		Status:     StatusPending,
		EnqueuedAt: time.Now(),
	}

	timer := time.NewTimer(s.cfg.EnqueueTimeout)
	defer timer.Stop()
	select {
	case s.queues[priority] <- msg:
		return msg.ID, nil
	case <-timer.C:
		return "", fmt.Errorf("stream: %s tier at capacity: %w", priority, ErrQueueFull)
	case <-s.ctx.Done():
		return "", ErrNotRunning
	}
}

// classify assigns the priority tier from a cheap inspection of the raw
// text and the caller-supplied context. The LOW tier is reserved for
// retries and never assigned at ingress.
func (s *Scheduler) classify(text, userID string, msgCtx map[string]any) Priority {
	lower := strings.ToLower(text)

	for _, kw := range threatKeywords {
		if strings.Contains(lower, kw) {
			return PriorityCritical
		}
	}

	if score, ok := msgCtx["user_risk_score"].(float64); ok && score > 0.8 {
		return PriorityHigh
	}
	if s.engines.Behavior != nil && s.engines.Behavior.UserRiskScore(userID) > 0.8 {
		return PriorityHigh
	}

	for _, kw := range harassmentKeywords {
		if strings.Contains(lower, kw) {
			return PriorityHigh
		}
	}

	if len(text) > 500 || strings.Count(text, "!") > 5 {
		return PriorityHigh
	}

	return PriorityNormal
}

func (s *Scheduler) worker(p Priority) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.queues[p]:
			s.handle(msg)
		}
	}
}

func (s *Scheduler) handle(msg *Message) {
	if err := msg.transition(StatusProcessing); err != nil {
		log.Printf("[scheduler] %v", err)
		return
	}
	msg.StartedAt = time.Now()

	res, err := s.processWithTimeout(msg)
	if err != nil {
		s.fail(msg, err)
		return
	}

	final := StatusCompleted
	if res.ShouldBlock {
		final = StatusBlocked
	}
	if err := msg.transition(final); err != nil {
		log.Printf("[scheduler] %v", err)
	}
	msg.FinishedAt = time.Now()
	msg.Result = res

	s.finish(msg, res)
}

// processWithTimeout bounds one message's end-to-end pipeline time. On
// expiry the worker moves on with a best-effort degraded result; the
// pipeline goroutine finishes in the background and its result is
// discarded.
func (s *Scheduler) processWithTimeout(msg *Message) (*Result, error) {
	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.process(msg)
		done <- outcome{res, err}
	}()

	timer := time.NewTimer(s.cfg.ProcessingTimeout)
	defer timer.Stop()
	select {
	case o := <-done:
		return o.res, o.err
	case <-timer.C:
		log.Printf("[scheduler] message %s exceeded %v processing timeout", msg.ID, s.cfg.ProcessingTimeout)
		return s.timeoutResult(msg), nil
	}
}

// process runs the full detection and fusion pipeline. It only reads msg;
// all mutation stays with the owning worker. A panic in one engine drops
// that signal and records an alert; a panic outside the per-signal guards
// fails the whole run.
func (s *Scheduler) process(msg *Message) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("stream: process %s: panic: %v", msg.ID, r)
		}
	}()

	start := time.Now()
	text := msg.Text

	var components []string
	var alerts []Alert
	var signals fusion.Signals

	if s.engines.Preprocessor != nil {
		s.signal("preprocessor", msg.ID, &components, &alerts, func() {
			text = s.engines.Preprocessor.Clean(text)
		})
	}

	if s.engines.Category != nil {
		s.signal("category", msg.ID, &components, &alerts, func() {
			signals.Category = s.engines.Category.Detect(text, msg.Context)
		})
	}

	if s.engines.Obfuscation != nil && len(s.cfg.Vocabulary) > 0 {
		s.signal("obfuscation", msg.ID, &components, &alerts, func() {
			signals.Obfuscation = s.engines.Obfuscation.DetectWords(text, s.cfg.Vocabulary)
		})
	}

	if s.engines.Behavior != nil {
		s.signal("behavior", msg.ID, &components, &alerts, func() {
			signals.Patterns = s.engines.Behavior.Analyze(text, behavior.Context{
				UserID:         msg.UserID,
				TargetID:       ctxString(msg.Context, "target_id"),
				ConversationID: ctxString(msg.Context, "conversation_id"),
				Platform:       msg.Platform,
				Timestamp:      msg.EnqueuedAt,
			})
		})
	}

	if s.engines.Sentiment != nil {
		s.signal("sentiment", msg.ID, &components, &alerts, func() {
			sr := s.engines.Sentiment.Analyze(text, msg.Context)
			signals.Sentiment = &sr
		})
	}

	if s.engines.Intent != nil {
		s.signal("intent", msg.ID, &components, &alerts, func() {
			ic := s.engines.Intent.Classify(text, msg.Platform)
			signals.Intent = &ic
		})
	}

	assessment := fusion.Fuse(signals)
	shouldBlock := assessment.Score >= s.cfg.BlockingThreshold
	isAbusive := assessment.Score > 0.3

	var categories, suggestions []string
	if signals.Category != nil {
		categories = signals.Category.Categories
		suggestions = signals.Category.Suggestions
	}
	if s.engines.Suggestions != nil && isAbusive && len(suggestions) == 0 {
		s.signal("suggestions", msg.ID, &components, &alerts, func() {
			suggestions = s.engines.Suggestions.Suggest(msg.Text)
		})
	}

	if assessment.Score >= s.cfg.HighRiskThreshold {
		alerts = append(alerts, Alert{
			Type:      AlertHighRisk,
			MessageID: msg.ID,
			UserID:    msg.UserID,
			Platform:  msg.Platform,
			RiskScore: assessment.Score,
			Timestamp: msg.EnqueuedAt,
		})
	}

	if s.engines.Behavior != nil && shouldBlock {
		s.engines.Behavior.MarkAbusive(msg.UserID)
		s.engines.Behavior.UpdateEscalation(msg.UserID, signals.Patterns)
	}

	return &Result{
		MessageID:      msg.ID,
		IsAbusive:      isAbusive,
		ShouldBlock:    shouldBlock,
		RiskScore:      assessment.Score,
		RiskLevel:      assessment.Level,
		Confidence:     assessment.Confidence,
		Categories:     categories,
		Suggestions:    suggestions,
		Alerts:         alerts,
		ComponentsUsed: components,
		ProcessingTime: time.Since(start),
		Category:       signals.Category,
		Sentiment:      signals.Sentiment,
		Patterns:       signals.Patterns,
		Obfuscation:    signals.Obfuscation,
		Intent:         signals.Intent,
	}, nil
}

// signal runs one engine call under a recover guard. A panicking engine
// loses its signal for this message, nothing more.
func (s *Scheduler) signal(name, msgID string, components *[]string, alerts *[]Alert, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[scheduler] %s signal failed for %s: %v", name, msgID, r)
			*alerts = append(*alerts, Alert{
				Type:      AlertSignalError,
				MessageID: msgID,
				Timestamp: time.Now(),
				Detail:    fmt.Sprintf("%s: %v", name, r),
			})
		}
	}()
	fn()
	*components = append(*components, name)
}

func (s *Scheduler) timeoutResult(msg *Message) *Result {
	return &Result{
		MessageID:      msg.ID,
		RiskLevel:      RiskLevelUnknown,
		ProcessingTime: s.cfg.ProcessingTimeout,
		Alerts: []Alert{{
			Type:      AlertTimeout,
			MessageID: msg.ID,
			UserID:    msg.UserID,
			Timestamp: time.Now(),
			Detail:    "processing timeout exceeded, partial result",
		}},
	}
}

// fail marks the message failed and requeues it at the LOW tier until the
// retry budget is spent, then finalizes a degraded result so the caller
// still gets one.
func (s *Scheduler) fail(msg *Message, cause error) {
	log.Printf("[scheduler] %v", cause)
	if err := msg.transition(StatusFailed); err != nil {
		log.Printf("[scheduler] %v", err)
	}
	msg.Retries++

	if msg.Retries <= s.cfg.MaxRetries {
		if err := msg.transition(StatusPending); err == nil {
			select {
			case s.queues[PriorityLow] <- msg:
				log.Printf("[scheduler] retrying message %s (attempt %d)", msg.ID, msg.Retries)
				return
			default:
				log.Printf("[scheduler] retry queue full, failing message %s", msg.ID)
				msg.Status = StatusFailed
			}
		}
	}

	res := &Result{
		MessageID:      msg.ID,
		RiskLevel:      RiskLevelUnknown,
		ProcessingTime: time.Since(msg.StartedAt),
		Alerts: []Alert{{
			Type:      AlertProcessingError,
			MessageID: msg.ID,
			UserID:    msg.UserID,
			Timestamp: time.Now(),
			Detail:    cause.Error(),
		}},
	}
	msg.FinishedAt = time.Now()
	msg.Result = res
	s.finish(msg, res)
}

// finish records history and statistics and fires callbacks.
func (s *Scheduler) finish(msg *Message, res *Result) {
	failed := msg.Status == StatusFailed

	s.statsMu.Lock()
	s.processed++
	if res.ShouldBlock {
		s.blocked++
	}
	if failed {
		s.failed++
	}
	s.statsMu.Unlock()

	metrics.MessagesTotal.WithLabelValues(string(msg.Status)).Inc()
	metrics.ProcessingLatency.Observe(res.ProcessingTime.Seconds())
	for _, c := range res.Categories {
		metrics.DetectionsTotal.WithLabelValues(c).Inc()
	}

	rec := record{
		MessageID:      msg.ID,
		UserID:         msg.UserID,
		Status:         msg.Status,
		RiskScore:      res.RiskScore,
		ProcessingTime: res.ProcessingTime,
		Timestamp:      msg.EnqueuedAt,
	}
	s.completions.add(rec)
	if res.ShouldBlock {
		s.blockedRing.add(rec)
	}

	s.fire(&s.onProcessed, msg, res)
	if res.ShouldBlock {
		s.fire(&s.onBlocked, msg, res)
	}
	if res.RiskScore >= s.cfg.HighRiskThreshold {
		metrics.HighRiskAlerts.Inc()
		s.fire(&s.onHighRisk, msg, res)
	}
	if failed {
		s.fire(&s.onError, msg, res)
	}
}

// fire snapshots the registration list under the lock so callbacks can be
// added while workers are finishing messages.
func (s *Scheduler) fire(cbs *[]Callback, msg *Message, res *Result) {
	s.cbMu.RLock()
	list := make([]Callback, len(*cbs))
	copy(list, *cbs)
	s.cbMu.RUnlock()

	for _, cb := range list {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[scheduler] callback panic: %v", r)
				}
			}()
			cb(msg, res)
		}()
	}
}

// OnProcessed registers a callback fired after every finalized message.
func (s *Scheduler) OnProcessed(cb Callback) {
	s.cbMu.Lock()
	s.onProcessed = append(s.onProcessed, cb)
	s.cbMu.Unlock()
}

// OnBlocked registers a callback fired when a message is blocked.
func (s *Scheduler) OnBlocked(cb Callback) {
	s.cbMu.Lock()
	s.onBlocked = append(s.onBlocked, cb)
	s.cbMu.Unlock()
}

// OnHighRisk registers a callback fired when a result crosses the
// high-risk threshold.
func (s *Scheduler) OnHighRisk(cb Callback) {
	s.cbMu.Lock()
	s.onHighRisk = append(s.onHighRisk, cb)
	s.cbMu.Unlock()
}

// OnError registers a callback fired when a message fails terminally.
func (s *Scheduler) OnError(cb Callback) {
	s.cbMu.Lock()
	s.onError = append(s.onError, cb)
	s.cbMu.Unlock()
}

// statsLoop periodically recomputes throughput and average latency from the
// completion history and refreshes the queue depth gauges.
func (s *Scheduler) statsLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.StatsInterval)
	defer ticker.Stop()

	var lastProcessed int64
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			recent := s.completions.tail(100)
			var total time.Duration
			for _, r := range recent {
				total += r.ProcessingTime
			}

			s.statsMu.Lock()
			delta := s.processed - lastProcessed
			lastProcessed = s.processed
			s.throughput = float64(delta) * float64(time.Minute) / float64(s.cfg.StatsInterval)
			if len(recent) > 0 {
				s.avgLatency = total / time.Duration(len(recent))
			}
			s.statsMu.Unlock()

			for _, p := range Priorities {
				metrics.QueueDepth.WithLabelValues(p.String()).Set(float64(len(s.queues[p])))
			}
		}
	}
}

// MessageInfo is the introspection view of a finalized message.
type MessageInfo struct {
	Status         Status
	RiskScore      float64
	ProcessingTime time.Duration
}

// MessageStatus reports the outcome of a finalized message by id. Messages
// still queued or in flight, or evicted from the bounded history, are not
// found.
func (s *Scheduler) MessageStatus(id string) (MessageInfo, bool) {
	if rec, ok := s.completions.find(id); ok {
		return MessageInfo{Status: rec.Status, RiskScore: rec.RiskScore, ProcessingTime: rec.ProcessingTime}, true
	}
	if rec, ok := s.blockedRing.find(id); ok {
		return MessageInfo{Status: rec.Status, RiskScore: rec.RiskScore, ProcessingTime: rec.ProcessingTime}, true
	}
	return MessageInfo{}, false
}

// QueueStatus is a point-in-time snapshot of queue occupancy.
type QueueStatus struct {
	TotalQueued int
	ByPriority  map[Priority]int
	Running     bool
}

// QueueStatus reports current queue depths per tier.
func (s *Scheduler) QueueStatus() QueueStatus {
	by := make(map[Priority]int, len(Priorities))
	total := 0
	for _, p := range Priorities {
		n := len(s.queues[p])
		by[p] = n
		total += n
	}
	return QueueStatus{TotalQueued: total, ByPriority: by, Running: s.running.Load()}
}

// Stats is a snapshot of the scheduler's counters.
type Stats struct {
	Processed           int64
	Blocked             int64
	Failed              int64
	RateLimited         int64
	ThroughputPerMinute float64
	AverageLatency      time.Duration
	RecentBlocked       int
}

// Stats returns the current processing counters.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return Stats{
		Processed:           s.processed,
		Blocked:             s.blocked,
		Failed:              s.failed,
		RateLimited:         s.rateLimited,
		ThroughputPerMinute: s.throughput,
		AverageLatency:      s.avgLatency,
		RecentBlocked:       s.blockedRing.len(),
	}
}

// ResetStats zeroes the counters and clears the history buffers.
func (s *Scheduler) ResetStats() {
	s.statsMu.Lock()
	s.processed = 0
	s.blocked = 0
	s.failed = 0
	s.rateLimited = 0
	s.throughput = 0
	s.avgLatency = 0
	s.statsMu.Unlock()

	s.completions.clear()
	s.blockedRing.clear()
}

func ctxString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	v, _ := m[key].(string)
	return v
}
