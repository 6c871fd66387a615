package stream

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sentra/guard/internal/behavior"
	"github.com/sentra/guard/internal/category"
	"github.com/sentra/guard/internal/fusion"
	"github.com/sentra/guard/internal/ratelimit"
)

// testConfig returns a config sized for fast, deterministic tests.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.StatsInterval = time.Hour // keep the stats ticker quiet
	cfg.EnqueueTimeout = 20 * time.Millisecond
	cfg.Workers = map[Priority]int{
		PriorityCritical: 1,
		PriorityHigh:     1,
		PriorityNormal:   1,
		PriorityLow:      1,
	}
	return cfg
}

// stubDetector returns a fixed category result.
type stubDetector struct {
	res *category.Result
}

func (s *stubDetector) Detect(string, map[string]any) *category.Result { return s.res }

// panicDetector simulates a crashing signal engine.
type panicDetector struct{}

func (panicDetector) Detect(string, map[string]any) *category.Result {
	panic("detector exploded")
}

// gateDetector blocks inside Detect until released, for queue backpressure
// tests.
type gateDetector struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateDetector) Detect(string, map[string]any) *category.Result {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

// riskStub is a behavior tracker that reports a fixed user risk score.
type riskStub struct {
	score float64
}

func (r *riskStub) Analyze(string, behavior.Context) []behavior.PatternMatch { return nil }
func (r *riskStub) UpdateEscalation(string, []behavior.PatternMatch)         {}
func (r *riskStub) MarkAbusive(string)                                       {}
func (r *riskStub) UserRiskScore(string) float64                             { return r.score }

func waitResult(t *testing.T, ch <-chan *Result) *Result {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusBlocked, true},
		{StatusProcessing, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusPending, StatusCompleted, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusBlocked, StatusPending, false},
		{StatusFailed, StatusProcessing, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	s := NewScheduler(testConfig(), Engines{}, nil)

	tests := []struct {
		name string
		text string
		ctx  map[string]any
		want Priority
	}{
		{"threat keyword", "i will kill you", nil, PriorityCritical},
		{"harassment keyword", "you are stupid", nil, PriorityHigh},
		{"supplied risk score", "hello", map[string]any{"user_risk_score": 0.9}, PriorityHigh},
		{"long message", strings.Repeat("a", 501), nil, PriorityHigh},
		{"excessive punctuation", "wow!!!!!!", nil, PriorityHigh},
		{"plain text", "nice weather today", nil, PriorityNormal},
		{"empty", "", nil, PriorityNormal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.classify(tt.text, "u1", tt.ctx); got != tt.want {
				t.Errorf("classify(%q) = %s, want %s", tt.text, got, tt.want)
			}
		})
	}
}

func TestClassify_TrackedUserRisk(t *testing.T) {
	s := NewScheduler(testConfig(), Engines{Behavior: &riskStub{score: 0.9}}, nil)
	if got := s.classify("hello", "u1", nil); got != PriorityHigh {
		t.Errorf("classify for high-risk tracked user = %s, want %s", got, PriorityHigh)
	}
}

func TestEnqueue_NotRunning(t *testing.T) {
	s := NewScheduler(testConfig(), Engines{}, nil)
	if _, err := s.Enqueue("hello", "u1", "web", nil); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Enqueue before Start: err = %v, want ErrNotRunning", err)
	}
}

func TestEnqueue_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(1, time.Minute)
	s := NewScheduler(testConfig(), Engines{}, limiter)
	s.Start()
	defer s.Stop()

	if _, err := s.Enqueue("first", "u1", "web", nil); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	if _, err := s.Enqueue("second", "u1", "web", nil); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second Enqueue: err = %v, want ErrRateLimited", err)
	}

	// A different user is unaffected.
	if _, err := s.Enqueue("third", "u2", "web", nil); err != nil {
		t.Errorf("other user Enqueue: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // let workers drain before Stop
	if got := s.Stats().RateLimited; got != 1 {
		t.Errorf("RateLimited = %d, want 1", got)
	}
}

func TestEnqueue_QueueFull(t *testing.T) {
	gate := &gateDetector{entered: make(chan struct{}, 10), release: make(chan struct{})}
	cfg := testConfig()
	cfg.QueueCapacity = map[Priority]int{
		PriorityCritical: 1,
		PriorityHigh:     1,
		PriorityNormal:   1,
		PriorityLow:      1,
	}

	processed := make(chan *Result, 10)
	s := NewScheduler(cfg, Engines{Category: gate}, nil)
	s.OnProcessed(func(_ *Message, res *Result) { processed <- res })
	s.Start()
	defer s.Stop()

	// First message is dequeued by the NORMAL worker and parks in the gate.
	if _, err := s.Enqueue("message one", "u1", "web", nil); err != nil {
		t.Fatalf("Enqueue one: %v", err)
	}
	<-gate.entered

	// Second fills the queue, third must be rejected.
	if _, err := s.Enqueue("message two", "u2", "web", nil); err != nil {
		t.Fatalf("Enqueue two: %v", err)
	}
	if _, err := s.Enqueue("message three", "u3", "web", nil); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue three: err = %v, want ErrQueueFull", err)
	}

	// Other tiers accept work while NORMAL is saturated.
	if _, err := s.Enqueue("i will kill you", "u4", "web", nil); err != nil {
		t.Errorf("CRITICAL tier Enqueue while NORMAL full: %v", err)
	}

	close(gate.release)
	for i := 0; i < 3; i++ {
		waitResult(t, processed)
	}
}

func TestSignalPanicDegradesGracefully(t *testing.T) {
	processed := make(chan *Result, 1)
	s := NewScheduler(testConfig(), Engines{Category: panicDetector{}}, nil)
	s.OnProcessed(func(_ *Message, res *Result) { processed <- res })
	s.Start()
	defer s.Stop()

	id, err := s.Enqueue("anything at all", "u1", "web", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res := waitResult(t, processed)
	if res.MessageID != id {
		t.Fatalf("result for %s, want %s", res.MessageID, id)
	}
	if res.RiskScore != 0 || res.IsAbusive {
		t.Errorf("degraded result = score %.2f abusive %v, want clean", res.RiskScore, res.IsAbusive)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Type != AlertSignalError {
		t.Errorf("alerts = %+v, want one signal_error", res.Alerts)
	}
	for _, c := range res.ComponentsUsed {
		if c == "category" {
			t.Error("crashed signal listed in ComponentsUsed")
		}
	}
}

func TestBlockingThreshold(t *testing.T) {
	det := &stubDetector{res: &category.Result{
		IsAbusive:  true,
		RiskScore:  90,
		Confidence: 1.0,
		Categories: []string{"harassment"},
	}}

	blocked := make(chan *Result, 1)
	highRisk := make(chan *Result, 1)
	s := NewScheduler(testConfig(), Engines{Category: det}, nil)
	s.OnBlocked(func(_ *Message, res *Result) { blocked <- res })
	s.OnHighRisk(func(_ *Message, res *Result) { highRisk <- res })
	s.Start()
	defer s.Stop()

	id, err := s.Enqueue("flagged content", "u1", "web", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res := waitResult(t, blocked)
	if !res.ShouldBlock {
		t.Error("ShouldBlock = false on blocked callback")
	}
	if res.RiskLevel != fusion.LevelCritical {
		t.Errorf("RiskLevel = %s, want %s", res.RiskLevel, fusion.LevelCritical)
	}

	hr := waitResult(t, highRisk)
	var found bool
	for _, a := range hr.Alerts {
		if a.Type == AlertHighRisk {
			found = true
		}
	}
	if !found {
		t.Error("no high_risk_content alert on high-risk result")
	}

	info, ok := s.MessageStatus(id)
	if !ok {
		t.Fatal("MessageStatus: finalized message not found")
	}
	if info.Status != StatusBlocked {
		t.Errorf("status = %s, want %s", info.Status, StatusBlocked)
	}

	stats := s.Stats()
	if stats.Blocked != 1 || stats.RecentBlocked != 1 {
		t.Errorf("stats = %+v, want 1 blocked", stats)
	}
}

func TestRetryThenTerminalFailure(t *testing.T) {
	cfg := testConfig()
	var errRes *Result
	s := NewScheduler(cfg, Engines{}, nil)
	s.OnError(func(_ *Message, res *Result) { errRes = res })

	// Drive the failure path directly, simulating a worker that keeps
	// hitting a pipeline error.
	msg := &Message{ID: "m1", UserID: "u1", Status: StatusPending, EnqueuedAt: time.Now()}
	cause := errors.New("pipeline exploded")

	for attempt := 0; attempt < cfg.MaxRetries; attempt++ {
		if err := msg.transition(StatusProcessing); err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
		msg.StartedAt = time.Now()
		s.fail(msg, cause)

		if msg.Status != StatusPending {
			t.Fatalf("attempt %d: status = %s, want requeued pending", attempt, msg.Status)
		}
		if got := len(s.queues[PriorityLow]); got != 1 {
			t.Fatalf("attempt %d: LOW queue len = %d, want 1", attempt, got)
		}
		<-s.queues[PriorityLow]
	}

	// Retry budget spent: the next failure is terminal.
	if err := msg.transition(StatusProcessing); err != nil {
		t.Fatal(err)
	}
	msg.StartedAt = time.Now()
	s.fail(msg, cause)

	if msg.Status != StatusFailed {
		t.Errorf("status = %s, want %s", msg.Status, StatusFailed)
	}
	if len(s.queues[PriorityLow]) != 0 {
		t.Error("terminally failed message was requeued")
	}
	if errRes == nil {
		t.Fatal("OnError callback not fired")
	}
	if errRes.RiskLevel != RiskLevelUnknown {
		t.Errorf("RiskLevel = %s, want %s", errRes.RiskLevel, RiskLevelUnknown)
	}
	if len(errRes.Alerts) != 1 || errRes.Alerts[0].Type != AlertProcessingError {
		t.Errorf("alerts = %+v, want one processing_error", errRes.Alerts)
	}

	info, ok := s.MessageStatus("m1")
	if !ok || info.Status != StatusFailed {
		t.Errorf("MessageStatus = %+v ok=%v, want failed", info, ok)
	}
	if got := s.Stats().Failed; got != 1 {
		t.Errorf("Failed = %d, want 1", got)
	}
}

var levelRank = map[fusion.Level]int{
	fusion.LevelMinimal:  0,
	fusion.LevelLow:      1,
	fusion.LevelMedium:   2,
	fusion.LevelHigh:     3,
	fusion.LevelCritical: 4,
}

func TestPipeline_Insult(t *testing.T) {
	processed := make(chan *Result, 1)
	s := NewScheduler(testConfig(), DefaultEngines(), nil)
	s.OnProcessed(func(_ *Message, res *Result) { processed <- res })
	s.Start()
	defer s.Stop()

	if _, err := s.Enqueue("You are such an idiot!", "user-1", "discord", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res := waitResult(t, processed)
	if !res.IsAbusive {
		t.Error("IsAbusive = false for direct insult")
	}
	if levelRank[res.RiskLevel] < levelRank[fusion.LevelMedium] {
		t.Errorf("RiskLevel = %s, want at least MEDIUM", res.RiskLevel)
	}
	if res.Category == nil {
		t.Fatal("no category sub-result")
	}
	var exactHarassment bool
	for _, d := range res.Category.Detections {
		if d.Category == "harassment" && d.Method == category.MethodExact {
			exactHarassment = true
		}
	}
	if !exactHarassment {
		t.Errorf("detections = %+v, want an exact harassment hit", res.Category.Detections)
	}
	if len(res.Suggestions) == 0 {
		t.Error("no suggestions for abusive content")
	}
}

func TestPipeline_EmptyText(t *testing.T) {
	processed := make(chan *Result, 1)
	s := NewScheduler(testConfig(), DefaultEngines(), nil)
	s.OnProcessed(func(_ *Message, res *Result) { processed <- res })
	s.Start()
	defer s.Stop()

	if _, err := s.Enqueue("", "user-2", "web", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res := waitResult(t, processed)
	if res.IsAbusive || res.RiskScore != 0 {
		t.Errorf("empty text: abusive=%v score=%.2f, want clean zero", res.IsAbusive, res.RiskScore)
	}
	if res.ShouldBlock {
		t.Error("empty text blocked")
	}
}

func TestPipeline_CleanText(t *testing.T) {
	processed := make(chan *Result, 1)
	s := NewScheduler(testConfig(), DefaultEngines(), nil)
	s.OnProcessed(func(_ *Message, res *Result) { processed <- res })
	s.Start()
	defer s.Stop()

	id, err := s.Enqueue("thanks for the help, this looks great", "user-3", "web", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	res := waitResult(t, processed)
	if res.ShouldBlock {
		t.Errorf("clean text blocked with score %.2f", res.RiskScore)
	}

	info, ok := s.MessageStatus(id)
	if !ok || info.Status != StatusCompleted {
		t.Errorf("MessageStatus = %+v ok=%v, want completed", info, ok)
	}

	qs := s.QueueStatus()
	if qs.TotalQueued != 0 || !qs.Running {
		t.Errorf("QueueStatus = %+v, want drained and running", qs)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := NewScheduler(testConfig(), Engines{}, nil)
	s.Start()
	s.Stop()
	s.Stop() // must not panic or hang

	if _, err := s.Enqueue("late", "u1", "web", nil); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Enqueue after Stop: err = %v, want ErrNotRunning", err)
	}
}

func TestRegisterCallbackDuringProcessing(t *testing.T) {
	s := NewScheduler(testConfig(), Engines{}, ratelimit.NewMemoryLimiter(1000, time.Minute))
	s.Start()
	defer s.Stop()

	processed := make(chan *Result, 40)
	s.OnProcessed(func(_ *Message, res *Result) {
		processed <- res
	})

	// Keep registering callbacks while workers are finishing messages.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			s.OnProcessed(func(*Message, *Result) {})
			time.Sleep(time.Millisecond)
		}
	}()

	for i := 0; i < 20; i++ {
		if _, err := s.Enqueue("hello there", "user-cb", "discord", nil); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	for i := 0; i < 20; i++ {
		waitResult(t, processed)
	}
	<-done
}
