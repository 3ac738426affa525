package voice

import (
	"sync"
	"time"
)

// Outcome is how a turn finished.
type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeEmptyInput Outcome = "empty_input"
	OutcomeError      Outcome = "error"
	OutcomeBusy       Outcome = "busy"
)

// Metrics tracks latency at each stage of one turn.
// All durations are measured from the moment the utterance was accepted.
type Metrics struct {
	TurnID string

	// Timestamps for key events
	AcceptedTime   time.Time // When the utterance was accepted
	TranscriptTime time.Time // When transcription completed
	FirstTokenTime time.Time // When the first reply delta arrived
	FirstAudioTime time.Time // When the first audio reached the sink
	DoneTime       time.Time // When the last audio was handed to the sink

	// Computed latencies (from acceptance)
	TranscriptLatency time.Duration
	FirstTokenLatency time.Duration
	FirstAudioLatency time.Duration
	TotalLatency      time.Duration

	// Counts for this turn
	Sentences int // Sentences dispatched to synthesis
	Skipped   int // Sentences dropped after a synthesis failure
	Deltas    int // Reply deltas received

	Outcome Outcome
}

// MetricsCollector collects latency metrics across turns.
// It is goroutine-safe and can be used from multiple callbacks.
type MetricsCollector struct {
	mu      sync.Mutex
	current Metrics
	history []Metrics // Recent turns for averaging

	onTurn []func(Metrics)
	onBusy []func()
}

const metricsHistory = 100

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		history: make([]Metrics, 0, metricsHistory),
	}
}

// OnTurn adds a callback that fires with the final metrics of every turn.
func (m *MetricsCollector) OnTurn(fn func(Metrics)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTurn = append(m.onTurn, fn)
}

// OnBusy adds a callback that fires for every rejected utterance.
func (m *MetricsCollector) OnBusy(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onBusy = append(m.onBusy, fn)
}

// MarkAccepted starts a new turn. It is the reference point for all
// latency measurements.
func (m *MetricsCollector) MarkAccepted(turnID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = Metrics{TurnID: turnID, AcceptedTime: time.Now()}
}

// MarkTranscript records when transcription completed.
func (m *MetricsCollector) MarkTranscript() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.TranscriptTime = time.Now()
	m.current.TranscriptLatency = m.sinceAccepted(m.current.TranscriptTime)
}

// MarkFirstToken records the first reply delta. Later calls only count.
func (m *MetricsCollector) MarkFirstToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Deltas++
	if m.current.FirstTokenTime.IsZero() {
		m.current.FirstTokenTime = time.Now()
		m.current.FirstTokenLatency = m.sinceAccepted(m.current.FirstTokenTime)
	}
}

// MarkFirstAudio records the first audio written to the sink.
func (m *MetricsCollector) MarkFirstAudio() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.FirstAudioTime.IsZero() {
		m.current.FirstAudioTime = time.Now()
		m.current.FirstAudioLatency = m.sinceAccepted(m.current.FirstAudioTime)
	}
}

// IncrementSentences counts a sentence dispatched to synthesis.
func (m *MetricsCollector) IncrementSentences() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Sentences++
}

// IncrementSkipped counts a sentence that failed to synthesize.
func (m *MetricsCollector) IncrementSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Skipped++
}

// MarkDone finishes the turn with outcome and archives it.
func (m *MetricsCollector) MarkDone(outcome Outcome) Metrics {
	m.mu.Lock()
	m.current.DoneTime = time.Now()
	m.current.TotalLatency = m.sinceAccepted(m.current.DoneTime)
	m.current.Outcome = outcome
	done := m.current

	m.history = append(m.history, done)
	if len(m.history) > metricsHistory {
		m.history = m.history[1:]
	}
	observers := append(([]func(Metrics))(nil), m.onTurn...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(done)
	}
	return done
}

// MarkBusy records a rejected utterance.
func (m *MetricsCollector) MarkBusy() {
	m.mu.Lock()
	observers := append(([]func())(nil), m.onBusy...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Must be called with mutex held.
func (m *MetricsCollector) sinceAccepted(t time.Time) time.Duration {
	if m.current.AcceptedTime.IsZero() {
		return 0
	}
	return t.Sub(m.current.AcceptedTime)
}

// Current returns the current metrics snapshot.
func (m *MetricsCollector) Current() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Turns returns the number of archived turns.
func (m *MetricsCollector) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}

// Average returns average latencies over recent successful turns.
func (m *MetricsCollector) Average() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var avg Metrics
	var n time.Duration
	for _, h := range m.history {
		if h.Outcome != OutcomeSuccess {
			continue
		}
		avg.TranscriptLatency += h.TranscriptLatency
		avg.FirstTokenLatency += h.FirstTokenLatency
		avg.FirstAudioLatency += h.FirstAudioLatency
		avg.TotalLatency += h.TotalLatency
		n++
	}
	if n == 0 {
		return Metrics{}
	}

	avg.TranscriptLatency /= n
	avg.FirstTokenLatency /= n
	avg.FirstAudioLatency /= n
	avg.TotalLatency /= n
	return avg
}

// FormatLatency returns a formatted string of latencies.
func (m *Metrics) FormatLatency() string {
	return formatDuration(m.TranscriptLatency) + " STT | " +
		formatDuration(m.FirstTokenLatency) + " LLM | " +
		formatDuration(m.FirstAudioLatency) + " TTS | " +
		formatDuration(m.TotalLatency) + " TOTAL"
}

func formatDuration(d time.Duration) string {
	if d == 0 {
		return "---ms"
	}
	return d.Round(time.Millisecond).String()
}
