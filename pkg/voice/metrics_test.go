package voice

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorTurn(t *testing.T) {
	m := NewMetricsCollector()

	var observed []Metrics
	m.OnTurn(func(x Metrics) { observed = append(observed, x) })

	m.MarkAccepted("t1")
	time.Sleep(2 * time.Millisecond)
	m.MarkTranscript()
	m.MarkFirstToken()
	m.MarkFirstToken()
	m.MarkFirstAudio()
	m.IncrementSentences()
	m.IncrementSentences()
	m.IncrementSkipped()
	done := m.MarkDone(OutcomeSuccess)

	assert.Equal(t, "t1", done.TurnID)
	assert.Equal(t, OutcomeSuccess, done.Outcome)
	assert.Positive(t, done.TranscriptLatency)
	assert.GreaterOrEqual(t, done.FirstTokenLatency, done.TranscriptLatency)
	assert.GreaterOrEqual(t, done.TotalLatency, done.FirstAudioLatency)
	assert.Equal(t, 2, done.Deltas)
	assert.Equal(t, 2, done.Sentences)
	assert.Equal(t, 1, done.Skipped)
	require.Len(t, observed, 1)
	assert.Equal(t, 1, m.Turns())
}

func TestMetricsAverageSkipsFailedTurns(t *testing.T) {
	m := NewMetricsCollector()

	m.MarkAccepted("ok")
	time.Sleep(time.Millisecond)
	m.MarkDone(OutcomeSuccess)
	m.MarkAccepted("bad")
	m.MarkDone(OutcomeError)

	avg := m.Average()
	assert.Positive(t, avg.TotalLatency)
	assert.Equal(t, 2, m.Turns())

	assert.Equal(t, Metrics{}, NewMetricsCollector().Average())
}

func TestFormatLatency(t *testing.T) {
	m := Metrics{TranscriptLatency: 412 * time.Millisecond, TotalLatency: 3 * time.Second}
	assert.Equal(t, "412ms STT | ---ms LLM | ---ms TTS | 3s TOTAL", m.FormatLatency())
}

func TestPromMetrics(t *testing.T) {
	prom := NewPromMetrics()
	m := NewMetricsCollector()
	prom.Attach(m)

	m.MarkAccepted("t1")
	m.IncrementSentences()
	m.IncrementSentences()
	m.IncrementSkipped()
	m.MarkDone(OutcomeSuccess)
	m.MarkBusy()
	m.MarkBusy()

	assert.Equal(t, 1.0, testutil.ToFloat64(prom.turnsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(prom.turnsTotal.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.sentences.WithLabelValues("spoken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(prom.sentences.WithLabelValues("skipped")))

	expected := `
# HELP voiceturn_turns_total Total number of utterances by turn outcome
# TYPE voiceturn_turns_total counter
voiceturn_turns_total{outcome="busy"} 2
voiceturn_turns_total{outcome="success"} 1
`
	require.NoError(t, testutil.GatherAndCompare(prom.Registry(), strings.NewReader(expected), "voiceturn_turns_total"))
}
