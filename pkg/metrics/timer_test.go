package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTimerMeasuresElapsed(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	require.GreaterOrEqual(t, first, 20*time.Millisecond)

	// Duration reads do not stop the timer
	time.Sleep(5 * time.Millisecond)
	require.Greater(t, timer.Duration(), first)
}

func TestTimerObservesHistogram(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "timer_test_seconds",
	})
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "timer_test_vec_seconds",
	}, []string{"queue"})

	timer := NewTimer()
	time.Sleep(time.Millisecond)
	timer.ObserveDuration(h)
	timer.ObserveDurationVec(vec, "llm")

	// the labeled series only exists once the observation landed
	require.Equal(t, 1, testutil.CollectAndCount(vec, "timer_test_vec_seconds"))
	require.Equal(t, 1, testutil.CollectAndCount(h, "timer_test_seconds"))
}
