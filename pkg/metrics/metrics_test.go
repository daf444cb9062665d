package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/session"
)

var _ session.Recorder = (*Metrics)(nil)

func TestMetrics_FrameProcessed(t *testing.T) {
	m := New(false)

	m.FrameProcessed(focus.Result{State: attention.Focused, Score: 82}, 2*time.Millisecond)
	m.FrameProcessed(focus.Result{State: attention.Focused, Score: 85}, time.Millisecond)
	m.FrameProcessed(focus.Result{State: attention.NoFace, FallbackUsed: true, Error: "bad jpeg"}, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("focused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("no_face")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.framesTotal.WithLabelValues("sleeping")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbackFrames))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidFrames))
	assert.Equal(t, 1, testutil.CollectAndCount(m.score))
}

func TestMetrics_DroppedAndActive(t *testing.T) {
	m := New(false)
	m.FrameDropped("stale")
	m.FrameDropped("stale")
	m.FrameDropped("rate_limited")
	m.SessionsActive(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.framesDropped.WithLabelValues("rate_limited")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessionsActive))
}

func TestMetrics_Handler(t *testing.T) {
	m := New(true)
	m.SessionsActive(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "focus_sessions_active 2"), body)
	assert.Contains(t, body, "go_goroutines")
}
