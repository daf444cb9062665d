package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-focus/pkg/attention"
	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/geometry"
	"github.com/teslashibe/go-focus/pkg/protocol"
	"github.com/teslashibe/go-focus/pkg/session"
	"github.com/teslashibe/go-focus/pkg/web"
)

type stubObserver struct{}

func (stubObserver) Observe(_ []byte, ts time.Time) (face.Observation, error) {
	return face.Observation{Timestamp: ts, Source: "stub"}, nil
}
func (stubObserver) Name() string { return "stub" }
func (stubObserver) Close() error { return nil }

func startServer(t *testing.T) (string, *session.Manager) {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.MaxFPS = 0
	mgr := session.NewManager(cfg, session.WithObserverFactory(func(string) (session.FrameObserver, error) {
		return stubObserver{}, nil
	}))
	t.Cleanup(mgr.Close)

	srv := web.NewServer(web.DefaultConfig(), mgr, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return "http://" + ln.Addr().String(), mgr
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base string
		opts Options
		want string
	}{
		{"http://localhost:8080", Options{}, "ws://localhost:8080/ws/sessions/a"},
		{"https://focus.example.com/", Options{}, "wss://focus.example.com/ws/sessions/a"},
		{"ws://h:1", Options{Start: true, Profile: "meeting"}, "ws://h:1/ws/sessions/a?profile=meeting&start=1"},
		{"ws://h:1", Options{Profile: "meeting"}, "ws://h:1/ws/sessions/a"},
	}
	for _, tc := range tests {
		got, err := StreamURL(tc.base, "a", tc.opts)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := StreamURL("ftp://h", "a", Options{})
	assert.Error(t, err)
}

func TestClientStream(t *testing.T) {
	base, mgr := startServer(t)

	opts := DefaultOptions()
	opts.Profile = "cascade"
	opts.Backend = "cascade"
	c, err := Dial(context.Background(), base, "carol", opts)
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "carol", c.Session())

	info, err := mgr.Get("carol")
	require.NoError(t, err)
	assert.Equal(t, "cascade", info.Profile)

	r, err := c.Observe(protocol.ObservationData{Face: &geometry.Rect{X: 50, Y: 50, W: 100, H: 120}})
	require.NoError(t, err)
	assert.Equal(t, "carol", r.SessionID)
	assert.NotEqual(t, attention.NoFace, r.State)

	r, err = c.SendFrame([]byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, attention.NoFace, r.State)

	pong, err := c.Ping("p")
	require.NoError(t, err)
	assert.Equal(t, "p", pong.ID)
	assert.GreaterOrEqual(t, pong.LatencyMs, int64(0))

	st, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, st.Samples)
}

func TestClientServerError(t *testing.T) {
	base, _ := startServer(t)
	c, err := Dial(context.Background(), base, "dave", DefaultOptions())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Observe(protocol.ObservationData{CapturedAt: time.Now().Add(-time.Hour).UnixMilli()})
	var se *ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "stale", se.Code)

	// The stream stays usable after an error reply.
	_, err = c.Ping("after")
	assert.NoError(t, err)
}

func TestClientHandshakeRefused(t *testing.T) {
	base, _ := startServer(t)
	opts := DefaultOptions()
	opts.Start = false

	_, err := Dial(context.Background(), base, "nobody", opts)
	var he *HandshakeError
	require.True(t, errors.As(err, &he), "got %v", err)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, "session_not_found", he.Code)
}

func TestDialRequiresSession(t *testing.T) {
	_, err := Dial(context.Background(), "http://localhost:1", "", DefaultOptions())
	assert.Error(t, err)
}
