package hub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	h := New("test", nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	require.Eventually(t, h.IsRunning, time.Second, time.Millisecond)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}, false
	}
}

func TestHub_BroadcastFiltersBySession(t *testing.T) {
	h, _ := startHub(t)

	all := NewClient(h, nil, "")
	s1 := NewClient(h, nil, "s1")
	s2 := NewClient(h, nil, "s2")
	require.NotNil(t, all)
	require.Eventually(t, func() bool { return h.ClientCount() == 3 }, time.Second, time.Millisecond)

	require.NoError(t, h.BroadcastJSON("s1", map[string]int{"score": 80}))

	msg, ok := receive(t, all)
	require.True(t, ok)
	assert.JSONEq(t, `{"score":80}`, string(msg.Data))
	assert.Equal(t, "s1", msg.SessionID)

	msg, ok = receive(t, s1)
	require.True(t, ok)
	assert.Equal(t, JSONMessage, msg.Type)

	select {
	case m := <-s2.send:
		t.Fatalf("s2 received %s", m.Data)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	h, _ := startHub(t)

	c := NewClient(h, nil, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	h.unregister <- c
	_, ok := receive(t, c)
	assert.False(t, ok, "send channel should be closed")
	assert.Equal(t, 0, h.ClientCount())
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t)

	require.NotNil(t, NewClient(h, nil, ""))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	// Nobody drains the client's send buffer, so it fills and the hub drops the client.
	require.Eventually(t, func() bool {
		h.Broadcast(NewBinaryMessage("", []byte{1}))
		return h.ClientCount() == 0
	}, 2*time.Second, 100*time.Microsecond)
}

func TestHub_StopDisconnectsClients(t *testing.T) {
	h, cancel := startHub(t)

	c := NewClient(h, nil, "")
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, time.Millisecond)

	cancel()
	_, ok := receive(t, c)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, time.Millisecond)

	assert.Nil(t, NewClient(h, nil, ""), "stopped hub should refuse clients")
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil) // not running
	for i := 0; i < cap(h.broadcast)+10; i++ {
		h.Broadcast(NewJSONMessage("", []byte("{}")))
	}
	assert.Equal(t, uint64(10), h.Dropped())
}

func TestClient_Wants(t *testing.T) {
	tests := []struct {
		name    string
		client  string
		message string
		want    bool
	}{
		{"all sessions", "", "s1", true},
		{"same session", "s1", "s1", true},
		{"other session", "s1", "s2", false},
		{"global message", "s1", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Client{session: tt.client}
			assert.Equal(t, tt.want, c.wants(Message{SessionID: tt.message}))
		})
	}
}
