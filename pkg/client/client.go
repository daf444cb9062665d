// Package client streams observations and frames to a focusd session over
// WebSocket and returns the server's per-frame results.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-focus/pkg/protocol"
)

// Options controls how a stream is opened.
type Options struct {
	// Start creates the session when the stream opens; the server stops it
	// when the stream closes.
	Start     bool
	Profile   string
	Backend   string
	UserID    string
	UserName  string
	MeetingID string

	HandshakeTimeout time.Duration
	ReplyTimeout     time.Duration
}

// DefaultOptions returns options that autostart a session with the server
// defaults.
func DefaultOptions() Options {
	return Options{
		Start:            true,
		HandshakeTimeout: 10 * time.Second,
		ReplyTimeout:     5 * time.Second,
	}
}

// ServerError is an error message sent by the server in reply to a frame.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// HandshakeError is a refused stream upgrade.
type HandshakeError struct {
	Status int
	Code   string
	Body   string
}

func (e *HandshakeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("handshake refused (%d %s): %s", e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("handshake refused (%d): %s", e.Status, e.Body)
}

// Client is one session stream. The server answers messages in order, so
// each call writes one message and waits for its reply.
type Client struct {
	conn    *websocket.Conn
	session string
	timeout time.Duration
	mu      sync.Mutex
}

// StreamURL builds the stream endpoint for a server base URL such as
// "http://localhost:8080" or "ws://localhost:8080".
func StreamURL(base, sessionID string, opts Options) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "ws", "":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/ws/sessions/" + url.PathEscape(sessionID)

	q := url.Values{}
	if opts.Start {
		q.Set("start", "1")
		setIf(q, "profile", opts.Profile)
		setIf(q, "backend", opts.Backend)
		setIf(q, "user_id", opts.UserID)
		setIf(q, "user_name", opts.UserName)
		setIf(q, "meeting_id", opts.MeetingID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// Dial opens a stream to sessionID.
func Dial(ctx context.Context, base, sessionID string, opts Options) (*Client, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}
	target, err := StreamURL(base, sessionID, opts)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, handshakeError(resp)
		}
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}

	timeout := opts.ReplyTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ReplyTimeout
	}
	return &Client{conn: conn, session: sessionID, timeout: timeout}, nil
}

func handshakeError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	herr := &HandshakeError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	var er struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &er) == nil && er.Code != "" {
		herr.Code, herr.Body = er.Code, er.Error
	}
	return herr
}

// Session returns the session ID of the stream.
func (c *Client) Session() string {
	return c.session
}

// Observe sends landmark data for one frame.
func (c *Client) Observe(data protocol.ObservationData) (*protocol.ResultData, error) {
	msg, err := protocol.NewObservationMessage(data)
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTripMessage(msg)
	if err != nil {
		return nil, err
	}
	return expect(reply, protocol.TypeResult, reply.GetResultData)
}

// SendFrame sends an encoded image as a binary message.
func (c *Client) SendFrame(jpeg []byte) (*protocol.ResultData, error) {
	reply, err := c.roundTrip(websocket.BinaryMessage, jpeg)
	if err != nil {
		return nil, err
	}
	return expect(reply, protocol.TypeResult, reply.GetResultData)
}

// Ping measures the round trip to the server.
func (c *Client) Ping(id string) (*protocol.PongData, error) {
	msg, err := protocol.NewPingMessage(id)
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTripMessage(msg)
	if err != nil {
		return nil, err
	}
	return expect(reply, protocol.TypePong, reply.GetPongData)
}

// Stats requests the session statistics so far.
func (c *Client) Stats() (*protocol.StatsData, error) {
	msg, err := protocol.NewMessage(protocol.TypeStats, nil)
	if err != nil {
		return nil, err
	}
	reply, err := c.roundTripMessage(msg)
	if err != nil {
		return nil, err
	}
	return expect(reply, protocol.TypeStats, reply.GetStatsData)
}

func expect[T any](msg *protocol.Message, want protocol.MessageType, get func() (*T, error)) (*T, error) {
	if msg.Type != want {
		return nil, fmt.Errorf("unexpected reply %q, want %q", msg.Type, want)
	}
	return get()
}

func (c *Client) roundTripMessage(msg *protocol.Message) (*protocol.Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return nil, err
	}
	return c.roundTrip(websocket.TextMessage, data)
}

func (c *Client) roundTrip(mt int, data []byte) (*protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(mt, data); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	c.conn.SetReadDeadline(deadline)
	_, raw, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	reply, err := protocol.ParseMessage(raw)
	if err != nil {
		return nil, err
	}
	if reply.Type == protocol.TypeError {
		ed, err := reply.GetErrorData()
		if err != nil {
			return nil, err
		}
		return nil, &ServerError{Code: ed.Code, Message: ed.Message}
	}
	return reply, nil
}

// Close ends the stream with a normal closure.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
