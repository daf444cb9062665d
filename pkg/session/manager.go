// Package session runs one focus engine per participant and serializes the
// frames of each session while different sessions proceed in parallel.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-focus/pkg/face"
	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/stats"
)

// FrameObserver turns an encoded frame into an observation.
type FrameObserver interface {
	Observe(jpeg []byte, ts time.Time) (face.Observation, error)
	Name() string
	Close() error
}

// ObserverFactory opens a detector backend by name.
type ObserverFactory func(backend string) (FrameObserver, error)

// Recorder receives per-frame outcomes, typically for metrics.
type Recorder interface {
	FrameProcessed(r focus.Result, elapsed time.Duration)
	FrameDropped(reason string)
	SessionsActive(n int)
}

// Metadata describes who a session belongs to.
type Metadata struct {
	MeetingID string `json:"meeting_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	UserName  string `json:"user_name,omitempty"`

	// Profile selects the engine profile; empty means the manager default.
	Profile string `json:"profile,omitempty"`
	// Backend selects the detector for encoded frames; "none" disables it.
	Backend string `json:"backend,omitempty"`
}

// Config holds session manager settings.
type Config struct {
	// StaleAfter drops frames captured longer ago than this, or stamped
	// further ahead of the server clock than this. 0 disables both checks.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// IdleTimeout expires sessions without frames for this long. 0 disables.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	// ReapInterval is how often Run checks for idle sessions.
	ReapInterval time.Duration `mapstructure:"reap_interval"`

	// MaxFPS limits admitted frames per session. 0 disables.
	MaxFPS float64 `mapstructure:"max_fps"`
	Burst  int     `mapstructure:"burst"`

	// MaxSessions caps concurrent sessions. 0 means unlimited.
	MaxSessions int `mapstructure:"max_sessions"`

	DefaultProfile string `mapstructure:"default_profile"`
	DefaultBackend string `mapstructure:"default_backend"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		StaleAfter:     2 * time.Second,
		IdleTimeout:    5 * time.Minute,
		ReapInterval:   30 * time.Second,
		MaxFPS:         15,
		Burst:          5,
		DefaultProfile: "landmark",
		DefaultBackend: "none",
	}
}

// Info is a read-only view of a session.
type Info struct {
	ID           string         `json:"id"`
	Metadata     Metadata       `json:"metadata"`
	Profile      string         `json:"profile"`
	Backend      string         `json:"backend"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Counters     focus.Counters `json:"counters"`
	Last         *focus.Result  `json:"last,omitempty"`
}

// Session is one participant's engine and its admission state.
type Session struct {
	id       string
	meta     Metadata
	tracker  *focus.Tracker
	observer FrameObserver
	limiter  *rate.Limiter

	mu           sync.Mutex
	created      time.Time
	lastActivity time.Time
	lastFrame    time.Time
	last         *focus.Result
	closed       bool
}

func (s *Session) info() Info {
	backend := "none"
	if s.observer != nil {
		backend = s.observer.Name()
	}
	in := Info{
		ID:           s.id,
		Metadata:     s.meta,
		Profile:      s.tracker.Config().Name,
		Backend:      backend,
		CreatedAt:    s.created,
		LastActivity: s.lastActivity,
		Counters:     s.tracker.Counters(),
	}
	if s.last != nil {
		r := *s.last
		in.Last = &r
	}
	return in
}

// Manager owns all live sessions.
type Manager struct {
	cfg      Config
	factory  ObserverFactory
	recorder Recorder
	clock    func() time.Time
	logger   *slog.Logger
	topts    []focus.Option

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithObserverFactory sets how detector backends are opened.
func WithObserverFactory(f ObserverFactory) Option {
	return func(m *Manager) {
		m.factory = f
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		m.recorder = r
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithTrackerOptions passes options to every engine the manager creates.
func WithTrackerOptions(opts ...focus.Option) Option {
	return func(m *Manager) {
		m.topts = append(m.topts, opts...)
	}
}

// NewManager creates an empty manager.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		clock:    time.Now,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "session")
	return m
}

// Start creates a session. An empty id gets a generated UUID. The engine
// profile and detector backend are resolved here so that a session that
// cannot work fails immediately.
func (m *Manager) Start(id string, meta Metadata) (Info, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if meta.Profile == "" {
		meta.Profile = m.cfg.DefaultProfile
	}
	if meta.Backend == "" {
		meta.Backend = m.cfg.DefaultBackend
	}

	cfg, err := focus.Profile(meta.Profile)
	if err != nil {
		return Info{}, err
	}
	topts := append([]focus.Option{focus.WithLogger(m.logger.With("session", id))}, m.topts...)
	tracker, err := focus.NewTracker(cfg, topts...)
	if err != nil {
		return Info{}, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Info{}, ErrClosed
	}
	if _, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return Info{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	if m.cfg.MaxSessions > 0 && len(m.sessions) >= m.cfg.MaxSessions {
		m.mu.Unlock()
		return Info{}, fmt.Errorf("%w (%d)", ErrTooManySessions, m.cfg.MaxSessions)
	}
	// Reserve the ID while the detector opens.
	m.sessions[id] = nil
	m.mu.Unlock()

	observer, err := m.openObserver(meta.Backend)
	if err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		m.logger.Error("detector unavailable", "session", id, "backend", meta.Backend, "error", err)
		return Info{}, err
	}

	now := m.clock()
	s := &Session{
		id:           id,
		meta:         meta,
		tracker:      tracker,
		observer:     observer,
		created:      now,
		lastActivity: now,
	}
	if m.cfg.MaxFPS > 0 {
		burst := m.cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(m.cfg.MaxFPS), burst)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.teardown(s)
		return Info{}, ErrClosed
	}
	m.sessions[id] = s
	n := m.countLocked()
	m.mu.Unlock()

	if m.recorder != nil {
		m.recorder.SessionsActive(n)
	}
	m.logger.Info("session started",
		"session", id,
		"profile", cfg.Name,
		"backend", meta.Backend,
		"meeting", meta.MeetingID,
		"user", meta.UserID,
	)
	return s.info(), nil
}

func (m *Manager) openObserver(backend string) (FrameObserver, error) {
	if backend == "" || backend == "none" {
		return nil, nil
	}
	if m.factory == nil {
		return nil, fmt.Errorf("%w: backend %q not configured", ErrNoDetector, backend)
	}
	obs, err := m.factory(backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoDetector, backend, err)
	}
	if obs == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDetector, backend)
	}
	return obs, nil
}

func (m *Manager) countLocked() int {
	n := 0
	for _, s := range m.sessions {
		if s != nil {
			n++
		}
	}
	return n
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.RLock()
	s := m.sessions[id]
	m.mu.RUnlock()
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// admit applies the frame admission rules. Caller holds s.mu.
// Nothing is modified unless the frame is admitted.
func (m *Manager) admit(s *Session, ts, now time.Time) error {
	if m.cfg.StaleAfter > 0 && now.Sub(ts) > m.cfg.StaleAfter {
		return fmt.Errorf("%w: captured %s ago", ErrStaleFrame, now.Sub(ts).Round(time.Millisecond))
	}
	// A frame far ahead of the clock must not become lastFrame.
	if m.cfg.StaleAfter > 0 && ts.Sub(now) > m.cfg.StaleAfter {
		return fmt.Errorf("%w: captured %s ahead", ErrFutureFrame, ts.Sub(now).Round(time.Millisecond))
	}
	if !s.lastFrame.IsZero() && !ts.After(s.lastFrame) {
		return fmt.Errorf("%w: %s not after %s", ErrOutOfOrder, ts.Format(time.RFC3339Nano), s.lastFrame.Format(time.RFC3339Nano))
	}
	// Tokens are drawn at capture time, not wall time.
	if s.limiter != nil && !s.limiter.AllowN(ts, 1) {
		return ErrRateLimited
	}
	return nil
}

func (m *Manager) dropped(id string, err error) {
	reason := DropReason(err)
	if m.recorder != nil && reason != "" {
		m.recorder.FrameDropped(reason)
	}
	m.logger.Debug("frame dropped", "session", id, "reason", reason)
}

func (m *Manager) finish(s *Session, r focus.Result, ts, now time.Time, elapsed time.Duration) {
	s.lastFrame = ts
	s.lastActivity = now
	s.last = &r
	if m.recorder != nil {
		m.recorder.FrameProcessed(r, elapsed)
	}
}

// Process applies a decoded observation to a session.
func (m *Manager) Process(id string, obs face.Observation) (focus.Result, error) {
	s, err := m.get(id)
	if err != nil {
		return focus.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return focus.Result{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	now := m.clock()
	if obs.Timestamp.IsZero() {
		obs.Timestamp = now
	}
	if err := m.admit(s, obs.Timestamp, now); err != nil {
		m.dropped(id, err)
		return focus.Result{}, err
	}

	start := time.Now()
	r := s.tracker.Process(obs)
	m.finish(s, r, obs.Timestamp, now, time.Since(start))
	return r, nil
}

// ProcessFrame decodes an encoded frame with the session's detector and
// applies it. A frame the detector rejects is recorded as a zero sample and
// reported through Result.Error rather than as an error.
func (m *Manager) ProcessFrame(id string, jpeg []byte, ts time.Time) (focus.Result, error) {
	s, err := m.get(id)
	if err != nil {
		return focus.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return focus.Result{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.observer == nil {
		return focus.Result{}, fmt.Errorf("%w: session %s has no detector backend", ErrNoDetector, id)
	}

	now := m.clock()
	if ts.IsZero() {
		ts = now
	}
	if err := m.admit(s, ts, now); err != nil {
		m.dropped(id, err)
		return focus.Result{}, err
	}

	start := time.Now()
	var r focus.Result
	obs, err := s.observer.Observe(jpeg, ts)
	if err != nil {
		m.logger.Warn("frame rejected by detector", "session", id, "backend", s.observer.Name(), "error", err)
		r = s.tracker.ProcessError(ts, err)
	} else {
		r = s.tracker.Process(obs)
	}
	m.finish(s, r, ts, now, time.Since(start))
	return r, nil
}

// ProcessInvalid records a frame whose payload could not be decoded as a
// zero sample. The frame goes through admission like any other; the cause
// is reported through Result.Error.
func (m *Manager) ProcessInvalid(id string, ts time.Time, cause error) (focus.Result, error) {
	s, err := m.get(id)
	if err != nil {
		return focus.Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return focus.Result{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	now := m.clock()
	if ts.IsZero() {
		ts = now
	}
	if err := m.admit(s, ts, now); err != nil {
		m.dropped(id, err)
		return focus.Result{}, err
	}

	start := time.Now()
	m.logger.Debug("invalid frame payload", "session", id, "error", cause)
	r := s.tracker.ProcessError(ts, cause)
	m.finish(s, r, ts, now, time.Since(start))
	return r, nil
}

// Get returns a session view.
func (m *Manager) Get(id string) (Info, error) {
	s, err := m.get(id)
	if err != nil {
		return Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// Stats returns session statistics without stopping it.
func (m *Manager) Stats(id string) (stats.Stats, error) {
	s, err := m.get(id)
	if err != nil {
		return stats.Stats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Stats(), nil
}

// Stop ends a session and returns its final statistics.
func (m *Manager) Stop(id string) (stats.Stats, error) {
	m.mu.Lock()
	s := m.sessions[id]
	if s == nil {
		m.mu.Unlock()
		return stats.Stats{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.sessions, id)
	n := m.countLocked()
	m.mu.Unlock()

	st := m.teardown(s)
	if m.recorder != nil {
		m.recorder.SessionsActive(n)
	}
	m.logger.Info("session stopped",
		"session", id,
		"samples", st.Samples,
		"average", st.AverageScore,
		"focused", st.TotalFocusedTime,
	)
	return st, nil
}

func (m *Manager) teardown(s *Session) stats.Stats {
	s.mu.Lock()
	s.closed = true
	st := s.tracker.Stats()
	obs := s.observer
	s.mu.Unlock()

	if obs != nil {
		if err := obs.Close(); err != nil {
			m.logger.Warn("detector close failed", "session", s.id, "error", err)
		}
	}
	return st
}

// List returns all sessions ordered by creation time.
func (m *Manager) List() []Info {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s != nil {
			all = append(all, s)
		}
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		out = append(out, s.info())
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countLocked()
}

// Reap stops sessions idle longer than IdleTimeout and returns their IDs.
func (m *Manager) Reap(now time.Time) []string {
	if m.cfg.IdleTimeout <= 0 {
		return nil
	}

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s == nil {
			continue
		}
		s.mu.Lock()
		idle := now.Sub(s.lastActivity) > m.cfg.IdleTimeout
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := m.countLocked()
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		m.teardown(s)
		ids = append(ids, s.id)
		m.logger.Info("session expired", "session", s.id, "idle_timeout", m.cfg.IdleTimeout)
	}
	if len(expired) > 0 && m.recorder != nil {
		m.recorder.SessionsActive(n)
	}
	sort.Strings(ids)
	return ids
}

// Run reaps idle sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	interval := m.cfg.ReapInterval
	if interval <= 0 {
		interval = DefaultConfig().ReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Reap(m.clock())
		}
	}
}

// Close stops every session. Start fails with ErrClosed afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		if s != nil {
			all = append(all, s)
		}
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.teardown(s)
	}
	if m.recorder != nil {
		m.recorder.SessionsActive(0)
	}
}
