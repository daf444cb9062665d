package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/protocol"
	"github.com/teslashibe/go-focus/pkg/session"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Monitors int    `json:"monitors"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok", Sessions: s.sessions.Count()}
	if s.monitors != nil {
		resp.Monitors = s.monitors.ClientCount()
	}
	return c.JSON(resp)
}

func (s *Server) handleProfiles(c *fiber.Ctx) error {
	out := make([]focus.Config, 0)
	for _, name := range focus.ProfileNames() {
		cfg, err := focus.Profile(name)
		if err != nil {
			return err
		}
		out = append(out, cfg)
	}
	return c.JSON(out)
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrInvalidPayload, err)
		}
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	info, err := s.sessions.Start(req.ID, session.Metadata{
		MeetingID: req.MeetingID,
		UserID:    req.UserID,
		UserName:  req.UserName,
		Profile:   req.Profile,
		Backend:   req.Backend,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(info)
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	return c.JSON(s.sessions.List())
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	info, err := s.sessions.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (s *Server) handleSessionStats(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := s.sessions.Stats(id)
	if err != nil {
		return err
	}
	return c.JSON(protocol.StatsData{SessionID: id, Stats: st})
}

func (s *Server) handleStopSession(c *fiber.Ctx) error {
	id := c.Params("id")
	st, err := s.sessions.Stop(id)
	if err != nil {
		return err
	}
	msg, err := protocol.NewStatsMessage(id, st)
	s.publish(id, msg, err)
	return c.JSON(protocol.StatsData{SessionID: id, Stats: st})
}

func (s *Server) handleObservation(c *fiber.Ctx) error {
	id := c.Params("id")
	data, err := protocol.DecodeObservation(c.Body())
	if err != nil {
		return err
	}
	var r focus.Result
	if obs, convErr := data.ToObservation(); convErr != nil {
		r, err = s.sessions.ProcessInvalid(id, data.CaptureTime(), convErr)
	} else {
		r, err = s.sessions.Process(id, obs)
	}
	if err != nil {
		return err
	}
	msg, err := protocol.NewResultMessage(id, r)
	s.publish(id, msg, err)
	return c.JSON(protocol.ResultData{SessionID: id, Result: r})
}

// handleFrame accepts an encoded image as a multipart "frame" file, a JSON
// FrameData body, or the raw request body.
func (s *Server) handleFrame(c *fiber.Ctx) error {
	id := c.Params("id")
	jpeg, ts, err := readFrame(c)
	var r focus.Result
	switch {
	case errors.Is(err, errUndecodableFrame):
		r, err = s.sessions.ProcessInvalid(id, ts, err)
	case err != nil:
		return err
	default:
		r, err = s.sessions.ProcessFrame(id, jpeg, ts)
	}
	if err != nil {
		return err
	}
	msg, err := protocol.NewResultMessage(id, r)
	s.publish(id, msg, err)
	return c.JSON(protocol.ResultData{SessionID: id, Result: r})
}

// errUndecodableFrame marks a frame body that belongs to a session but whose
// image data cannot be decoded. It is recorded rather than rejected.
var errUndecodableFrame = errors.New("undecodable frame")

func readFrame(c *fiber.Ctx) ([]byte, time.Time, error) {
	ts, err := captureTime(c.FormValue("captured_at", c.Query("captured_at")))
	if err != nil {
		return nil, time.Time{}, err
	}

	contentType := strings.ToLower(string(c.Request().Header.ContentType()))
	switch {
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		fh, err := c.FormFile("frame")
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: missing frame file: %w", protocol.ErrInvalidPayload, err)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, time.Time{}, err
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, time.Time{}, err
		}
		return data, ts, nil

	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		var fd protocol.FrameData
		if err := c.BodyParser(&fd); err != nil {
			return nil, time.Time{}, fmt.Errorf("%w: %w", protocol.ErrInvalidPayload, err)
		}
		if fd.CapturedAt > 0 {
			ts = fd.CaptureTime()
		}
		data, err := fd.Decode()
		if err != nil {
			return nil, ts, fmt.Errorf("%w: %w", errUndecodableFrame, err)
		}
		return data, ts, nil

	default:
		body := c.Body()
		if len(body) == 0 {
			return nil, time.Time{}, fmt.Errorf("%w: empty frame", protocol.ErrInvalidPayload)
		}
		return body, ts, nil
	}
}

// captureTime parses Unix milliseconds. Empty means "now".
func captureTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return time.Time{}, fmt.Errorf("%w: captured_at %q is not a Unix millisecond timestamp", protocol.ErrInvalidPayload, v)
	}
	return time.UnixMilli(ms), nil
}

// publish forwards a message to monitors watching the session.
func (s *Server) publish(sessionID string, msg *protocol.Message, err error) {
	if s.monitors == nil {
		return
	}
	if err != nil {
		s.logger.Warn("encode monitor message", "session", sessionID, "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		s.logger.Warn("encode monitor message", "session", sessionID, "error", err)
		return
	}
	s.monitors.Broadcast(hub.NewJSONMessage(sessionID, data))
}
