package web

import (
	"fmt"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-focus/pkg/focus"
	"github.com/teslashibe/go-focus/pkg/protocol"
	"github.com/teslashibe/go-focus/pkg/session"
)

const (
	localSession   = "session"
	localAutostart = "autostart"
)

// prepareStream resolves the session before the upgrade so that an unknown
// session is refused with a normal HTTP error. With ?start=1 the session is
// created here and stopped when the stream closes.
func (s *Server) prepareStream(c *fiber.Ctx) error {
	id := c.Params("id")
	if c.QueryBool("start") {
		req := StartRequest{
			ID:       id,
			UserID:   c.Query("user_id"),
			UserName: c.Query("user_name"),
			Profile:  c.Query("profile"),
			Backend:  c.Query("backend"),
		}
		if err := validate.Struct(req); err != nil {
			return err
		}
		_, err := s.sessions.Start(id, session.Metadata{
			MeetingID: c.Query("meeting_id"),
			UserID:    req.UserID,
			UserName:  req.UserName,
			Profile:   req.Profile,
			Backend:   req.Backend,
		})
		if err != nil {
			return err
		}
		c.Locals(localAutostart, true)
	} else if _, err := s.sessions.Get(id); err != nil {
		return err
	}
	c.Locals(localSession, id)
	return c.Next()
}

// handleStream runs the read loop of a per-session stream. Every inbound
// observation or frame is answered with a result or an error message.
func (s *Server) handleStream(conn *websocket.Conn) {
	id, _ := conn.Locals(localSession).(string)
	autostart, _ := conn.Locals(localAutostart).(bool)
	logger := s.logger.With("session", id, "remote", conn.RemoteAddr().String())
	logger.Info("stream connected")

	defer func() {
		if autostart {
			if st, err := s.sessions.Stop(id); err == nil {
				msg, err := protocol.NewStatsMessage(id, st)
				s.publish(id, msg, err)
			}
		}
		logger.Info("stream disconnected")
	}()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("stream read error", "error", err)
			}
			return
		}

		reply := s.handleStreamMessage(id, mt, data)
		if reply == nil {
			continue
		}
		out, err := reply.Bytes()
		if err != nil {
			logger.Error("encode reply", "error", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			logger.Warn("stream write error", "error", err)
			return
		}
	}
}

// handleStreamMessage processes one inbound message and builds the reply.
// Binary messages are raw encoded frames. It returns nil when no reply
// could be encoded.
func (s *Server) handleStreamMessage(id string, mt int, data []byte) *protocol.Message {
	var (
		reply *protocol.Message
		err   error
	)
	if mt == websocket.BinaryMessage {
		reply, err = s.streamFrame(id, data, time.Time{})
	} else {
		reply, err = s.streamText(id, data)
	}
	if err == nil {
		return reply
	}

	_, code := classify(err)
	msg, encErr := protocol.NewErrorMessage(id, code, err.Error())
	if encErr != nil {
		s.logger.Error("encode error reply", "session", id, "error", encErr)
		return nil
	}
	return msg
}

func (s *Server) streamText(id string, data []byte) (*protocol.Message, error) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case protocol.TypeObservation:
		od, err := msg.GetObservationData()
		if err != nil {
			return nil, err
		}
		var r focus.Result
		if obs, convErr := od.ToObservation(); convErr != nil {
			r, err = s.sessions.ProcessInvalid(id, od.CaptureTime(), convErr)
		} else {
			r, err = s.sessions.Process(id, obs)
		}
		if err != nil {
			return nil, err
		}
		return s.result(id, r)

	case protocol.TypeFrame:
		fd, err := msg.GetFrameData()
		if err != nil {
			return nil, err
		}
		jpeg, err := fd.Decode()
		if err != nil {
			r, err := s.sessions.ProcessInvalid(id, fd.CaptureTime(), err)
			if err != nil {
				return nil, err
			}
			return s.result(id, r)
		}
		return s.streamFrame(id, jpeg, fd.CaptureTime())

	case protocol.TypePing:
		ping, err := msg.GetPingData()
		if err != nil {
			return nil, err
		}
		return protocol.NewPongMessage(ping.ID, ping.Timestamp, time.Now().UnixMilli())

	case protocol.TypeStats:
		st, err := s.sessions.Stats(id)
		if err != nil {
			return nil, err
		}
		return protocol.NewStatsMessage(id, st)

	default:
		return nil, fmt.Errorf("%w: unsupported message type %q", protocol.ErrInvalidPayload, msg.Type)
	}
}

func (s *Server) streamFrame(id string, jpeg []byte, ts time.Time) (*protocol.Message, error) {
	if len(jpeg) == 0 {
		return nil, fmt.Errorf("%w: empty frame", protocol.ErrInvalidPayload)
	}
	r, err := s.sessions.ProcessFrame(id, jpeg, ts)
	if err != nil {
		return nil, err
	}
	return s.result(id, r)
}

func (s *Server) result(id string, r focus.Result) (*protocol.Message, error) {
	msg, err := protocol.NewResultMessage(id, r)
	s.publish(id, msg, err)
	return msg, err
}
