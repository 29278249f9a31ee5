package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vbonduro/unlabel/internal/conversation"
	"github.com/vbonduro/unlabel/internal/domain"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsMaxMessage = 64 << 10
)

// wsOutbound is written for every event. Snapshot frames carry the full
// transcript and are sent once on connect. Awaiting is only set on awaiting
// frames.
type wsOutbound struct {
	Type     string              `json:"type"`
	Message  *domain.Message     `json:"message,omitempty"`
	Awaiting *bool               `json:"awaiting,omitempty"`
	Snapshot *transcriptResponse `json:"snapshot,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func eventFrame(ev conversation.Event) wsOutbound {
	out := wsOutbound{Type: string(ev.Kind), Message: ev.Message}
	if ev.Kind == conversation.EventAwaiting {
		awaiting := ev.Awaiting
		out.Awaiting = &awaiting
	}
	return out
}

type wsInbound struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// handleWebSocket streams transcript events and accepts {"type":"message"}
// frames as text submissions.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer closeWithLog(conn, "websocket", s.logger)

	events, unsubscribe := s.conv.Subscribe()
	defer unsubscribe()

	// Submissions outlive the socket, as they do for plain requests.
	ctx := context.WithoutCancel(r.Context())
	outbound := make(chan wsOutbound, 8)
	done := make(chan struct{})
	go s.readPump(ctx, conn, outbound, done)

	snapshot := transcriptResponse{Messages: s.conv.Transcript(), Awaiting: s.conv.Awaiting()}
	if err := s.writeFrame(conn, wsOutbound{Type: "snapshot", Snapshot: &snapshot}); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				s.writeClose(conn)
				return
			}
			if err := s.writeFrame(conn, eventFrame(ev)); err != nil {
				return
			}
		case out := <-outbound:
			if err := s.writeFrame(conn, out); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, outbound chan<- wsOutbound, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(wsMaxMessage)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var in wsInbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.reply(outbound, wsOutbound{Type: "error", Error: "invalid message format"})
			continue
		}
		switch in.Type {
		case "message":
			if _, err := s.conv.SubmitText(ctx, in.Text); err != nil {
				s.reply(outbound, wsOutbound{Type: "error", Error: err.Error()})
			}
		default:
			s.reply(outbound, wsOutbound{Type: "error", Error: "unknown message type"})
		}
	}
}

func (s *Server) reply(outbound chan<- wsOutbound, out wsOutbound) {
	select {
	case outbound <- out:
	default:
		s.logger.Warn("websocket reply dropped", "type", out.Type)
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, out wsOutbound) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	if err := conn.WriteJSON(out); err != nil {
		s.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (s *Server) writeClose(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "conversation closed")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)); err != nil {
		s.logger.Debug("websocket close failed", "error", err)
	}
}
