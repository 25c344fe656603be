package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"loanapproval/ml"
	"loanapproval/predictor"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 16 << 10
)

// wsReply WebSocket响应消息
type wsReply struct {
	Type   string            `json:"type"` // "session", "result" or "error"
	ID     string            `json:"id,omitempty"`
	Result *predictor.Result `json:"result,omitempty"`
	Error  *errorBody        `json:"error,omitempty"`
}

// handleWSPredict 一个连接即一个会话: every text message is one submission.
// Rejected submissions are answered with an error message and the session
// continues.
func (h *handlers) handleWSPredict(w http.ResponseWriter, r *http.Request) {
	session, err := h.registry.NewSession()
	if err != nil {
		writeError(w, err)
		return
	}
	defer session.Close()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	send := func(reply wsReply) error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(reply)
	}
	if err := send(wsReply{Type: "session", ID: session.ID}); err != nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.String("session", session.ID), zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsPongWait))

		var reply wsReply
		var app ml.Applicant
		if err := json.Unmarshal(data, &app); err != nil {
			body := newErrorBody(&predictor.ValidationError{Err: err})
			reply = wsReply{Type: "error", Error: &body}
		} else if res, err := h.submit(r.Context(), session, app); err != nil {
			body := newErrorBody(err)
			reply = wsReply{Type: "error", Error: &body}
		} else {
			reply = wsReply{Type: "result", ID: res.ID, Result: res}
		}
		if err := send(reply); err != nil {
			h.logger.Warn("websocket write error", zap.String("session", session.ID), zap.Error(err))
			return
		}
	}
}
