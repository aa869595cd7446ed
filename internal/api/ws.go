package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"callsense/internal/disposition"
)

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.maxBody())

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.Logger.Debug("websocket read", zap.Error(err))
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		reply := h.wsReply(ctx, data)
		payload, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			return
		}
	}
}

func (h *Handler) wsReply(ctx context.Context, data []byte) any {
	h.Metrics.RecordRequest(ctx, "ws")
	var req predictRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.Metrics.RecordError(ctx, "ws", "invalid_request")
		return map[string]any{"error": "invalid json"}
	}
	if msg, ok := req.check(); !ok {
		h.Metrics.RecordError(ctx, "ws", "invalid_request")
		return map[string]any{"error": msg}
	}
	res, err := h.predict(ctx, "ws", "", req.Transcript, req.CurrentDate)
	if err != nil {
		var ee *disposition.ExtractionError
		if errors.As(err, &ee) {
			return map[string]any{"error": msgInvalidJSON, "details": ee.Error()}
		}
		return map[string]any{"error": err.Error()}
	}
	return res
}
