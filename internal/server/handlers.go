package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"locatorcheck/internal/ctxkeys"
	"locatorcheck/internal/service"
	"locatorcheck/pkg/model"
)

const maxRequestBody = 1 << 20

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req model.VerificationRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	out, err := s.svc.RequestVerification(r.Context(), req)
	if err != nil {
		s.log.Err(err, "校验请求失败", "traceId", ctxkeys.TraceID(r.Context()))
		httpError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	scr, err := s.svc.Script(r.URL.Query().Get("locator"))
	if err != nil {
		httpError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = io.WriteString(w, scr.String())
}

func (s *Server) handleStrategies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Strategies())
}

// handleEvents 以 server-sent events 推送投递事件
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	events, unsubscribe := s.svc.SubscribeEvents()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func statusOf(err error) int {
	if errors.Is(err, service.ErrInvalidRequest) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpError 以 JSON 返回错误
func httpError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
