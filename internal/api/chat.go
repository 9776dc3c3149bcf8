package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/folio-agent/folio/internal/agent"
	"github.com/folio-agent/folio/internal/guard"
	"github.com/folio-agent/folio/internal/llm"
)

// HistoryMessage is one prior turn supplied by the client.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string           `json:"message"`
	History []HistoryMessage `json:"history,omitempty"`
}

// ChatResponse is the successful reply to POST /chat. Only Reply is
// required by clients; the rest is diagnostic.
type ChatResponse struct {
	Reply     string `json:"reply"`
	RequestID string `json:"request_id"`
	Model     string `json:"model,omitempty"`
	Hops      int    `json:"hops"`
	ToolCalls int    `json:"tool_calls"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	requestID := newRequestID()
	w.Header().Set("X-Request-ID", requestID)
	log := s.logger.With("request_id", requestID)

	var req ChatRequest
	if status, code, msg := s.decodeChat(w, r, &req); status != 0 {
		log.Debug("rejected chat body", "code", code, "error", msg)
		s.writeError(w, status, code, msg)
		return
	}

	turns := make([]guard.Turn, len(req.History))
	history := make([]llm.Message, len(req.History))
	for i, h := range req.History {
		turns[i] = guard.Turn{Role: h.Role, Content: h.Content}
		history[i] = llm.Message{Role: h.Role, Content: h.Content}
	}

	if s.deps.Guard != nil {
		if err := s.deps.Guard.Check(r.Context(), req.Message, turns); err != nil {
			status, code, msg := classify(err)
			log.Info("chat request rejected", "code", code, "error", err)
			s.writeError(w, status, code, msg)
			return
		}
	}

	resp, err := s.deps.Agent.Run(r.Context(), &agent.Request{
		Message:   req.Message,
		History:   history,
		RequestID: requestID,
	})
	if err != nil {
		status, code, msg := classify(err)
		if status >= http.StatusInternalServerError {
			log.Error("chat request failed", "code", code, "error", err)
		} else {
			log.Warn("chat request failed", "code", code, "error", err)
		}
		s.writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Reply:     resp.Reply,
		RequestID: resp.RequestID,
		Model:     resp.Model,
		Hops:      resp.Hops,
		ToolCalls: resp.ToolCalls,
	}, s.logger)
}

// decodeChat strictly decodes the body into req. A zero status means
// success.
func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request, req *ChatRequest) (status int, code, msg string) {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, "request_too_large",
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, io.EOF) {
			return http.StatusBadRequest, "invalid_request", "request body is empty"
		}
		return http.StatusBadRequest, "invalid_request", "invalid request body: " + err.Error()
	}
	if dec.More() {
		return http.StatusBadRequest, "invalid_request", "request body must be a single JSON object"
	}
	return 0, "", ""
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
