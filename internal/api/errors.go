package api

import (
	"errors"
	"net/http"

	"github.com/folio-agent/folio/internal/agent"
	"github.com/folio-agent/folio/internal/guard"
	"github.com/folio-agent/folio/internal/llm"
)

// ErrorDetail is the machine-readable part of an error response.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}}, s.logger)
}

// abortMessages are the client-facing texts for loop aborts. Internal
// error details stay in the logs.
var abortMessages = map[agent.Reason]string{
	agent.ReasonTimeout:               "the assistant took too long to answer; please try again",
	agent.ReasonCanceled:              "the request was canceled",
	agent.ReasonDidNotConverge:        "the assistant could not finish answering within its step limit",
	agent.ReasonTooManyToolCalls:      "the assistant requested too many tool calls",
	agent.ReasonToolArgumentsTooLarge: "the assistant produced oversized tool arguments",
	agent.ReasonUpstreamError:         "the language model provider failed; please try again later",
	agent.ReasonNotConfigured:         "the service is not configured with a language model credential",
}

// classify maps an error from the guard or the loop to a status, a
// stable code, and a client-safe message.
func classify(err error) (status int, code, message string) {
	var v *guard.Violation
	if errors.As(err, &v) {
		code = string(v.Kind)
		switch v.Kind {
		case guard.KindEmptyMessage, guard.KindInvalidRole, guard.KindPromptInjection:
			return http.StatusUnprocessableEntity, code, v.Error()
		case guard.KindMessageTooLong, guard.KindHistoryTooLong,
			guard.KindHistoryMessageTooLong, guard.KindTokenBudgetExceeded:
			return http.StatusRequestEntityTooLarge, code, v.Error()
		case guard.KindRateLimited:
			return http.StatusTooManyRequests, code, v.Error()
		}
		return http.StatusBadRequest, code, v.Error()
	}

	var abort *agent.AbortError
	if errors.As(err, &abort) {
		code = string(abort.Reason)
		message = abortMessages[abort.Reason]
		if message == "" {
			message = "the request could not be completed"
		}
		switch abort.Reason {
		case agent.ReasonTimeout, agent.ReasonCanceled:
			return http.StatusRequestTimeout, code, message
		case agent.ReasonUpstreamError:
			return http.StatusBadGateway, code, message
		}
		return http.StatusInternalServerError, code, message
	}

	if errors.Is(err, llm.ErrNotConfigured) {
		return http.StatusInternalServerError, string(agent.ReasonNotConfigured), abortMessages[agent.ReasonNotConfigured]
	}
	return http.StatusInternalServerError, "internal_error", "internal error"
}
