package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/depotkit/concierge/pkg/auth"
	"github.com/depotkit/concierge/pkg/engine"
	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/scope"
	"github.com/depotkit/concierge/pkg/session"
)

// messageRequest is the body of POST /v1/assistant/message.
type messageRequest struct {
	Message      string     `json:"message"`
	SubAccountID string     `json:"sub_account_id,omitempty"`
	UIContext    *uiContext `json:"ui_context,omitempty"`
	// ConversationHistory is the client's copy of recent turns. The
	// engine prefers the server-side session history and falls back to
	// this when the session has none.
	ConversationHistory []historyTurn `json:"conversation_history,omitempty"`
}

// uiContext mirrors what the client's screen showed when the message
// was sent.
type uiContext struct {
	Route           string   `json:"route,omitempty"`
	SelectedItemIDs []string `json:"selected_item_ids,omitempty"`
}

type historyTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r messageRequest) inbound() engine.Inbound {
	in := engine.Inbound{Text: r.Message}
	if r.UIContext != nil {
		in.UIContext = engine.UIContext{
			Route:           r.UIContext.Route,
			SelectedItemIDs: r.UIContext.SelectedItemIDs,
		}
	}
	for _, turn := range r.ConversationHistory {
		in.History = append(in.History, session.Turn{Role: turn.Role, Content: turn.Content})
	}
	return in
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fault.Wrap(fault.Validation, err, "invalid request body"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, fault.New(fault.Validation, "message must not be empty"))
		return
	}

	sc, err := s.requestScope(r, req.SubAccountID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if s.limiter != nil {
		decision, err := s.limiter.Allow(r.Context(), sc)
		if err != nil {
			s.writeError(w, fault.Wrap(fault.Internal, err, "rate limit check failed"))
			return
		}
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())+1))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(errorResponse{
				Error: "message rate limit exceeded, please slow down",
				Kind:  "rate_limited",
			})
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, fault.New(fault.Internal, "streaming unsupported by connection"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sink := func(ev engine.Event) {
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	result, err := s.engine.HandleMessage(r.Context(), sc, req.inbound(), sink)
	if err != nil {
		// Headers are already sent; report the failure in-band.
		s.logger.Error("message handling failed", "error", err, "kind", fault.KindOf(err))
		sink(engine.Event{Type: "error", Text: fault.MessageOf(err)})
		return
	}
	s.logger.Debug("message handled", "session_id", result.SessionID, "rounds", result.Rounds)
}

// requestScope derives the tenancy scope for the request. With auth enabled
// the scope comes from the verified token claims; otherwise the development
// headers are trusted as-is.
func (s *Server) requestScope(r *http.Request, subAccountID string) (scope.Scope, error) {
	if s.validator != nil {
		claims := auth.GetClaims(r)
		if claims == nil {
			return scope.Scope{}, fault.New(fault.Validation, "missing authentication claims")
		}
		return claims.Scope(subAccountID), nil
	}
	sc := scope.Scope{
		TenantID:     r.Header.Get("X-Tenant-ID"),
		AccountID:    r.Header.Get("X-Account-ID"),
		SubAccountID: subAccountID,
		UserID:       r.Header.Get("X-User-ID"),
	}
	if err := sc.Validate(); err != nil {
		return scope.Scope{}, fault.New(fault.Validation, "missing tenant, account, or user identification")
	}
	return sc, nil
}

// statusFor maps the fault taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Kind {
	case fault.Validation:
		return http.StatusBadRequest
	case fault.NotFound:
		return http.StatusNotFound
	case fault.State:
		return http.StatusConflict
	case fault.Upstream:
		switch fe.Reason {
		case fault.ReasonRateLimited:
			return http.StatusTooManyRequests
		case fault.ReasonPaymentRequired:
			return http.StatusPaymentRequired
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error: fault.MessageOf(err),
		Kind:  string(fault.KindOf(err)),
	})
}
