// Package engine runs the conversational loop: it feeds the session and
// tool set to the model, executes requested tools in order, and streams
// the assistant's answer back to the caller.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/depotkit/concierge/pkg/config"
	"github.com/depotkit/concierge/pkg/fault"
	"github.com/depotkit/concierge/pkg/llm"
	"github.com/depotkit/concierge/pkg/metrics"
	"github.com/depotkit/concierge/pkg/scope"
	"github.com/depotkit/concierge/pkg/session"
	"github.com/depotkit/concierge/pkg/tool"
)

// Event kinds emitted while a message is being handled.
const (
	EventDelta    = "delta"
	EventToolCall = "tool_call"
	EventDone     = "done"
)

// Event is one unit of streamed progress. Delta events carry answer text;
// tool_call events announce tool activity so UIs can show progress.
type Event struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Tool string `json:"tool,omitempty"`
}

// Sink receives events as they happen. It is called from the handling
// goroutine only.
type Sink func(Event)

// UIContext describes what the client's screen showed when the message
// was sent, so "this item" can mean the one on screen.
type UIContext struct {
	Route           string
	SelectedItemIDs []string
}

// Inbound is one user message plus the client-side context sent with it.
type Inbound struct {
	Text      string
	UIContext UIContext
	// History is the client's copy of the recent conversation. The
	// server-side session history is authoritative; the client copy is
	// consulted only when the session carries none, such as right after
	// an expiry or a store outage.
	History []session.Turn
}

// Result summarizes a fully handled message.
type Result struct {
	SessionID string
	Text      string
	Rounds    int
}

// Engine drives the request/execute/answer loop.
type Engine struct {
	provider llm.Provider
	registry *tool.Registry
	sessions session.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      config.AssistantConfig
}

func New(provider llm.Provider, registry *tool.Registry, sessions session.Store,
	m *metrics.Metrics, logger *slog.Logger, cfg config.AssistantConfig) *Engine {
	return &Engine{
		provider: provider,
		registry: registry,
		sessions: sessions,
		metrics:  m,
		logger:   logger.With("component", "engine"),
		cfg:      cfg,
	}
}

// loadSession fetches or creates the caller's session. If the store is
// down the turn still runs on an ephemeral in-memory session; state will
// not survive the turn, which beats refusing the user outright.
func (e *Engine) loadSession(ctx context.Context, sc scope.Scope) (*session.Session, bool) {
	sess, err := e.sessions.GetOrCreate(ctx, sc.TenantID, sc.AccountID, sc.UserID)
	if err == nil {
		return sess, false
	}
	e.logger.Error("session store unavailable, degrading to ephemeral session",
		"tenant", sc.TenantID, "user", sc.UserID, "error", err)
	now := time.Now().UTC()
	return &session.Session{
		ID:        "ephemeral-" + uuid.NewString(),
		TenantID:  sc.TenantID,
		AccountID: sc.AccountID,
		UserID:    sc.UserID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(e.cfg.SessionTTL()),
	}, true
}

// patchSession applies a patch both to the stored session and the
// in-memory copy the rest of the turn works with.
func (e *Engine) patchSession(ctx context.Context, sess *session.Session, ephemeral bool, p session.Patch) {
	p.Apply(sess, e.cfg.HistoryWindow)
	if ephemeral {
		return
	}
	if _, err := e.sessions.Patch(ctx, sess.ID, p); err != nil {
		e.logger.Error("failed to persist session patch", "session", sess.ID, "error", err)
	}
}

// HandleMessage runs one user message to completion. Text produced by
// the model streams through the sink as it arrives; the returned Result
// carries the assembled answer.
func (e *Engine) HandleMessage(ctx context.Context, sc scope.Scope, in Inbound, sink Sink) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	sess, ephemeral := e.loadSession(ctx, sc)

	history := sess.State.History
	if len(history) == 0 {
		history = clientHistory(in.History, e.cfg.HistoryWindow)
	}
	messages := []llm.Message{{Role: llm.RoleSystem, Content: buildSystemPrompt(sess, in.UIContext)}}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.Text})

	defs := e.registry.Definitions()
	inv := tool.Invocation{Scope: sc, Session: sess}

	var answer string
	rounds := 0
	for rounds < e.cfg.MaxRounds {
		rounds++
		reply, calls, err := e.streamRound(ctx, llm.Request{
			Messages:   messages,
			Tools:      defs,
			ToolChoice: llm.ToolChoiceAuto,
		}, sink)
		if err != nil {
			e.recordOutcome("error", rounds)
			return nil, err
		}
		answer += reply

		if len(calls) == 0 {
			e.finishTurn(ctx, sess, ephemeral, in.Text, answer)
			e.recordOutcome("ok", rounds)
			sink(Event{Type: EventDone})
			return &Result{SessionID: sess.ID, Text: answer, Rounds: rounds}, nil
		}

		// The assistant message carrying the tool calls must precede
		// the tool results in the transcript.
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   reply,
			ToolCalls: calls,
		})
		for _, call := range calls {
			messages = append(messages, e.executeCall(ctx, inv, sess, ephemeral, call, sink))
		}
	}

	// Round cap reached with tools still in flight: one final request
	// with tools disabled drains the turn into a plain answer.
	e.logger.Warn("round cap reached, draining", "session", sess.ID, "rounds", rounds)
	reply, _, err := e.streamRound(ctx, llm.Request{
		Messages:   messages,
		Tools:      defs,
		ToolChoice: llm.ToolChoiceNone,
	}, sink)
	if err != nil {
		e.recordOutcome("error", rounds)
		return nil, err
	}
	answer += reply
	rounds++

	e.finishTurn(ctx, sess, ephemeral, in.Text, answer)
	e.recordOutcome("drained", rounds)
	sink(Event{Type: EventDone})
	return &Result{SessionID: sess.ID, Text: answer, Rounds: rounds}, nil
}

// clientHistory sanitizes a client-supplied transcript: only user and
// assistant turns are admitted, truncated to the same window the stored
// history uses.
func clientHistory(turns []session.Turn, window int) []session.Turn {
	var out []session.Turn
	for _, turn := range turns {
		if turn.Role == llm.RoleUser || turn.Role == llm.RoleAssistant {
			out = append(out, turn)
		}
	}
	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}

// streamRound performs one completion, forwarding text deltas to the
// sink and collecting any tool calls.
func (e *Engine) streamRound(ctx context.Context, req llm.Request, sink Sink) (string, []llm.ToolCall, error) {
	start := time.Now()
	ch, err := e.provider.Stream(ctx, req)
	if err != nil {
		return "", nil, err
	}

	var text string
	var calls []llm.ToolCall
	for chunk := range ch {
		switch chunk.Type {
		case llm.ChunkText:
			text += chunk.Text
			sink(Event{Type: EventDelta, Text: chunk.Text})
		case llm.ChunkToolCall:
			calls = append(calls, *chunk.ToolCall)
		case llm.ChunkError:
			return "", nil, chunk.Err
		}
	}
	if e.metrics != nil {
		e.metrics.CompletionTime.Observe(time.Since(start).Seconds())
	}
	return text, calls, nil
}

// executeCall dispatches one tool call and renders its outcome as the
// tool message fed back to the model. Business faults become structured
// error payloads the model can recover from; infrastructure faults abort
// via the error payload too but are logged at ERROR.
func (e *Engine) executeCall(ctx context.Context, inv tool.Invocation, sess *session.Session,
	ephemeral bool, call llm.ToolCall, sink Sink) llm.Message {
	name := call.Function.Name
	sink(Event{Type: EventToolCall, Tool: name})

	out, err := e.registry.Dispatch(ctx, inv, call)
	var payload any
	outcome := "ok"
	if err != nil {
		outcome = "error"
		kind := fault.KindOf(err)
		if kind == fault.Validation || kind == fault.NotFound || kind == fault.State {
			e.logger.Info("tool rejected call", "tool", name, "kind", kind, "error", err)
		} else {
			e.logger.Error("tool failed", "tool", name, "kind", kind, "error", err)
		}
		payload = map[string]any{"error": fault.MessageOf(err), "kind": string(kind)}
	} else {
		payload = out.Result
		if out.Patch != nil {
			e.patchSession(ctx, sess, ephemeral, *out.Patch)
		}
	}
	if e.metrics != nil {
		e.metrics.ToolCalls.WithLabelValues(name, outcome).Inc()
	}

	encoded, mErr := json.Marshal(payload)
	if mErr != nil {
		encoded = []byte(`{"error":"unencodable tool result"}`)
	}
	return llm.Message{
		Role:       llm.RoleTool,
		Content:    string(encoded),
		ToolCallID: call.ID,
	}
}

func (e *Engine) finishTurn(ctx context.Context, sess *session.Session, ephemeral bool, userText, answer string) {
	e.patchSession(ctx, sess, ephemeral, session.Patch{AppendTurns: []session.Turn{
		{Role: llm.RoleUser, Content: userText},
		{Role: llm.RoleAssistant, Content: answer},
	}})
}

func (e *Engine) recordOutcome(outcome string, rounds int) {
	if e.metrics == nil {
		return
	}
	e.metrics.Messages.WithLabelValues(outcome).Inc()
	e.metrics.RoundsPerTurn.Observe(float64(rounds))
}
