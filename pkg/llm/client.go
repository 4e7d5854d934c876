package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/depotkit/concierge/pkg/config"
	"github.com/depotkit/concierge/pkg/fault"
)

// Provider is what the engine talks to. Tests substitute a scripted
// implementation; production uses Client.
type Provider interface {
	// Complete performs one non-streaming completion.
	Complete(ctx context.Context, req Request) (*Completion, error)
	// Stream performs one streaming completion. The channel is closed
	// after a ChunkDone or ChunkError.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature *float64
	httpClient  *http.Client
}

var _ Provider = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func NewClient(cfg config.LLMConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:     cfg.BaseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) buildRequest(req Request, stream bool) chatRequest {
	out := chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: c.temperature,
		Stream:      stream,
	}
	if c.maxTokens > 0 {
		mt := c.maxTokens
		out.MaxTokens = &mt
	}
	if stream {
		out.StreamOpts = &streamOption{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		out.Tools = make([]wireTool, len(req.Tools))
		for i, t := range req.Tools {
			out.Tools[i] = wireTool{
				Type: "function",
				Function: wireFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.Parameters,
				},
			}
		}
		out.ToolChoice = req.ToolChoice
		if out.ToolChoice == "" {
			out.ToolChoice = ToolChoiceAuto
		}
	}
	return out
}

func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "failed to encode completion request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "failed to build completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fault.UpstreamError(fault.ReasonUnavailable, err, "model endpoint unreachable")
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		detail := string(body)
		if apiErr := parseErrorBody(body); apiErr != nil {
			detail = apiErr.Message
		}
		err := fmt.Errorf("status %d: %s", resp.StatusCode, detail)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fault.UpstreamError(fault.ReasonRateLimited, err, "model endpoint rate limited the request")
		case resp.StatusCode == http.StatusPaymentRequired:
			return nil, fault.UpstreamError(fault.ReasonPaymentRequired, err, "model endpoint rejected the request for billing reasons")
		case resp.StatusCode >= 500:
			return nil, fault.UpstreamError(fault.ReasonUnavailable, err, "model endpoint failed")
		default:
			return nil, fault.UpstreamError(fault.ReasonUnavailable, err, "model endpoint rejected the request")
		}
	}
	return resp, nil
}

func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.UpstreamError(fault.ReasonUnavailable, err, "failed to read completion response")
	}
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fault.UpstreamError(fault.ReasonUnavailable, err, "failed to decode completion response")
	}
	if parsed.Error != nil {
		return nil, fault.UpstreamError(fault.ReasonUnavailable,
			errors.New(parsed.Error.Message), "model endpoint returned an error")
	}
	if len(parsed.Choices) == 0 {
		return nil, fault.UpstreamError(fault.ReasonUnavailable,
			errors.New("no choices in response"), "model endpoint returned an empty response")
	}

	ch := parsed.Choices[0]
	return &Completion{
		Text:      ch.Message.Content,
		ToolCalls: ch.Message.ToolCalls,
		Tokens:    parsed.Usage.TotalTokens,
	}, nil
}

func (c *Client) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	resp, err := c.post(ctx, c.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		if err := c.readStream(resp.Body, out); err != nil {
			out <- StreamChunk{Type: ChunkError, Err: err}
		}
	}()
	return out, nil
}

// readStream parses the SSE body. Tool call fragments are keyed by their
// delta index and surfaced whole once the stream finishes.
func (c *Client) readStream(body io.Reader, out chan<- StreamChunk) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	accum := make(map[int]*ToolCall)
	totalTokens := 0

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		payload := line[len("data: "):]
		if bytes.Equal(payload, []byte("[DONE]")) {
			break
		}

		var chunk streamResponse
		if err := json.Unmarshal(payload, &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			return fault.UpstreamError(fault.ReasonUnavailable,
				errors.New(chunk.Error.Message), "model endpoint returned an error mid-stream")
		}
		if chunk.Usage != nil {
			totalTokens = chunk.Usage.TotalTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		d := chunk.Choices[0].Delta
		if d.Content != "" {
			out <- StreamChunk{Type: ChunkText, Text: d.Content}
		}
		for _, frag := range d.ToolCalls {
			tc, ok := accum[frag.Index]
			if !ok {
				tc = &ToolCall{Type: "function"}
				accum[frag.Index] = tc
			}
			if frag.ID != "" {
				tc.ID = frag.ID
			}
			if frag.Function.Name != "" {
				tc.Function.Name = frag.Function.Name
			}
			tc.Function.Arguments += frag.Function.Arguments
		}
	}
	if err := scanner.Err(); err != nil {
		return fault.UpstreamError(fault.ReasonUnavailable, err, "model stream was interrupted")
	}

	indices := make([]int, 0, len(accum))
	for i := range accum {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	for _, i := range indices {
		out <- StreamChunk{Type: ChunkToolCall, ToolCall: accum[i]}
	}

	out <- StreamChunk{Type: ChunkDone, Tokens: totalTokens}
	return nil
}
