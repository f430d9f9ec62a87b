// Package openaicompat is the shared provider implementation for every
// upstream whose wire format is OpenAI's Chat Completions API: OpenAI
// itself, Groq, and OpenRouter (the aggregator). Grounded on the
// teacher's llm/providers/openaicompat.Provider base-embedding pattern —
// one implementation, only Config differs per upstream.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gatewayflow/gatewayflow/internal/tlsutil"
	"github.com/gatewayflow/gatewayflow/router"
	"github.com/gatewayflow/gatewayflow/types"
)

// Config configures a Provider instance for one upstream.
type Config struct {
	Name           types.Provider
	BaseURL        string
	EndpointPath   string // defaults to /v1/chat/completions
	Timeout        time.Duration
}

// Provider implements router.Provider for OpenAI-wire-compatible
// upstreams.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a Provider.
func New(cfg Config) *Provider {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Provider{cfg: cfg, client: tlsutil.SecureHTTPClient(timeout)}
}

// Name implements router.Provider.
func (p *Provider) Name() types.Provider { return p.cfg.Name }

func (p *Provider) endpoint() string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
}

type wireMessage struct {
	Role       string          `json:"role"`
	Content    string          `json:"content,omitempty"`
	Name       string          `json:"name,omitempty"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      *wireMessage `json:"message,omitempty"`
	Delta        *wireMessage `json:"delta,omitempty"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   *wireUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, m := range msgs {
		wm := wireMessage{Role: string(m.Role), Content: m.Content, Name: m.Name, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{ID: tc.ID, Type: "function", Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments}})
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []types.ToolSchema) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{Type: "function", Function: wireFunction{Name: t.Name, Arguments: t.Parameters}})
	}
	return out
}

func (p *Provider) buildRequest(req *types.ChatRequest, stream bool) wireRequest {
	return wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		Tools:       toWireTools(req.Tools),
		ToolChoice:  req.ToolChoice,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stop:        req.Stop,
		Stream:      stream,
	}
}

func (p *Provider) newHTTPRequest(ctx context.Context, secret string, body wireRequest) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Content-Type", "application/json")
	return httpReq, nil
}

// Complete implements router.Provider.
func (p *Provider) Complete(ctx context.Context, secret string, req *types.ChatRequest) (*types.ChatResponse, *types.Error) {
	httpReq, err := p.newHTTPRequest(ctx, secret, p.buildRequest(req, false))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err.Error()).WithProvider(string(p.cfg.Name))
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(p.cfg.Name))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body := router.ReadErrorBody(resp.Body)
		return nil, router.MapHTTPError(resp.StatusCode, body, p.cfg.Name)
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(p.cfg.Name))
	}

	return toChatResponse(wr, p.cfg.Name), nil
}

// Stream implements router.Provider via SSE, grounded on the teacher's
// openaicompat.Provider.Stream/StreamSSE bufio.Scanner-based parser.
func (p *Provider) Stream(ctx context.Context, secret string, req *types.ChatRequest) (<-chan types.StreamChunk, *types.Error) {
	httpReq, err := p.newHTTPRequest(ctx, secret, p.buildRequest(req, true))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, err.Error()).WithProvider(string(p.cfg.Name))
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(p.cfg.Name))
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body := router.ReadErrorBody(resp.Body)
		return nil, router.MapHTTPError(resp.StatusCode, body, p.cfg.Name)
	}

	return streamSSE(ctx, resp.Body, p.cfg.Name), nil
}

func streamSSE(ctx context.Context, body io.ReadCloser, provider types.Provider) <-chan types.StreamChunk {
	ch := make(chan types.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var wr wireResponse
			if err := json.Unmarshal([]byte(data), &wr); err != nil {
				select {
				case <-ctx.Done():
				case ch <- types.StreamChunk{Err: types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(provider))}:
				}
				return
			}

			for _, choice := range wr.Choices {
				chunk := types.StreamChunk{
					ID:           wr.ID,
					Provider:     provider,
					Model:        wr.Model,
					Index:        choice.Index,
					FinishReason: choice.FinishReason,
					Delta:        types.Message{Role: types.RoleAssistant},
				}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
					for _, tc := range choice.Delta.ToolCalls {
						chunk.Delta.ToolCalls = append(chunk.Delta.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
					}
				}
				select {
				case <-ctx.Done():
					return
				case ch <- chunk:
				}
			}
		}
	}()
	return ch
}

func toChatResponse(wr wireResponse, provider types.Provider) *types.ChatResponse {
	choices := make([]types.ChatChoice, 0, len(wr.Choices))
	for _, c := range wr.Choices {
		msg := types.Message{Role: types.RoleAssistant}
		if c.Message != nil {
			msg.Content = c.Message.Content
			msg.Name = c.Message.Name
			for _, tc := range c.Message.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
			}
		}
		choices = append(choices, types.ChatChoice{Index: c.Index, FinishReason: c.FinishReason, Message: msg})
	}

	resp := &types.ChatResponse{ID: wr.ID, Provider: provider, Model: wr.Model, Choices: choices}
	if wr.Usage != nil {
		resp.Usage = types.ChatUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		}
	}
	if wr.Created != 0 {
		resp.CreatedAt = time.Unix(wr.Created, 0)
	}
	return resp
}
