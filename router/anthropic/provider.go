// Package anthropic implements router.Provider for the Anthropic Messages
// API. Unlike openaicompat it is not grounded on a line-level reference
// implementation — the teacher's corresponding package retrieval only
// carried its doc.go package comment, not the source — so this is built
// from that prose description of the protocol differences (x-api-key
// auth, separate system field, content-block arrays, input/output token
// naming) in the teacher's idiom.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gatewayflow/gatewayflow/internal/tlsutil"
	"github.com/gatewayflow/gatewayflow/router"
	"github.com/gatewayflow/gatewayflow/types"
)

const defaultAnthropicVersion = "2023-06-01"

// Config configures a Provider instance.
type Config struct {
	BaseURL          string
	AnthropicVersion string // defaults to defaultAnthropicVersion
	Timeout          time.Duration
}

// Provider implements router.Provider for Anthropic's Messages API.
type Provider struct {
	cfg    Config
	client *http.Client
}

// New creates a Provider.
func New(cfg Config) *Provider {
	if cfg.AnthropicVersion == "" {
		cfg.AnthropicVersion = defaultAnthropicVersion
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Provider{cfg: cfg, client: tlsutil.SecureHTTPClient(timeout)}
}

// Name implements router.Provider.
func (p *Provider) Name() types.Provider { return types.ProviderAnthropic }

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	StopSeq     []string      `json:"stop_sequences,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type wireResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      wireUsage      `json:"usage"`
}

// defaultMaxTokens is required by Anthropic's API when the caller did not
// specify one; the teacher's provider doc calls this out as a mandatory
// field, unlike OpenAI where it is optional.
const defaultMaxTokens = 4096

// toWireRequest extracts any system message(s) into the top-level system
// field and converts the remaining turns to Anthropic's content-block
// array shape, per the protocol differences described in the teacher's
// anthropic package doc.
func toWireRequest(req *types.ChatRequest) wireRequest {
	wr := wireRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		StopSeq:     req.Stop,
	}
	if wr.MaxTokens == 0 {
		wr.MaxTokens = defaultMaxTokens
	}

	var systemParts []string
	for _, m := range req.Messages {
		switch m.Role {
		case types.RoleSystem:
			systemParts = append(systemParts, m.Content)
		case types.RoleTool:
			wr.Messages = append(wr.Messages, wireMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
					IsError:   false,
				}},
			})
		default:
			blocks := make([]contentBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: tc.Arguments})
			}
			wr.Messages = append(wr.Messages, wireMessage{Role: string(m.Role), Content: blocks})
		}
	}
	if len(systemParts) > 0 {
		system := systemParts[0]
		for _, s := range systemParts[1:] {
			system += "\n" + s
		}
		wr.System = system
	}

	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}
	return wr
}

func fromWireResponse(wr wireResponse) *types.ChatResponse {
	msg := types.Message{Role: types.RoleAssistant}
	for _, block := range wr.Content {
		switch block.Type {
		case "text":
			msg.Content += block.Text
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, types.ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return &types.ChatResponse{
		ID:       wr.ID,
		Provider: types.ProviderAnthropic,
		Model:    wr.Model,
		Choices: []types.ChatChoice{{
			Index:        0,
			FinishReason: wr.StopReason,
			Message:      msg,
		}},
		Usage: types.ChatUsage{
			PromptTokens:     wr.Usage.InputTokens,
			CompletionTokens: wr.Usage.OutputTokens,
			TotalTokens:      wr.Usage.InputTokens + wr.Usage.OutputTokens,
		},
	}
}

// Complete implements router.Provider.
func (p *Provider) Complete(ctx context.Context, secret string, req *types.ChatRequest) (*types.ChatResponse, *types.Error) {
	payload, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, fmt.Sprintf("anthropic: marshal request: %v", err)).WithProvider(string(types.ProviderAnthropic))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, fmt.Sprintf("anthropic: build request: %v", err)).WithProvider(string(types.ProviderAnthropic))
	}
	httpReq.Header.Set("x-api-key", secret)
	httpReq.Header.Set("anthropic-version", p.cfg.AnthropicVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(types.ProviderAnthropic))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, router.MapHTTPError(resp.StatusCode, router.ReadErrorBody(resp.Body), types.ProviderAnthropic)
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).WithRetryable(true).WithProvider(string(types.ProviderAnthropic))
	}
	return fromWireResponse(wr), nil
}

// Stream implements router.Provider. Streaming is not implemented for
// Anthropic in this gateway; per the teacher's doc this would require a
// distinct SSE event parser (message_start/content_block_delta) rather
// than the OpenAI-style delta-per-line shape, and is deferred.
func (p *Provider) Stream(ctx context.Context, secret string, req *types.ChatRequest) (<-chan types.StreamChunk, *types.Error) {
	return nil, types.NewError(types.ErrValidation, "streaming is not supported for the anthropic provider").WithProvider(string(types.ProviderAnthropic))
}
