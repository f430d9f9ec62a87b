package types

import "time"

// ChatRequest is the gateway's normalized chat completion request, built by
// the HTTP handler and passed down through coalescing, caching and routing.
type ChatRequest struct {
	Project     string        `json:"-"`
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Temperature float32       `json:"temperature,omitempty"`
	TopP        float32       `json:"top_p,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Tools       []ToolSchema  `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
}

// ChatChoice is one completion choice in a ChatResponse.
type ChatChoice struct {
	Index        int     `json:"index"`
	FinishReason string  `json:"finish_reason"`
	Message      Message `json:"message"`
}

// ChatUsage reports token accounting for a completion, normalized across
// providers (e.g. Anthropic's input_tokens/output_tokens).
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the gateway's normalized chat completion response.
type ChatResponse struct {
	ID        string     `json:"id"`
	Provider  Provider   `json:"provider"`
	Model     string     `json:"model"`
	Choices   []ChatChoice `json:"choices"`
	Usage     ChatUsage  `json:"usage"`
	CreatedAt time.Time  `json:"created_at"`
}

// StreamChunk is one server-sent-event delta of a streaming completion.
type StreamChunk struct {
	ID           string     `json:"id"`
	Provider     Provider   `json:"provider"`
	Model        string     `json:"model"`
	Index        int        `json:"index"`
	Delta        Message    `json:"delta"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        *ChatUsage `json:"usage,omitempty"`
	Err          *Error     `json:"-"`
}
