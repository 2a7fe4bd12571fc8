package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

const systemInstruction = `You are a support intake assistant. Collect exactly three fields from the user: their full name, a description of the issue, and an issue category (Login, Billing or Tech). Ask for one missing field at a time, in that order. Once all three are known, call the submit_ticket function instead of replying with text.`

const submitToolName = "submit_ticket"

// OpenAIStrategy delegates slot extraction to an OpenAI-compatible chat
// completions API using function calling.
type OpenAIStrategy struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// OpenAIOption configures an OpenAIStrategy.
type OpenAIOption func(*OpenAIStrategy)

// WithBaseURL sets a custom API base URL.
func WithBaseURL(url string) OpenAIOption {
	return func(s *OpenAIStrategy) { s.baseURL = strings.TrimRight(url, "/") }
}

// WithModel sets the model used for extraction.
func WithModel(model string) OpenAIOption {
	return func(s *OpenAIStrategy) { s.model = model }
}

// WithTimeout bounds the delegate call.
func WithTimeout(timeout time.Duration) OpenAIOption {
	return func(s *OpenAIStrategy) { s.client.Timeout = timeout }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(s *OpenAIStrategy) { s.client = c }
}

// NewOpenAI creates the delegated strategy.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIStrategy {
	s := &OpenAIStrategy{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: "https://api.openai.com/v1",
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide forwards the transcript to the delegate. Transport and API failures
// are returned as errors for the caller's soft-failure path; a malformed
// submit_ticket call degrades to a retry reply so the conversation never
// submits on garbage output.
func (s *OpenAIStrategy) Decide(ctx context.Context, history []domain.Message) (Decision, error) {
	body := openaiRequest{
		Model:    s.model,
		Messages: toOpenAIMessages(history),
		Tools:    []openaiTool{submitTicketTool()},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Decision{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return Decision{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Decision{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Decision{}, fmt.Errorf("api error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var oaiResp openaiResponse
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return Decision{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return Decision{}, fmt.Errorf("no choices in response")
	}

	return parseDecision(oaiResp.Choices[0].Message), nil
}

func parseDecision(msg openaiMessage) Decision {
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != submitToolName {
			continue
		}
		var args struct {
			Name     string `json:"name"`
			Issue    string `json:"issue"`
			Category string `json:"category"`
		}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return Decision{Reply: RetryReply}
		}
		args.Name = strings.TrimSpace(args.Name)
		args.Issue = strings.TrimSpace(args.Issue)
		args.Category = strings.TrimSpace(args.Category)
		if args.Name == "" || args.Issue == "" || args.Category == "" {
			return Decision{Reply: RetryReply}
		}
		return Decision{Slots: &Slots{Name: args.Name, Issue: args.Issue, Category: args.Category}}
	}

	if reply := strings.TrimSpace(msg.Content); reply != "" {
		return Decision{Reply: reply}
	}
	return Decision{Reply: RetryReply}
}

// --- OpenAI wire format types ---

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
	Tools    []openaiTool    `json:"tools,omitempty"`
}

type openaiMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiTool struct {
	Type     string         `json:"type"`
	Function openaiFunction `json:"function"`
}

type openaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type openaiToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	Choices []openaiChoice `json:"choices"`
}

type openaiChoice struct {
	Message openaiMessage `json:"message"`
}

func submitTicketTool() openaiTool {
	return openaiTool{
		Type: "function",
		Function: openaiFunction{
			Name:        submitToolName,
			Description: "Submit the support ticket once name, issue and category are all collected.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string", "description": "The user's full name"},
					"issue": {"type": "string", "description": "Description of the issue"},
					"category": {"type": "string", "description": "One of Login, Billing or Tech"}
				},
				"required": ["name", "issue", "category"]
			}`),
		},
	}
}

func toOpenAIMessages(history []domain.Message) []openaiMessage {
	out := make([]openaiMessage, 0, len(history)+1)
	out = append(out, openaiMessage{Role: "system", Content: systemInstruction})
	for _, msg := range history {
		role := "assistant"
		if msg.Role == domain.RoleUser {
			role = "user"
		}
		out = append(out, openaiMessage{Role: role, Content: msg.Content})
	}
	return out
}
