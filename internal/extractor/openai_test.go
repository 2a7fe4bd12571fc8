package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-intake/internal/domain"
)

func openaiReplyServer(t *testing.T, msg openaiMessage) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req openaiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		require.Equal(t, "system", req.Messages[0].Role)
		require.Len(t, req.Tools, 1)
		require.Equal(t, submitToolName, req.Tools[0].Function.Name)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openaiResponse{
			Choices: []openaiChoice{{Message: msg}},
		})
	}))
}

func TestOpenAIDecideTextReply(t *testing.T) {
	srv := openaiReplyServer(t, openaiMessage{Role: "assistant", Content: "What's your full name?"})
	defer srv.Close()

	strategy := NewOpenAI("test-key", WithBaseURL(srv.URL))
	decision, err := strategy.Decide(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "Hi"},
	})
	require.NoError(t, err)
	require.False(t, decision.Complete())
	require.Equal(t, "What's your full name?", decision.Reply)
}

func TestOpenAIDecideToolCallCompletesSlots(t *testing.T) {
	srv := openaiReplyServer(t, openaiMessage{
		Role: "assistant",
		ToolCalls: []openaiToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: openaiToolFunction{
				Name:      submitToolName,
				Arguments: `{"name": "John Smith", "issue": "Cannot log in", "category": "Login"}`,
			},
		}},
	})
	defer srv.Close()

	strategy := NewOpenAI("test-key", WithBaseURL(srv.URL))
	decision, err := strategy.Decide(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "Login"},
	})
	require.NoError(t, err)
	require.True(t, decision.Complete())
	require.Equal(t, Slots{Name: "John Smith", Issue: "Cannot log in", Category: "Login"}, *decision.Slots)
}

func TestOpenAIDecideMalformedToolCallFailsSoft(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"name": `,
		"missing field": `{"name": "John Smith", "issue": "Cannot log in"}`,
		"blank field":   `{"name": "  ", "issue": "Cannot log in", "category": "Login"}`,
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			srv := openaiReplyServer(t, openaiMessage{
				Role: "assistant",
				ToolCalls: []openaiToolCall{{
					ID:       "call_1",
					Type:     "function",
					Function: openaiToolFunction{Name: submitToolName, Arguments: args},
				}},
			})
			defer srv.Close()

			strategy := NewOpenAI("test-key", WithBaseURL(srv.URL))
			decision, err := strategy.Decide(context.Background(), []domain.Message{
				{Role: domain.RoleUser, Content: "Hi"},
			})
			require.NoError(t, err)
			require.False(t, decision.Complete())
			require.Equal(t, RetryReply, decision.Reply)
		})
	}
}

func TestOpenAIDecideUpstreamErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	strategy := NewOpenAI("test-key", WithBaseURL(srv.URL))
	_, err := strategy.Decide(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "Hi"},
	})
	require.Error(t, err)
}

func TestOpenAIDecideTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	strategy := NewOpenAI("test-key", WithBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := strategy.Decide(context.Background(), []domain.Message{
		{Role: domain.RoleUser, Content: "Hi"},
	})
	require.Error(t, err)
}
