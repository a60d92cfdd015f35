// Package llm wraps the OpenAI chat completions API in JSON mode, producing
// a StructuredAnswer grounded strictly in the supplied context.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/StephaneWamba/real-time-rag/engine/domain"
	"github.com/StephaneWamba/real-time-rag/pkg/resilience"
)

// StructuredAnswer is the LLM's grounded response to a query.
type StructuredAnswer struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Citations  []string `json:"citations"`
	IsComplete bool     `json:"is_complete"`
}

const systemPrompt = `You are a retrieval-grounded assistant. Answer the user's question using ONLY the provided context; never use outside knowledge.

Respond with a single JSON object matching this schema:
{
  "answer": string,
  "confidence": number between 0 and 1,
  "citations": array of document IDs (strings) that support the answer, drawn only from the available document IDs,
  "is_complete": boolean, false if the context does not fully answer the question
}

If the context does not contain enough information to answer, set is_complete to false and lower confidence accordingly. Never cite a document ID that is not in the available list.`

// chatAPI is the subset of *openai.Client this package depends on, narrowed
// to allow a fake in tests.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// Client generates grounded, structured answers.
type Client struct {
	api     chatAPI
	model   string
	limiter *rate.Limiter
	breaker *resilience.Breaker
}

// New builds a Client for the given chat model.
func New(apiKey, model string, ratePerSecond float64, burst int) *Client {
	return newWithAPI(openai.NewClient(apiKey), model, ratePerSecond, burst)
}

func newWithAPI(api chatAPI, model string, ratePerSecond float64, burst int) *Client {
	return &Client{
		api:     api,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
	}
}

// GenerateStructured answers query using context and the set of document IDs
// the context was drawn from, constraining citations to that set.
func (c *Client) GenerateStructured(ctx context.Context, query, contextText string, documentIDs []string) (*StructuredAnswer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewLLMError("rate limiter wait", err)
	}

	userMsg := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAvailable document IDs: %s",
		contextText, query, strings.Join(documentIDs, ", "))

	var resp openai.ChatCompletionResponse
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userMsg},
			},
			Temperature:    0.7,
			MaxTokens:      500,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		return callErr
	})
	if err != nil {
		return nil, domain.NewLLMError("create chat completion", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, domain.NewLLMError("empty completion content", nil)
	}

	content := resp.Choices[0].Message.Content
	var answer StructuredAnswer
	if err := json.Unmarshal([]byte(content), &answer); err != nil {
		return nil, domain.NewLLMError(fmt.Sprintf("parse structured answer: %s", truncate(content, 200)), err)
	}
	return &answer, nil
}

// Ping probes the configured provider with a models listing call, used by
// engine/health to report a live "openai" dependency status rather than
// inferring liveness from the presence of an API key alone.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.ListModels(ctx)
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
