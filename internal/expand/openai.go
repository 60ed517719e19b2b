package expand

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const systemPrompt = "You extract structured search intent from vehicle shopping queries. Reply with JSON only."

// OpenAILLM calls any OpenAI-compatible chat endpoint through langchaingo.
type OpenAILLM struct {
	client llms.Model
}

var _ LLM = (*OpenAILLM)(nil)

// NewOpenAILLM creates an OpenAI-compatible LLM. An empty token is sent as
// "none" for local servers that don't authenticate.
func NewOpenAILLM(baseURL, model, token string) (*OpenAILLM, error) {
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &OpenAILLM{client: client}, nil
}

// Extract sends prompt as the user turn and returns the first choice.
func (o *OpenAILLM) Extract(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	resp, err := o.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no choices returned from model")
	}
	return resp.Choices[0].Content, nil
}
