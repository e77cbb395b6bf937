package gpt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"WaDesk/internal/config"
	"WaDesk/internal/lib/sl"
	"WaDesk/internal/service/escalation"
)

const systemPrompt = `You are a customer support assistant. Answer the customer
question briefly. Reply with a JSON object {"response": string, "confidence":
number between 0 and 1}. Confidence reflects how sure you are the question is
answerable without a human agent.`

// Matcher answers customer questions through an OpenAI chat model. It is a
// drop-in alternative to the keyword knowledge base behind the same
// escalation.Matcher interface.
type Matcher struct {
	client *openai.Client
	model  string
	log    *slog.Logger
}

func NewMatcher(conf *config.Config, logger *slog.Logger) *Matcher {
	if !conf.OpenAI.Enabled || conf.OpenAI.ApiKey == "" {
		return nil
	}
	return &Matcher{
		client: openai.NewClient(conf.OpenAI.ApiKey),
		model:  conf.OpenAI.Model,
		log:    logger.With(sl.Module("gpt.matcher")),
	}
}

type modelAnswer struct {
	Response   string  `json:"response"`
	Confidence float64 `json:"confidence"`
}

func (m *Matcher) FindMatch(ctx context.Context, text string) (*escalation.Match, error) {
	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	raw := resp.Choices[0].Message.Content
	var answer modelAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		m.log.With(
			slog.String("response", raw),
			sl.Err(err),
		).Error("unmarshalling model answer")
		return nil, nil
	}
	if answer.Response == "" {
		return nil, nil
	}

	return &escalation.Match{
		Response:   answer.Response,
		Confidence: answer.Confidence,
	}, nil
}
