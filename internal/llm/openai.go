package llm

import (
	"context"
	"encoding/json"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// completeOpenAI calls an OpenAI-compatible Chat Completions API. Like the
// Anthropic path, the client is built per call from the request credential.
func (c *Client) completeOpenAI(ctx context.Context, req Request) (*Response, error) {
	opts := []option.RequestOption{option.WithAPIKey(req.APIKey)}
	if c.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.OpenAIBaseURL))
	}
	client := openai.NewClient(opts...)

	ctx, span := tracer.Start(ctx, "chat "+req.Model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", "openai"),
			attribute.String("gen_ai.request.model", req.Model),
			attribute.Int64("gen_ai.request.max_tokens", req.MaxTokens),
			attribute.Float64("gen_ai.request.temperature", req.Temperature),
			attribute.Float64("gen_ai.request.top_p", req.TopP),
		),
	)
	defer span.End()

	if inputJSON, err := json.Marshal(req.Messages); err == nil {
		span.SetAttributes(attribute.String("gen_ai.input.messages", string(inputJSON)))
	}

	var messages []openai.ChatCompletionMessageParamUnion
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			messages = append(messages, openai.SystemMessage(m.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(m.Content))
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               req.Model,
		Messages:            messages,
		Temperature:         openai.Float(req.Temperature),
		TopP:                openai.Float(req.TopP),
		MaxCompletionTokens: openai.Int(req.MaxTokens),
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, &TransportError{Provider: ProviderOpenAI, Message: err.Error(), Err: err}
	}

	content := noResponseFallback
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
		content = resp.Choices[0].Message.Content
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.String("gen_ai.response.id", resp.ID),
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.PromptTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.CompletionTokens),
	)
	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.Choices[0].FinishReason)}))
	}
	c.Metrics.RecordTokens(ctx, string(ProviderOpenAI), req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return &Response{Content: content}, nil
}
