package llm

import (
	"context"
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// completeAnthropic calls the Anthropic Messages API. The client is built
// per call from the request's credential, so a key rotated mid-run is
// picked up on the next row.
func (c *Client) completeAnthropic(ctx context.Context, req Request) (*Response, error) {
	opts := []option.RequestOption{option.WithAPIKey(req.APIKey)}
	if c.AnthropicBaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.AnthropicBaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := req.MaxTokens
	if maxTokens > anthropicMaxTokensCap {
		maxTokens = anthropicMaxTokensCap
	}

	// GenAI generation span, "{operation} {model}" per the OTel semconv.
	ctx, span := tracer.Start(ctx, "chat "+req.Model,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("gen_ai.operation.name", "chat"),
			attribute.String("gen_ai.provider.name", "anthropic"),
			attribute.String("gen_ai.request.model", req.Model),
			attribute.Int64("gen_ai.request.max_tokens", maxTokens),
			attribute.Float64("gen_ai.request.temperature", req.Temperature),
			attribute.Float64("gen_ai.request.top_p", req.TopP),
		),
	)
	defer span.End()

	if inputJSON, err := json.Marshal(req.Messages); err == nil {
		span.SetAttributes(attribute.String("gen_ai.input.messages", string(inputJSON)))
	}

	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
		TopP:        anthropic.Float(req.TopP),
		System:      system,
		Messages:    messages,
	})
	if err != nil {
		span.SetAttributes(attribute.String("error.type", "api_error"))
		return nil, &TransportError{Provider: ProviderAnthropic, Message: err.Error(), Err: err}
	}

	content := noResponseFallback
	if len(resp.Content) > 0 && resp.Content[0].Text != "" {
		content = resp.Content[0].Text
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", req.Model),
		attribute.Int64("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int64("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	if string(resp.StopReason) != "" {
		span.SetAttributes(attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.StopReason)}))
	}
	c.Metrics.RecordTokens(ctx, string(ProviderAnthropic), req.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	return &Response{Content: content}, nil
}
