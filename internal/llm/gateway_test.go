package llm

import (
	"context"
	"errors"
	"testing"
)

func TestProviderForModel(t *testing.T) {
	tests := []struct {
		model string
		want  Provider
	}{
		{"gpt-4o", ProviderOpenAI},
		{"gpt-4o-mini", ProviderOpenAI},
		{"gpt-3.5-turbo", ProviderOpenAI},
		{"claude-sonnet-4-20250514", ProviderAnthropic},
		{"claude-3-haiku", ProviderAnthropic},
		{"", ProviderAnthropic},
		{"llama-3", ProviderAnthropic},
	}

	for _, tt := range tests {
		if got := ProviderForModel(tt.model); got != tt.want {
			t.Errorf("ProviderForModel(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestComplete_RequiresAPIKey(t *testing.T) {
	c := &Client{}
	_, err := c.Complete(context.Background(), Request{
		Provider: ProviderOpenAI,
		Model:    "gpt-4o",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
	if terr.Provider != ProviderOpenAI {
		t.Errorf("provider = %q", terr.Provider)
	}
}

func TestComplete_RejectsUnknownProvider(t *testing.T) {
	c := &Client{}
	_, err := c.Complete(context.Background(), Request{
		Provider: Provider("mystery"),
		APIKey:   "k",
	})

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("err = %v, want *TransportError", err)
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Provider: ProviderAnthropic, Message: "call failed", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("TransportError does not unwrap to its cause")
	}
	if err.Error() != "anthropic: call failed" {
		t.Errorf("Error() = %q", err.Error())
	}
}
