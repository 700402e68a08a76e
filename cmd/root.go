package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/config"
	"github.com/timvw/promptbench/internal/llm"
	"github.com/timvw/promptbench/internal/model"
	telem "github.com/timvw/promptbench/internal/otel"
	"github.com/timvw/promptbench/internal/store"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

var (
	// Global flags.
	flagDataDir string
	flagUser    string
)

var rootCmd = &cobra.Command{
	Use:   "promptbench",
	Short: "Versioned prompt workbench with LLM-judged experiments",
	Long: `promptbench manages versioned LLM prompts as branches of commits,
keeps per-prompt test cases and CSV datasets, and batch-runs prompts
against datasets with a second LLM acting as a judge.

Commands print JSON to stdout; diagnostics go to stderr.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the data directory")
	rootCmd.PersistentFlags().StringVar(&flagUser, "user", "", "override the active user id")
}

// loadConfig resolves configuration (defaults -> file -> env -> flags).
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	return cfg, nil
}

// openStore opens the data directory and resolves the active user.
func openStore(cfg *config.Config) (*store.Store, string, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, "", err
	}
	user := flagUser
	if user == "" {
		user = st.CurrentUser()
	}
	return st, user, nil
}

// credentials resolves provider API keys: stored settings first, then the
// conventional environment variables. The store is re-read on every call,
// so a key changed mid-run applies to the next LLM call.
type credentials struct {
	store *store.Store
}

func (c credentials) APIKey(provider string) (string, bool) {
	if key, ok := c.store.APIKey(provider); ok {
		return key, true
	}
	var env string
	switch llm.Provider(provider) {
	case llm.ProviderOpenAI:
		env = "OPENAI_API_KEY"
	case llm.ProviderAnthropic:
		env = "ANTHROPIC_API_KEY"
	}
	if env == "" {
		return "", false
	}
	key := os.Getenv(env)
	return key, key != ""
}

// newGateway builds the LLM gateway with configured endpoint overrides.
func newGateway(cfg *config.Config, metrics *telem.Metrics) *llm.Client {
	return &llm.Client{
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		Metrics:          metrics,
	}
}

// initTelemetry initializes OTEL for commands that issue LLM calls.
// Returns a no-op Telemetry when no endpoint is configured.
func initTelemetry(ctx context.Context, cfg *config.Config) *telem.Telemetry {
	telem.Version = Version
	tel, err := telem.Init(ctx, telem.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
		return nil
	}
	return tel
}

// printJSON writes v to stdout, indented.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// resolveVersion picks the version named by key, or the latest version on
// the prompt's current branch when key is empty.
func resolveVersion(p model.Prompt, key string) (model.PromptVersion, error) {
	if key != "" {
		v, ok := p.Version(key)
		if !ok {
			return model.PromptVersion{}, fmt.Errorf("version %q not found in prompt %q", key, p.Name)
		}
		return v, nil
	}
	v, ok := latestCurrent(p)
	if !ok {
		return model.PromptVersion{}, fmt.Errorf("branch %q of prompt %q has no versions", p.CurrentBranch, p.Name)
	}
	return v, nil
}
