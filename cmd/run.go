package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/config"
	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/llm"
	"github.com/timvw/promptbench/internal/model"
	telem "github.com/timvw/promptbench/internal/otel"
)

// telMetrics unwraps the metrics handle, tolerating a nil telemetry.
func telMetrics(tel *telem.Telemetry) *telem.Metrics {
	if tel == nil {
		return nil
	}
	return tel.Metrics
}

var (
	flagRunVersion  string
	flagRunInput    string
	flagRunTestCase string

	flagRateVersion string
	flagRateInput   string
	flagRateOutput  string
)

// runResult is the JSON output of a single-shot run.
type runResult struct {
	VersionID string       `json:"version_id"`
	Branch    string       `json:"branch"`
	Provider  llm.Provider `json:"provider"`
	Model     string       `json:"model"`
	Input     string       `json:"input"`
	Output    string       `json:"output"`
}

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run one version against an ad-hoc input",
	Long: `Send a test input through a prompt version and print the output.

The input is appended to the version's prompt text; the version's system
message and sampling parameters apply. Nothing is recorded on the
version; use "rate" to log the output as a pass/fail test result.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, user, err := openStore(cfg)
		if err != nil {
			return err
		}
		p, err := st.FindPrompt(user, args[0])
		if err != nil {
			return err
		}
		v, err := resolveVersion(p, flagRunVersion)
		if err != nil {
			return err
		}
		input, err := resolveInput(p, flagRunInput, flagRunTestCase)
		if err != nil {
			return err
		}

		tel := initTelemetry(cmd.Context(), cfg)
		if tel != nil {
			defer tel.Shutdown(context.Background())
		}
		output, provider, err := singleShot(cmd.Context(), cfg, credentials{store: st}, v, input, telMetrics(tel))
		if err != nil {
			return err
		}

		return printJSON(runResult{
			VersionID: v.ID,
			Branch:    v.Branch,
			Provider:  provider,
			Model:     v.Parameters.Model,
			Input:     input,
			Output:    output,
		})
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate <prompt> <pass|fail>",
	Short: "Record a test result on a version",
	Long: `Append an input/output pair with a pass or fail rating to a version's
test-result log. The log is append-only.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		rating := model.Rating(args[1])
		if rating != model.RatingPass && rating != model.RatingFail {
			return fmt.Errorf("rating must be pass or fail, got %q", args[1])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, user, err := openStore(cfg)
		if err != nil {
			return err
		}
		p, err := st.FindPrompt(user, args[0])
		if err != nil {
			return err
		}
		v, err := resolveVersion(p, flagRateVersion)
		if err != nil {
			return err
		}

		result := model.TestResult{
			Input:     flagRateInput,
			Output:    flagRateOutput,
			Rating:    rating,
			Timestamp: time.Now().UTC(),
		}
		p = graph.AddTestResult(p, v.ID, result)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(result)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <prompt> <version-a> <version-b>",
	Short: "Run the same input through two versions side by side",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, user, err := openStore(cfg)
		if err != nil {
			return err
		}
		p, err := st.FindPrompt(user, args[0])
		if err != nil {
			return err
		}
		input, err := resolveInput(p, flagRunInput, flagRunTestCase)
		if err != nil {
			return err
		}

		tel := initTelemetry(cmd.Context(), cfg)
		if tel != nil {
			defer tel.Shutdown(context.Background())
		}

		results := make([]runResult, 0, 2)
		for _, key := range args[1:] {
			v, ok := p.Version(key)
			if !ok {
				return fmt.Errorf("version %q not found in prompt %q", key, p.Name)
			}
			output, provider, err := singleShot(cmd.Context(), cfg, credentials{store: st}, v, input, telMetrics(tel))
			if err != nil {
				return err
			}
			results = append(results, runResult{
				VersionID: v.ID,
				Branch:    v.Branch,
				Provider:  provider,
				Model:     v.Parameters.Model,
				Input:     input,
				Output:    output,
			})
		}
		return printJSON(results)
	},
}

// singleShot issues one gateway call for a version and input. A transport
// failure comes back as an error and mutates nothing.
func singleShot(ctx context.Context, cfg *config.Config, creds credentials, v model.PromptVersion, input string, metrics *telem.Metrics) (string, llm.Provider, error) {
	provider := llm.ProviderForModel(v.Parameters.Model)
	apiKey, ok := creds.APIKey(string(provider))
	if !ok {
		return "", provider, fmt.Errorf("no API key configured for %s (set one with: promptbench settings set-key %s <key>)", provider, provider)
	}

	var messages []llm.Message
	if strings.TrimSpace(v.SystemMessage) != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: v.SystemMessage})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: v.PromptText + "\n\n" + input})

	gateway := newGateway(cfg, metrics)
	resp, err := gateway.Complete(ctx, llm.Request{
		Provider:    provider,
		Model:       v.Parameters.Model,
		Messages:    messages,
		Temperature: v.Parameters.Temperature,
		MaxTokens:   v.Parameters.MaxTokens,
		TopP:        v.Parameters.TopP,
		APIKey:      apiKey,
	})
	if err != nil {
		return "", provider, err
	}
	return resp.Content, provider, nil
}

// resolveInput picks the run input: literal flag, or a stored test case.
func resolveInput(p model.Prompt, literal, testCaseKey string) (string, error) {
	if testCaseKey != "" {
		for _, tc := range p.TestCases {
			if tc.ID == testCaseKey || tc.Name == testCaseKey {
				return tc.Input, nil
			}
		}
		return "", fmt.Errorf("test case %q not found in prompt %q", testCaseKey, p.Name)
	}
	if strings.TrimSpace(literal) == "" {
		return "", fmt.Errorf("a test input is required (--input or --test-case)")
	}
	return literal, nil
}

func init() {
	runCmd.Flags().StringVar(&flagRunVersion, "version", "", "version id (default: latest on current branch)")
	runCmd.Flags().StringVar(&flagRunInput, "input", "", "test input text")
	runCmd.Flags().StringVar(&flagRunTestCase, "test-case", "", "use a stored test case as input")
	compareCmd.Flags().StringVar(&flagRunInput, "input", "", "test input text")
	compareCmd.Flags().StringVar(&flagRunTestCase, "test-case", "", "use a stored test case as input")
	rateCmd.Flags().StringVar(&flagRateVersion, "version", "", "version id (default: latest on current branch)")
	rateCmd.Flags().StringVar(&flagRateInput, "input", "", "the input that was run")
	rateCmd.Flags().StringVar(&flagRateOutput, "output", "", "the output being rated")
	rootCmd.AddCommand(runCmd, rateCmd, compareCmd)
}
