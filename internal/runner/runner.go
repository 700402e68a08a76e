// Package runner executes experiments: one prompt version swept across one
// dataset, each row scored pass/fail by a judge LLM.
//
// Execution is strictly sequential, one row at a time in dataset order,
// so LLM call ordering and result ordering are deterministic. A row's
// transport failure is recorded as a failing result and never aborts the
// run; only a failure outside the per-row boundary (context cancellation,
// a persist error) marks the run failed, keeping partial results in place.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/llm"
	"github.com/timvw/promptbench/internal/model"
	telem "github.com/timvw/promptbench/internal/otel"
	"github.com/timvw/promptbench/internal/template"
)

// DefaultRowDelay is the pause after each successful row. It exists to keep
// live progress observable by a watcher, not for correctness.
const DefaultRowDelay = 500 * time.Millisecond

// Judge calls use fixed low-variance sampling regardless of the version's
// own parameters.
const (
	judgeTemperature = 0.1
	judgeMaxTokens   = 100
	judgeTopP        = 1
)

var tracer = otel.Tracer("promptbench/runner")

// ConfigError is a precondition failure detected before any side effect:
// a dangling dataset/version reference, a blank judge prompt, or a missing
// credential. Nothing has been mutated when one is returned.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return e.Reason
}

// RunError is a failure outside the per-row boundary. The run it names has
// been marked failed and its partial results retained.
type RunError struct {
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s failed: %v", e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// CredentialSource supplies provider credentials. It is consulted fresh
// before every LLM call, so a credential change mid-run takes effect on
// the next call.
type CredentialSource interface {
	APIKey(provider string) (string, bool)
}

// Runner drives experiment runs. Persist is called with the updated
// aggregate after every row so a watching UI sees progress before the run
// finishes; OnRow (optional) is notified synchronously with the updated
// run at the same points.
type Runner struct {
	Gateway     llm.Gateway
	Credentials CredentialSource
	Persist     func(model.Prompt) error
	OnRow       func(model.Experiment, model.ExperimentRun)
	// RowDelay is the inter-row pause after successful rows. Zero disables
	// it; use DefaultRowDelay for interactive consumption.
	RowDelay time.Duration
	Metrics  *telem.Metrics
}

// Run executes the experiment with the given id against its configured
// dataset and prompt version, appending one new run to the experiment.
// Rerunning is the same operation: prior runs accumulate unmodified.
//
// The returned prompt is the aggregate after the run's terminal state was
// persisted. Cancellation via ctx is checked before each row and treated
// as a run-level failure (status failed, partial results kept).
func (r *Runner) Run(ctx context.Context, p model.Prompt, experimentID string) (model.Prompt, model.ExperimentRun, error) {
	exp, ok := p.ExperimentByID(experimentID)
	if !ok {
		return p, model.ExperimentRun{}, &ConfigError{Reason: fmt.Sprintf("experiment %q not found", experimentID)}
	}
	ds, ok := p.DatasetByID(exp.DatasetID)
	if !ok {
		return p, model.ExperimentRun{}, &ConfigError{Reason: fmt.Sprintf("dataset %q not found", exp.DatasetID)}
	}
	version, ok := p.Version(exp.PromptVersionID)
	if !ok {
		return p, model.ExperimentRun{}, &ConfigError{Reason: fmt.Sprintf("prompt version %q not found", exp.PromptVersionID)}
	}
	if strings.TrimSpace(exp.JudgePrompt) == "" {
		return p, model.ExperimentRun{}, &ConfigError{Reason: "judge prompt is blank"}
	}
	provider := llm.ProviderForModel(version.Parameters.Model)
	if _, ok := r.Credentials.APIKey(string(provider)); !ok {
		return p, model.ExperimentRun{}, &ConfigError{Reason: fmt.Sprintf("no API key configured for %s", provider)}
	}

	ctx, span := tracer.Start(ctx, "experiment_run",
		trace.WithAttributes(
			attribute.String("experiment.id", exp.ID),
			attribute.String("experiment.name", exp.Name),
			attribute.String("prompt.version", version.ID),
			attribute.String("llm.provider", string(provider)),
			attribute.String("llm.model", version.Parameters.Model),
			attribute.Int("dataset.rows", len(ds.Data)),
		))
	defer span.End()

	now := time.Now().UTC()
	run := model.ExperimentRun{
		ID:        model.NewID(),
		Status:    model.RunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Persist the running state immediately so a watcher sees the run
	// appear before any row completes.
	exp.Runs = append(append([]model.ExperimentRun{}, exp.Runs...), run)
	exp.UpdatedAt = now
	p = graph.UpdateExperiment(p, exp)
	if err := r.persist(p); err != nil {
		// The run exists in the returned aggregate but never reached disk;
		// mark it failed so the caller sees a classified run-level error.
		run.Status = model.RunFailed
		run.UpdatedAt = time.Now().UTC()
		p = r.storeRun(p, exp.ID, run)
		return p, run, &RunError{RunID: run.ID, Err: err}
	}
	r.notify(exp, run)

	p, run, err := r.rowLoop(ctx, p, exp, ds, version, provider, run)
	if err != nil {
		// Escaped the per-row boundary: record the terminal failure.
		run.Status = model.RunFailed
		run.UpdatedAt = time.Now().UTC()
		p = r.storeRun(p, exp.ID, run)
		if perr := r.persist(p); perr != nil {
			err = fmt.Errorf("%w (additionally failed to persist: %v)", err, perr)
		}
		r.Metrics.RecordRun(ctx, string(model.RunFailed))
		return p, run, &RunError{RunID: run.ID, Err: err}
	}

	run.Status = model.RunCompleted
	run.UpdatedAt = time.Now().UTC()
	p = r.storeRun(p, exp.ID, run)
	if err := r.persist(p); err != nil {
		return p, run, &RunError{RunID: run.ID, Err: err}
	}
	r.Metrics.RecordRun(ctx, string(model.RunCompleted))
	span.SetAttributes(attribute.Int("run.results", len(run.Results)))
	return p, run, nil
}

// rowLoop sweeps the dataset one row at a time, persisting and notifying
// after each row. Errors it returns are run-level; per-row failures are
// absorbed into failing results.
func (r *Runner) rowLoop(ctx context.Context, p model.Prompt, exp model.Experiment, ds model.Dataset, version model.PromptVersion, provider llm.Provider, run model.ExperimentRun) (model.Prompt, model.ExperimentRun, error) {
	var results []model.ExperimentResult
	for _, row := range ds.Data {
		if err := ctx.Err(); err != nil {
			return p, run, err
		}

		result, rowErr := r.scoreRow(ctx, exp, version, provider, row)
		r.Metrics.RecordRow(ctx, string(result.Rating))

		// Immutable update: fresh result slice and run value every row, so
		// a snapshot handed to an observer is never mutated behind it.
		results = append(append([]model.ExperimentResult{}, results...), result)
		run.Results = results
		run.UpdatedAt = time.Now().UTC()
		p = r.storeRun(p, exp.ID, run)
		if err := r.persist(p); err != nil {
			return p, run, err
		}
		r.notify(exp, run)

		if rowErr == nil && r.RowDelay > 0 {
			select {
			case <-time.After(r.RowDelay):
			case <-ctx.Done():
				return p, run, ctx.Err()
			}
		}
	}
	return p, run, nil
}

// scoreRow interpolates the prompt for one row, produces the candidate
// output, and has the judge score it. Any failure is returned alongside a
// synthesized failing result; the caller keeps going either way.
func (r *Runner) scoreRow(ctx context.Context, exp model.Experiment, version model.PromptVersion, provider llm.Provider, row map[string]string) (model.ExperimentResult, error) {
	fail := func(err error) (model.ExperimentResult, error) {
		return model.ExperimentResult{
			ID:          model.NewID(),
			Input:       row,
			Output:      fmt.Sprintf("Error: %v", err),
			JudgeOutput: fmt.Sprintf("Processing failed: %v", err),
			Rating:      model.RatingFail,
			Timestamp:   time.Now().UTC(),
		}, err
	}

	// Credential is read fresh per row, not cached across the run.
	apiKey, ok := r.Credentials.APIKey(string(provider))
	if !ok {
		return fail(fmt.Errorf("no API key configured for %s", provider))
	}

	candidate := template.Interpolate(version.PromptText, row)
	var messages []llm.Message
	if strings.TrimSpace(version.SystemMessage) != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: version.SystemMessage})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: candidate})

	resp, err := r.Gateway.Complete(ctx, llm.Request{
		Provider:    provider,
		Model:       version.Parameters.Model,
		Messages:    messages,
		Temperature: version.Parameters.Temperature,
		MaxTokens:   version.Parameters.MaxTokens,
		TopP:        version.Parameters.TopP,
		APIKey:      apiKey,
	})
	if err != nil {
		return fail(err)
	}
	output := resp.Content

	apiKey, ok = r.Credentials.APIKey(string(provider))
	if !ok {
		return fail(fmt.Errorf("no API key configured for %s", provider))
	}

	judgeResp, err := r.Gateway.Complete(ctx, llm.Request{
		Provider:    provider,
		Model:       version.Parameters.Model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: judgeMessage(exp.JudgePrompt, row, output)}},
		Temperature: judgeTemperature,
		MaxTokens:   judgeMaxTokens,
		TopP:        judgeTopP,
		APIKey:      apiKey,
	})
	if err != nil {
		return fail(err)
	}

	return model.ExperimentResult{
		ID:          model.NewID(),
		Input:       row,
		Output:      output,
		JudgeOutput: judgeResp.Content,
		Rating:      Classify(judgeResp.Content),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// judgeMessage embeds the interpolated judge instructions, the serialized
// row, and the candidate output into one user message.
func judgeMessage(judgePrompt string, row map[string]string, output string) string {
	instructions := template.Interpolate(judgePrompt, row)
	rowJSON, err := json.Marshal(row)
	if err != nil {
		rowJSON = []byte("{}")
	}
	return fmt.Sprintf("%s\n\nInput: %s\n\nOutput: %s", instructions, rowJSON, output)
}

// Classify maps the judge's raw text to a rating: pass when the lower-cased
// text contains "pass", "true", or "yes"; fail otherwise.
func Classify(judgeOutput string) model.Rating {
	lower := strings.ToLower(judgeOutput)
	if strings.Contains(lower, "pass") || strings.Contains(lower, "true") || strings.Contains(lower, "yes") {
		return model.RatingPass
	}
	return model.RatingFail
}

// storeRun writes run back into its experiment within the aggregate.
func (r *Runner) storeRun(p model.Prompt, experimentID string, run model.ExperimentRun) model.Prompt {
	exp, ok := p.ExperimentByID(experimentID)
	if !ok {
		return p
	}
	runs := make([]model.ExperimentRun, len(exp.Runs))
	for i, existing := range exp.Runs {
		if existing.ID == run.ID {
			runs[i] = run
		} else {
			runs[i] = existing
		}
	}
	exp.Runs = runs
	exp.UpdatedAt = time.Now().UTC()
	return graph.UpdateExperiment(p, exp)
}

func (r *Runner) persist(p model.Prompt) error {
	if r.Persist == nil {
		return nil
	}
	if err := r.Persist(p); err != nil {
		return fmt.Errorf("persist prompt %s: %w", p.ID, err)
	}
	return nil
}

func (r *Runner) notify(exp model.Experiment, run model.ExperimentRun) {
	if r.OnRow != nil {
		r.OnRow(exp, run)
	}
}
