package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/llm"
	"github.com/timvw/promptbench/internal/model"
)

// fakeGateway scripts responses per call. Odd calls in a row are the
// candidate completion, even calls the judge verdict.
type fakeGateway struct {
	mu       sync.Mutex
	requests []llm.Request
	respond  func(call int, req llm.Request) (*llm.Response, error)
}

func (g *fakeGateway) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	call := len(g.requests)
	g.mu.Unlock()
	return g.respond(call, req)
}

type fixedCredentials map[string]string

func (c fixedCredentials) APIKey(provider string) (string, bool) {
	key, ok := c[provider]
	return key, ok
}

// testPrompt builds a prompt with a 3-row dataset and one experiment
// bound to the seed version.
func testPrompt(t *testing.T) (model.Prompt, string) {
	t.Helper()
	p := graph.NewPrompt("classifier")
	seed := p.Versions[0]
	seed.PromptText = "Classify: {{text}}"
	p = graph.UpdateVersion(p, seed)

	ds := model.Dataset{
		ID:      model.NewID(),
		Name:    "samples",
		Columns: []string{"text"},
		Data: []map[string]string{
			{"text": "row one"},
			{"text": "row two"},
			{"text": "row three"},
		},
	}
	p = graph.AddDataset(p, ds)

	exp := model.Experiment{
		ID:              model.NewID(),
		Name:            "accuracy",
		DatasetID:       ds.ID,
		PromptID:        p.ID,
		PromptVersionID: seed.ID,
		JudgePrompt:     "Is the classification of {{text}} correct?",
		CreatedAt:       time.Now().UTC(),
		UpdatedAt:       time.Now().UTC(),
	}
	p = graph.AddExperiment(p, exp)
	return p, exp.ID
}

func passJudge(call int, req llm.Request) (*llm.Response, error) {
	if call%2 == 1 {
		return &llm.Response{Content: fmt.Sprintf("candidate %d", (call+1)/2)}, nil
	}
	return &llm.Response{Content: "PASS"}, nil
}

func TestRun_SweepsRowsInOrder(t *testing.T) {
	p, expID := testPrompt(t)
	gw := &fakeGateway{respond: passJudge}
	r := &Runner{Gateway: gw, Credentials: fixedCredentials{"openai": "sk-test"}}

	p2, run, err := r.Run(context.Background(), p, expID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != model.RunCompleted {
		t.Fatalf("status = %q, want completed", run.Status)
	}
	if len(run.Results) != 3 {
		t.Fatalf("result count = %d, want 3", len(run.Results))
	}
	for i, res := range run.Results {
		wantInput := fmt.Sprintf("row %s", []string{"one", "two", "three"}[i])
		if res.Input["text"] != wantInput {
			t.Errorf("result %d input = %q, want %q", i, res.Input["text"], wantInput)
		}
		if res.Rating != model.RatingPass {
			t.Errorf("result %d rating = %q", i, res.Rating)
		}
	}

	// Two calls per row, candidate before judge, rows in dataset order.
	if len(gw.requests) != 6 {
		t.Fatalf("gateway calls = %d, want 6", len(gw.requests))
	}
	if got := gw.requests[0].Messages[0].Content; got != "Classify: row one" {
		t.Errorf("first candidate message = %q", got)
	}
	judge := gw.requests[1]
	if judge.Temperature != judgeTemperature || judge.MaxTokens != judgeMaxTokens || judge.TopP != judgeTopP {
		t.Errorf("judge sampling = %v/%v/%v", judge.Temperature, judge.MaxTokens, judge.TopP)
	}
	if !strings.Contains(judge.Messages[0].Content, "row one") {
		t.Errorf("judge message missing row: %q", judge.Messages[0].Content)
	}
	if !strings.Contains(judge.Messages[0].Content, "candidate 1") {
		t.Errorf("judge message missing candidate output: %q", judge.Messages[0].Content)
	}

	exp, _ := p2.ExperimentByID(expID)
	if len(exp.Runs) != 1 || exp.Runs[0].ID != run.ID {
		t.Fatalf("run not stored on experiment: %+v", exp.Runs)
	}
}

func TestRun_RowFailureDoesNotAbort(t *testing.T) {
	p, expID := testPrompt(t)
	gw := &fakeGateway{respond: func(call int, req llm.Request) (*llm.Response, error) {
		// Row two's candidate call (third call overall) fails.
		if call == 3 {
			return nil, &llm.TransportError{Provider: req.Provider, Message: "rate limited"}
		}
		if call > 3 {
			// Row two's judge call never happens, so realign the
			// candidate/judge parity for the remaining rows.
			call++
		}
		return passJudge(call, req)
	}}
	r := &Runner{Gateway: gw, Credentials: fixedCredentials{"openai": "sk-test"}}

	_, run, err := r.Run(context.Background(), p, expID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != model.RunCompleted {
		t.Fatalf("status = %q, want completed despite a row failure", run.Status)
	}
	if len(run.Results) != 3 {
		t.Fatalf("result count = %d, want 3", len(run.Results))
	}

	bad := run.Results[1]
	if bad.Rating != model.RatingFail {
		t.Errorf("failed row rating = %q", bad.Rating)
	}
	if !strings.HasPrefix(bad.Output, "Error: ") {
		t.Errorf("failed row output = %q", bad.Output)
	}
	if !strings.HasPrefix(bad.JudgeOutput, "Processing failed: ") {
		t.Errorf("failed row judge output = %q", bad.JudgeOutput)
	}
	if run.Results[2].Rating != model.RatingPass {
		t.Errorf("row after failure rating = %q", run.Results[2].Rating)
	}
}

func TestRun_RerunAppends(t *testing.T) {
	p, expID := testPrompt(t)
	gw := &fakeGateway{respond: passJudge}
	r := &Runner{Gateway: gw, Credentials: fixedCredentials{"openai": "sk-test"}}

	p, first, err := r.Run(context.Background(), p, expID)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	p, second, err := r.Run(context.Background(), p, expID)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("rerun reused the run id")
	}

	exp, _ := p.ExperimentByID(expID)
	if len(exp.Runs) != 2 {
		t.Fatalf("run count = %d, want 2", len(exp.Runs))
	}
	if exp.Runs[0].ID != first.ID || len(exp.Runs[0].Results) != 3 {
		t.Error("rerun altered the first run")
	}
}

func TestRun_Preconditions(t *testing.T) {
	p, expID := testPrompt(t)

	tests := []struct {
		name   string
		mutate func(model.Prompt) (model.Prompt, string)
		creds  fixedCredentials
	}{
		{
			name:   "unknown experiment",
			mutate: func(p model.Prompt) (model.Prompt, string) { return p, "nope" },
			creds:  fixedCredentials{"openai": "k"},
		},
		{
			name: "dangling dataset",
			mutate: func(p model.Prompt) (model.Prompt, string) {
				return graph.DeleteDataset(p, p.Experiments[0].DatasetID), expID
			},
			creds: fixedCredentials{"openai": "k"},
		},
		{
			name: "dangling version",
			mutate: func(p model.Prompt) (model.Prompt, string) {
				exp := p.Experiments[0]
				exp.PromptVersionID = "gone"
				return graph.UpdateExperiment(p, exp), expID
			},
			creds: fixedCredentials{"openai": "k"},
		},
		{
			name: "blank judge prompt",
			mutate: func(p model.Prompt) (model.Prompt, string) {
				exp := p.Experiments[0]
				exp.JudgePrompt = "   "
				return graph.UpdateExperiment(p, exp), expID
			},
			creds: fixedCredentials{"openai": "k"},
		},
		{
			name:   "missing credential",
			mutate: func(p model.Prompt) (model.Prompt, string) { return p, expID },
			creds:  fixedCredentials{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{respond: passJudge}
			r := &Runner{Gateway: gw, Credentials: tt.creds}
			mutated, id := tt.mutate(p)

			got, _, err := r.Run(context.Background(), mutated, id)

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *ConfigError", err)
			}
			if len(gw.requests) != 0 {
				t.Errorf("gateway called %d times before precondition failure", len(gw.requests))
			}
			exp, ok := got.ExperimentByID(expID)
			if ok && len(exp.Runs) != 0 {
				t.Error("a run was recorded despite the precondition failure")
			}
		})
	}
}

func TestRun_CancellationFailsRun(t *testing.T) {
	p, expID := testPrompt(t)
	ctx, cancel := context.WithCancel(context.Background())

	gw := &fakeGateway{}
	gw.respond = func(call int, req llm.Request) (*llm.Response, error) {
		// Cancel mid-run, after row one is fully scored.
		if call == 2 {
			cancel()
		}
		return passJudge(call, req)
	}
	r := &Runner{Gateway: gw, Credentials: fixedCredentials{"openai": "sk-test"}}

	p2, run, err := r.Run(ctx, p, expID)

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("err = %v, want *RunError", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
	if run.Status != model.RunFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if len(run.Results) != 1 {
		t.Errorf("result count = %d, want the partial row kept", len(run.Results))
	}

	exp, _ := p2.ExperimentByID(expID)
	stored, ok := exp.Run(run.ID)
	if !ok || stored.Status != model.RunFailed {
		t.Error("failed run not persisted on the experiment")
	}
}

func TestRun_InitialPersistFailure(t *testing.T) {
	p, expID := testPrompt(t)
	gw := &fakeGateway{respond: passJudge}
	r := &Runner{
		Gateway:     gw,
		Credentials: fixedCredentials{"openai": "sk-test"},
		Persist: func(model.Prompt) error {
			return errors.New("disk full")
		},
	}

	p2, run, err := r.Run(context.Background(), p, expID)

	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("err = %v, want *RunError", err)
	}
	if runErr.RunID != run.ID {
		t.Errorf("run id in error = %q, want %q", runErr.RunID, run.ID)
	}
	if run.Status != model.RunFailed {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if len(gw.requests) != 0 {
		t.Errorf("gateway called %d times after a failed initial persist", len(gw.requests))
	}
	stored, ok := p2.ExperimentByID(expID)
	if !ok {
		t.Fatal("experiment missing from returned aggregate")
	}
	got, ok := stored.Run(run.ID)
	if !ok || got.Status != model.RunFailed {
		t.Error("failed run not reflected in the returned aggregate")
	}
}

func TestRun_PersistCalledPerRow(t *testing.T) {
	p, expID := testPrompt(t)
	gw := &fakeGateway{respond: passJudge}

	var persisted []int
	r := &Runner{
		Gateway:     gw,
		Credentials: fixedCredentials{"openai": "sk-test"},
		Persist: func(p model.Prompt) error {
			exp, _ := p.ExperimentByID(expID)
			run := exp.Runs[len(exp.Runs)-1]
			persisted = append(persisted, len(run.Results))
			return nil
		},
	}

	if _, _, err := r.Run(context.Background(), p, expID); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Running state, one persist per row, terminal state.
	want := []int{0, 1, 2, 3, 3}
	if len(persisted) != len(want) {
		t.Fatalf("persist calls = %v, want %v", persisted, want)
	}
	for i := range want {
		if persisted[i] != want[i] {
			t.Fatalf("persist calls = %v, want %v", persisted, want)
		}
	}
}

func TestRun_SystemMessageIncluded(t *testing.T) {
	p, expID := testPrompt(t)
	v := p.Versions[0]
	v.SystemMessage = "You are a strict classifier."
	p = graph.UpdateVersion(p, v)

	gw := &fakeGateway{respond: passJudge}
	r := &Runner{Gateway: gw, Credentials: fixedCredentials{"openai": "sk-test"}}
	if _, _, err := r.Run(context.Background(), p, expID); err != nil {
		t.Fatalf("run: %v", err)
	}

	candidate := gw.requests[0]
	if len(candidate.Messages) != 2 || candidate.Messages[0].Role != llm.RoleSystem {
		t.Fatalf("candidate messages = %+v, want system then user", candidate.Messages)
	}
	// The judge call never inherits the version's system message.
	judge := gw.requests[1]
	if len(judge.Messages) != 1 || judge.Messages[0].Role != llm.RoleUser {
		t.Fatalf("judge messages = %+v, want a single user message", judge.Messages)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		in   string
		want model.Rating
	}{
		{"PASS", model.RatingPass},
		{"pass", model.RatingPass},
		{"The answer passes the check.", model.RatingPass},
		{"true", model.RatingPass},
		{"Yes, correct.", model.RatingPass},
		{"FAIL", model.RatingFail},
		{"incorrect", model.RatingFail},
		{"", model.RatingFail},
		{"no", model.RatingFail},
	}
	for _, tt := range tests {
		if got := Classify(tt.in); got != tt.want {
			t.Errorf("Classify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
