// Package model defines the promptbench domain types.
//
// Prompt is the aggregate root: versions, test cases, datasets, and
// experiments all live inside it and are persisted and destroyed with it.
// Mutation happens through the graph package's aggregate functions, which
// take a Prompt value and return a new one. Nothing in this package
// carries behavior beyond construction and lookup helpers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// MainBranch is the seed branch every prompt starts on. It can never be
// deleted, so a prompt always has at least one version to fall back to.
const MainBranch = "main"

// Rating classifies a single output as pass or fail. TestResults rated
// interactively may also be pending.
type Rating string

const (
	RatingPass    Rating = "pass"
	RatingFail    Rating = "fail"
	RatingPending Rating = "pending"
)

// RunStatus is the lifecycle state of an experiment run. A run is mutable
// in place while running and append-only once it reaches a terminal state.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status is completed or failed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Prompt is the aggregate root owning all version history, test cases,
// datasets, and experiments for one named prompt.
type Prompt struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LastAccessed time.Time `json:"last_accessed"`
	// CurrentBranch is the branch the editing workflow is pointed at.
	// Branch identity is an un-normalized string matched by equality.
	CurrentBranch string          `json:"current_branch"`
	Versions      []PromptVersion `json:"versions"`
	TestCases     []TestCase      `json:"test_cases"`
	Datasets      []Dataset       `json:"datasets"`
	Experiments   []Experiment    `json:"experiments"`
}

// Parameters are the sampling parameters stored on a version. No range
// validation happens at this layer; the provider rejects out-of-range values.
type Parameters struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
	TopP        float64 `json:"top_p"`
	Model       string  `json:"model"`
}

// PromptVersion is one commit on a branch: a snapshot of prompt text,
// system message, and sampling parameters.
type PromptVersion struct {
	ID     string `json:"id"`
	Branch string `json:"branch"`
	// Parent is the id of the version this one was branched or merged from.
	// Empty for versions committed directly on their branch; every
	// non-main branch's first version points at a version elsewhere.
	Parent        string       `json:"parent,omitempty"`
	PromptText    string       `json:"prompt"`
	SystemMessage string       `json:"system_message"`
	Parameters    Parameters   `json:"parameters"`
	CommitMessage string       `json:"commit_message"`
	Timestamp     time.Time    `json:"timestamp"`
	TestResults   []TestResult `json:"test_results,omitempty"`
}

// TestResult is an immutable log entry recording one interactive run of a
// version against an ad-hoc input.
type TestResult struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Rating    Rating    `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// TestCase is a reusable input snippet scoped to a prompt.
type TestCase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"`
}

// Dataset is a parsed tabular dataset. Columns define iteration and display
// order; rows need not contain every column (missing cells parse to "").
type Dataset struct {
	ID      string              `json:"id"`
	Name    string              `json:"name"`
	Columns []string            `json:"columns"`
	Data    []map[string]string `json:"data"`
}

// Experiment batch-runs one prompt version against one dataset and scores
// each row with a judge LLM. Dataset, prompt, and version are weak
// references by id; they are resolved when a run starts.
type Experiment struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	DatasetID       string          `json:"dataset_id"`
	PromptID        string          `json:"prompt_id"`
	PromptVersionID string          `json:"prompt_version_id"`
	JudgePrompt     string          `json:"judge_prompt"`
	Runs            []ExperimentRun `json:"runs"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ExperimentRun is one complete sweep of the experiment's dataset.
type ExperimentRun struct {
	ID        string             `json:"id"`
	Results   []ExperimentResult `json:"results"`
	Status    RunStatus          `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// ExperimentResult is the immutable outcome of one dataset row: the
// candidate output, the judge's raw text, and the classified rating.
type ExperimentResult struct {
	ID          string            `json:"id"`
	Input       map[string]string `json:"input"`
	Output      string            `json:"output"`
	JudgeOutput string            `json:"judge_output"`
	Rating      Rating            `json:"rating"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Run returns the run with the given id, or false if absent.
func (e Experiment) Run(id string) (ExperimentRun, bool) {
	for _, r := range e.Runs {
		if r.ID == id {
			return r, true
		}
	}
	return ExperimentRun{}, false
}

// Version returns the version with the given id, or false if absent.
func (p Prompt) Version(id string) (PromptVersion, bool) {
	for _, v := range p.Versions {
		if v.ID == id {
			return v, true
		}
	}
	return PromptVersion{}, false
}

// DatasetByID returns the dataset with the given id, or false if absent.
func (p Prompt) DatasetByID(id string) (Dataset, bool) {
	for _, d := range p.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

// ExperimentByID returns the experiment with the given id, or false if absent.
func (p Prompt) ExperimentByID(id string) (Experiment, bool) {
	for _, e := range p.Experiments {
		if e.ID == id {
			return e, true
		}
	}
	return Experiment{}, false
}

// Branches returns the distinct branch names in first-seen order.
func (p Prompt) Branches() []string {
	seen := make(map[string]bool, 4)
	var out []string
	for _, v := range p.Versions {
		if !seen[v.Branch] {
			seen[v.Branch] = true
			out = append(out, v.Branch)
		}
	}
	return out
}

// NewID returns a fresh entity id.
func NewID() string {
	return uuid.NewString()
}
