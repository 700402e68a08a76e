package graph

import (
	"errors"
	"testing"
	"time"

	"github.com/timvw/promptbench/internal/model"
)

func TestNewPrompt_SeedsMain(t *testing.T) {
	p := NewPrompt("summarizer")

	if p.Name != "summarizer" {
		t.Fatalf("name = %q, want %q", p.Name, "summarizer")
	}
	if p.CurrentBranch != model.MainBranch {
		t.Fatalf("current branch = %q, want main", p.CurrentBranch)
	}
	if len(p.Versions) != 1 {
		t.Fatalf("expected 1 seed version, got %d", len(p.Versions))
	}

	seed := p.Versions[0]
	if seed.Branch != model.MainBranch {
		t.Errorf("seed branch = %q, want main", seed.Branch)
	}
	if seed.CommitMessage != "Initial commit" {
		t.Errorf("seed commit message = %q", seed.CommitMessage)
	}
	if seed.Parent != "" {
		t.Errorf("seed parent = %q, want empty", seed.Parent)
	}
	if seed.Parameters != defaultParameters {
		t.Errorf("seed parameters = %+v, want defaults", seed.Parameters)
	}
}

func TestLatestVersion_PicksNewestTimestamp(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := model.Prompt{
		Versions: []model.PromptVersion{
			{ID: "v1", Branch: "main", Timestamp: base},
			{ID: "v3", Branch: "main", Timestamp: base.Add(2 * time.Hour)},
			{ID: "v2", Branch: "main", Timestamp: base.Add(time.Hour)},
			{ID: "other", Branch: "alt", Timestamp: base.Add(3 * time.Hour)},
		},
	}

	v, ok := LatestVersion(p, "main")
	if !ok {
		t.Fatal("expected a version on main")
	}
	if v.ID != "v3" {
		t.Errorf("latest = %q, want v3", v.ID)
	}

	if _, ok := LatestVersion(p, "missing"); ok {
		t.Error("expected ok=false for a branch with no versions")
	}
}

func TestUpdateVersion_ReplacesById(t *testing.T) {
	p := NewPrompt("p")
	orig := p.Versions[0]

	edited := orig
	edited.PromptText = "Summarize {{text}} in one sentence."
	edited.CommitMessage = "Tighten instructions"
	p2 := UpdateVersion(p, edited)

	got, ok := p2.Version(orig.ID)
	if !ok {
		t.Fatal("version disappeared after update")
	}
	if got.PromptText != edited.PromptText {
		t.Errorf("prompt text = %q", got.PromptText)
	}
	if len(p2.Versions) != 1 {
		t.Errorf("version count = %d, want 1", len(p2.Versions))
	}

	// Unknown id leaves the list unchanged.
	p3 := UpdateVersion(p2, model.PromptVersion{ID: "nope", PromptText: "x"})
	if len(p3.Versions) != 1 || p3.Versions[0].PromptText != edited.PromptText {
		t.Error("update with unknown id changed the version list")
	}
}

func TestCreateBranch_CopiesContentAndSwitches(t *testing.T) {
	p := NewPrompt("p")
	seed := p.Versions[0]
	seed.PromptText = "Classify {{input}}."
	seed.SystemMessage = "You are terse."
	p = UpdateVersion(p, seed)
	seed, _ = p.Version(seed.ID)

	p2, v := CreateBranch(p, seed, "experiment-a", "Try a sharper tone")

	if p2.CurrentBranch != "experiment-a" {
		t.Errorf("current branch = %q, want experiment-a", p2.CurrentBranch)
	}
	if v.Parent != seed.ID {
		t.Errorf("parent = %q, want %q", v.Parent, seed.ID)
	}
	if v.PromptText != seed.PromptText || v.SystemMessage != seed.SystemMessage || v.Parameters != seed.Parameters {
		t.Error("branch head does not copy source content")
	}
	if v.ID == seed.ID {
		t.Error("branch head reused the source version id")
	}
	if len(v.TestResults) != 0 {
		t.Error("branch head inherited test results")
	}

	latest, ok := LatestVersion(p2, "experiment-a")
	if !ok || latest.ID != v.ID {
		t.Errorf("latest on new branch = %+v, want the created version", latest)
	}

	// The input aggregate is untouched.
	if len(p.Versions) != 1 {
		t.Errorf("input prompt mutated: %d versions", len(p.Versions))
	}
}

func TestMergeBranch_FastForwardsContent(t *testing.T) {
	p := NewPrompt("p")
	seed := p.Versions[0]
	p, head := CreateBranch(p, seed, "tuning", "branch off")
	head.PromptText = "Respond with JSON only."
	p = UpdateVersion(p, head)

	p2, merged, err := MergeBranch(p, "tuning", model.MainBranch, "adopt JSON output")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Branch != model.MainBranch {
		t.Errorf("merged branch = %q, want main", merged.Branch)
	}
	if merged.PromptText != "Respond with JSON only." {
		t.Errorf("merged text = %q", merged.PromptText)
	}
	if merged.Parent != head.ID {
		t.Errorf("merged parent = %q, want %q", merged.Parent, head.ID)
	}
	want := "Merge tuning into main: adopt JSON output"
	if merged.CommitMessage != want {
		t.Errorf("commit message = %q, want %q", merged.CommitMessage, want)
	}
	if p2.CurrentBranch != model.MainBranch {
		t.Errorf("current branch = %q, want main", p2.CurrentBranch)
	}
	if len(p2.Versions) != len(p.Versions)+1 {
		t.Errorf("version count = %d, want %d", len(p2.Versions), len(p.Versions)+1)
	}
}

func TestMergeBranch_EmptySource(t *testing.T) {
	p := NewPrompt("p")

	p2, _, err := MergeBranch(p, "ghost", model.MainBranch, "m")

	var emptyErr *ErrEmptyBranch
	if !errors.As(err, &emptyErr) {
		t.Fatalf("err = %v, want *ErrEmptyBranch", err)
	}
	if emptyErr.Branch != "ghost" {
		t.Errorf("err branch = %q, want ghost", emptyErr.Branch)
	}
	if len(p2.Versions) != len(p.Versions) || p2.CurrentBranch != p.CurrentBranch {
		t.Error("failed merge changed the prompt")
	}
}

func TestDeleteBranch(t *testing.T) {
	p := NewPrompt("p")
	p, _ = CreateBranch(p, p.Versions[0], "scratch", "try")

	t.Run("main is a no-op", func(t *testing.T) {
		p2 := DeleteBranch(p, model.MainBranch)
		if len(p2.Versions) != len(p.Versions) {
			t.Errorf("version count = %d, want %d", len(p2.Versions), len(p.Versions))
		}
	})

	t.Run("deleting current resets to main", func(t *testing.T) {
		if p.CurrentBranch != "scratch" {
			t.Fatalf("precondition: current = %q", p.CurrentBranch)
		}
		p2 := DeleteBranch(p, "scratch")
		if p2.CurrentBranch != model.MainBranch {
			t.Errorf("current branch = %q, want main", p2.CurrentBranch)
		}
		for _, v := range p2.Versions {
			if v.Branch == "scratch" {
				t.Errorf("version %s survived branch deletion", v.ID)
			}
		}
		if _, ok := LatestVersion(p2, model.MainBranch); !ok {
			t.Error("main has no versions after deleting another branch")
		}
	})

	t.Run("deleting another branch keeps current", func(t *testing.T) {
		p2, _ := CreateBranch(p, p.Versions[0], "keepme", "branch")
		p3 := DeleteBranch(p2, "scratch")
		if p3.CurrentBranch != "keepme" {
			t.Errorf("current branch = %q, want keepme", p3.CurrentBranch)
		}
	})
}

func TestAddTestResult_AppendOnly(t *testing.T) {
	p := NewPrompt("p")
	vID := p.Versions[0].ID

	first := model.TestResult{Input: "a", Output: "b", Rating: model.RatingPass, Timestamp: time.Now().UTC()}
	second := model.TestResult{Input: "c", Output: "d", Rating: model.RatingFail, Timestamp: time.Now().UTC()}
	p = AddTestResult(p, vID, first)
	p = AddTestResult(p, vID, second)

	v, _ := p.Version(vID)
	if len(v.TestResults) != 2 {
		t.Fatalf("result count = %d, want 2", len(v.TestResults))
	}
	if v.TestResults[0].Input != "a" || v.TestResults[1].Input != "c" {
		t.Error("results out of order")
	}

	// Unknown version id is a no-op.
	p2 := AddTestResult(p, "nope", first)
	v2, _ := p2.Version(vID)
	if len(v2.TestResults) != 2 {
		t.Error("result appended to unknown version id")
	}
}

func TestTestCaseLifecycle(t *testing.T) {
	p := NewPrompt("p")
	p, tc := AddTestCase(p, "short article", "The quick brown fox.")

	if tc.ID == "" {
		t.Fatal("test case got no id")
	}

	tc.Input = "A longer article body."
	p = UpdateTestCase(p, tc)
	if p.TestCases[0].Input != "A longer article body." {
		t.Errorf("input = %q after update", p.TestCases[0].Input)
	}

	p = DeleteTestCase(p, tc.ID)
	if len(p.TestCases) != 0 {
		t.Errorf("test case count = %d after delete", len(p.TestCases))
	}
}

func TestDeleteDataset_LeavesExperimentReference(t *testing.T) {
	p := NewPrompt("p")
	ds := model.Dataset{ID: model.NewID(), Name: "articles", Columns: []string{"text"}}
	p = AddDataset(p, ds)
	exp := model.Experiment{ID: model.NewID(), Name: "e", DatasetID: ds.ID, PromptVersionID: p.Versions[0].ID, JudgePrompt: "judge"}
	p = AddExperiment(p, exp)

	p = DeleteDataset(p, ds.ID)

	if len(p.Datasets) != 0 {
		t.Fatalf("dataset count = %d after delete", len(p.Datasets))
	}
	got, ok := p.ExperimentByID(exp.ID)
	if !ok {
		t.Fatal("experiment removed alongside its dataset")
	}
	if got.DatasetID != ds.ID {
		t.Errorf("experiment dataset id rewritten to %q", got.DatasetID)
	}
}

func TestUpdateExperiment_PreservesRuns(t *testing.T) {
	p := NewPrompt("p")
	exp := model.Experiment{
		ID:   model.NewID(),
		Name: "e",
		Runs: []model.ExperimentRun{{ID: "r1", Status: model.RunCompleted}},
	}
	p = AddExperiment(p, exp)

	exp.Name = "renamed"
	p = UpdateExperiment(p, exp)

	got, _ := p.ExperimentByID(exp.ID)
	if got.Name != "renamed" {
		t.Errorf("name = %q", got.Name)
	}
	if len(got.Runs) != 1 || got.Runs[0].ID != "r1" {
		t.Error("runs changed by a config update")
	}
}
