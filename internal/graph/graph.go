// Package graph implements the version history of a prompt as branches of
// linear commit lists.
//
// Every operation takes a Prompt value and returns a new one; input
// aggregates are never mutated. Persistence is the caller's job, performed
// after a successful mutation, so a failed operation can never leave a
// half-written aggregate behind.
package graph

import (
	"fmt"
	"time"

	"github.com/timvw/promptbench/internal/model"
)

// Default sampling parameters for a freshly created prompt.
var defaultParameters = model.Parameters{
	Temperature: 0.7,
	MaxTokens:   1000,
	TopP:        1,
	Model:       "gpt-4o",
}

// ErrEmptyBranch is returned by MergeBranch when the source branch has no
// versions to merge from.
type ErrEmptyBranch struct {
	Branch string
}

func (e *ErrEmptyBranch) Error() string {
	return fmt.Sprintf("branch %q has no versions", e.Branch)
}

// NewPrompt constructs a prompt with a single version on main.
func NewPrompt(name string) model.Prompt {
	now := time.Now().UTC()
	return model.Prompt{
		ID:            model.NewID(),
		Name:          name,
		LastAccessed:  now,
		CurrentBranch: model.MainBranch,
		Versions: []model.PromptVersion{
			{
				ID:            model.NewID(),
				Branch:        model.MainBranch,
				Parameters:    defaultParameters,
				CommitMessage: "Initial commit",
				Timestamp:     now,
			},
		},
	}
}

// LatestVersion returns the version on branch with the newest timestamp.
// ok is false when the branch has no versions; callers must handle it.
func LatestVersion(p model.Prompt, branch string) (model.PromptVersion, bool) {
	var latest model.PromptVersion
	found := false
	for _, v := range p.Versions {
		if v.Branch != branch {
			continue
		}
		if !found || v.Timestamp.After(latest.Timestamp) {
			latest = v
			found = true
		}
	}
	return latest, found
}

// UpdateVersion replaces the version with a matching id and bumps
// LastAccessed. Unknown ids leave the version list unchanged. Parameter
// ranges are not validated here; the provider rejects bad values.
func UpdateVersion(p model.Prompt, v model.PromptVersion) model.Prompt {
	versions := make([]model.PromptVersion, len(p.Versions))
	for i, existing := range p.Versions {
		if existing.ID == v.ID {
			versions[i] = v
		} else {
			versions[i] = existing
		}
	}
	p.Versions = versions
	p.LastAccessed = time.Now().UTC()
	return p
}

// CreateBranch commits a copy of fromVersion's content onto branchName and
// points CurrentBranch at it. The new version gets a fresh id and timestamp,
// parent = fromVersion.ID, and no test results.
//
// branchName is not checked for uniqueness: committing onto an existing
// branch appends another version to it, which is how iterative commits
// within a branch work.
func CreateBranch(p model.Prompt, fromVersion model.PromptVersion, branchName, commitMessage string) (model.Prompt, model.PromptVersion) {
	v := model.PromptVersion{
		ID:            model.NewID(),
		Branch:        branchName,
		Parent:        fromVersion.ID,
		PromptText:    fromVersion.PromptText,
		SystemMessage: fromVersion.SystemMessage,
		Parameters:    fromVersion.Parameters,
		CommitMessage: commitMessage,
		Timestamp:     time.Now().UTC(),
	}
	p.Versions = append(append([]model.PromptVersion{}, p.Versions...), v)
	p.CurrentBranch = branchName
	p.LastAccessed = time.Now().UTC()
	return p, v
}

// MergeBranch copies the latest version of fromBranch onto toBranch. This
// is a fast-forward content copy: no diffing, no conflict detection. The
// merged version's parent is the source version's id and its commit message
// is prefixed "Merge <from> into <to>: ".
//
// Merging from a branch with zero versions returns *ErrEmptyBranch and the
// prompt unchanged.
func MergeBranch(p model.Prompt, fromBranch, toBranch, commitMessage string) (model.Prompt, model.PromptVersion, error) {
	src, ok := LatestVersion(p, fromBranch)
	if !ok {
		return p, model.PromptVersion{}, &ErrEmptyBranch{Branch: fromBranch}
	}
	v := model.PromptVersion{
		ID:            model.NewID(),
		Branch:        toBranch,
		Parent:        src.ID,
		PromptText:    src.PromptText,
		SystemMessage: src.SystemMessage,
		Parameters:    src.Parameters,
		CommitMessage: fmt.Sprintf("Merge %s into %s: %s", fromBranch, toBranch, commitMessage),
		Timestamp:     time.Now().UTC(),
	}
	p.Versions = append(append([]model.PromptVersion{}, p.Versions...), v)
	p.CurrentBranch = toBranch
	p.LastAccessed = time.Now().UTC()
	return p, v, nil
}

// DeleteBranch removes every version on branchName. Deleting main is a
// no-op. When the deleted branch was current, CurrentBranch resets to main;
// main is seeded at creation and never deletable, so the fallback always
// has at least one version.
func DeleteBranch(p model.Prompt, branchName string) model.Prompt {
	if branchName == model.MainBranch {
		return p
	}
	versions := make([]model.PromptVersion, 0, len(p.Versions))
	for _, v := range p.Versions {
		if v.Branch != branchName {
			versions = append(versions, v)
		}
	}
	p.Versions = versions
	if p.CurrentBranch == branchName {
		p.CurrentBranch = model.MainBranch
	}
	p.LastAccessed = time.Now().UTC()
	return p
}

// AddTestResult appends an immutable result entry to the version with the
// given id.
func AddTestResult(p model.Prompt, versionID string, result model.TestResult) model.Prompt {
	v, ok := p.Version(versionID)
	if !ok {
		return p
	}
	v.TestResults = append(append([]model.TestResult{}, v.TestResults...), result)
	return UpdateVersion(p, v)
}

// AddTestCase appends a test case with a fresh id.
func AddTestCase(p model.Prompt, name, input string) (model.Prompt, model.TestCase) {
	tc := model.TestCase{ID: model.NewID(), Name: name, Input: input}
	p.TestCases = append(append([]model.TestCase{}, p.TestCases...), tc)
	p.LastAccessed = time.Now().UTC()
	return p, tc
}

// UpdateTestCase replaces the test case with a matching id.
func UpdateTestCase(p model.Prompt, tc model.TestCase) model.Prompt {
	cases := make([]model.TestCase, len(p.TestCases))
	for i, existing := range p.TestCases {
		if existing.ID == tc.ID {
			cases[i] = tc
		} else {
			cases[i] = existing
		}
	}
	p.TestCases = cases
	p.LastAccessed = time.Now().UTC()
	return p
}

// DeleteTestCase removes the test case with the given id.
func DeleteTestCase(p model.Prompt, id string) model.Prompt {
	cases := make([]model.TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if tc.ID != id {
			cases = append(cases, tc)
		}
	}
	p.TestCases = cases
	p.LastAccessed = time.Now().UTC()
	return p
}

// AddDataset attaches a dataset to the prompt.
func AddDataset(p model.Prompt, d model.Dataset) model.Prompt {
	p.Datasets = append(append([]model.Dataset{}, p.Datasets...), d)
	p.LastAccessed = time.Now().UTC()
	return p
}

// DeleteDataset removes the dataset with the given id. Experiments that
// reference it keep their dangling dataset id; the reference fails at
// run time with a configuration error.
func DeleteDataset(p model.Prompt, id string) model.Prompt {
	datasets := make([]model.Dataset, 0, len(p.Datasets))
	for _, d := range p.Datasets {
		if d.ID != id {
			datasets = append(datasets, d)
		}
	}
	p.Datasets = datasets
	p.LastAccessed = time.Now().UTC()
	return p
}

// AddExperiment attaches an experiment to the prompt.
func AddExperiment(p model.Prompt, e model.Experiment) model.Prompt {
	p.Experiments = append(append([]model.Experiment{}, p.Experiments...), e)
	p.LastAccessed = time.Now().UTC()
	return p
}

// UpdateExperiment replaces the experiment with a matching id. Editing an
// experiment's configuration never rewrites its past runs.
func UpdateExperiment(p model.Prompt, e model.Experiment) model.Prompt {
	experiments := make([]model.Experiment, len(p.Experiments))
	for i, existing := range p.Experiments {
		if existing.ID == e.ID {
			experiments[i] = e
		} else {
			experiments[i] = existing
		}
	}
	p.Experiments = experiments
	p.LastAccessed = time.Now().UTC()
	return p
}

// DeleteExperiment removes the experiment with the given id.
func DeleteExperiment(p model.Prompt, id string) model.Prompt {
	experiments := make([]model.Experiment, 0, len(p.Experiments))
	for _, e := range p.Experiments {
		if e.ID != id {
			experiments = append(experiments, e)
		}
	}
	p.Experiments = experiments
	p.LastAccessed = time.Now().UTC()
	return p
}
