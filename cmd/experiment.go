package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/feed"
	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/model"
	"github.com/timvw/promptbench/internal/runner"
	"github.com/timvw/promptbench/internal/tui"
)

var (
	flagExpDataset   string
	flagExpVersion   string
	flagExpJudge     string
	flagExpJudgeFile string

	flagExpWatch bool
	flagExpRunID string
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Batch-run a prompt version against a dataset with an LLM judge",
}

// experimentSummary is the JSON list/show shape for experiments.
type experimentSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	DatasetID string    `json:"dataset_id"`
	VersionID string    `json:"version_id"`
	Runs      int       `json:"runs"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func summarizeExperiment(e model.Experiment) experimentSummary {
	return experimentSummary{
		ID:        e.ID,
		Name:      e.Name,
		DatasetID: e.DatasetID,
		VersionID: e.PromptVersionID,
		Runs:      len(e.Runs),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

var experimentCreateCmd = &cobra.Command{
	Use:   "create <prompt> <name>",
	Short: "Create an experiment",
	Long: `Create an experiment binding a dataset, a prompt version, and a judge
prompt. The judge prompt may reference dataset columns with {{column}}
placeholders. Referenced dataset and version must exist at creation;
they are weak references, re-resolved when a run starts.`,
	Args: cobra.ExactArgs(2),
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

		ds, err := findDataset(p, flagExpDataset)
		if err != nil {
			return err
		}
		v, err := resolveVersion(p, flagExpVersion)
		if err != nil {
			return err
		}
		judge := flagExpJudge
		if flagExpJudgeFile != "" {
			data, err := os.ReadFile(flagExpJudgeFile)
			if err != nil {
				return fmt.Errorf("reading judge prompt: %w", err)
			}
			judge = string(data)
		}
		if judge == "" {
			return fmt.Errorf("a judge prompt is required (--judge or --judge-file)")
		}

		now := time.Now().UTC()
		exp := model.Experiment{
			ID:              model.NewID(),
			Name:            args[1],
			DatasetID:       ds.ID,
			PromptID:        p.ID,
			PromptVersionID: v.ID,
			JudgePrompt:     judge,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		p = graph.AddExperiment(p, exp)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(summarizeExperiment(exp))
	},
}

var experimentRunCmd = &cobra.Command{
	Use:     "run <prompt> <experiment>",
	Aliases: []string{"rerun"},
	Short:   "Execute an experiment, appending a new run",
	Long: `Sweep the experiment's dataset row by row: interpolate the prompt
version for each row, collect the model's output, and have the judge
LLM score it pass or fail. Each invocation appends a fresh run; prior
runs are never modified.

With --watch, progress renders live in the terminal as rows complete.`,
	Args: cobra.ExactArgs(2),
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
		exp, err := findExperiment(p, args[1])
		if err != nil {
			return err
		}

		tel := initTelemetry(cmd.Context(), cfg)
		if tel != nil {
			defer tel.Shutdown(context.Background())
		}

		pub := feed.NewPublisher(feed.DefaultSocketPath())
		defer pub.Close()
		publish := func(run model.ExperimentRun) {
			pub.Publish(feed.Event{
				User:         user,
				PromptID:     p.ID,
				ExperimentID: exp.ID,
				RunID:        run.ID,
				Status:       run.Status,
				Rows:         len(run.Results),
				TS:           time.Now().UTC(),
			})
		}

		r := &runner.Runner{
			Gateway:     newGateway(cfg, telMetrics(tel)),
			Credentials: credentials{store: st},
			Persist: func(updated model.Prompt) error {
				return st.UpsertPrompt(user, updated)
			},
			OnRow: func(_ model.Experiment, run model.ExperimentRun) {
				publish(run)
			},
			RowDelay: cfg.RowDelayDuration,
			Metrics:  telMetrics(tel),
		}

		if !flagExpWatch {
			_, run, err := r.Run(cmd.Context(), p, exp.ID)
			publish(run)
			if err != nil {
				return err
			}
			return printJSON(runReport(run))
		}

		totalRows := 0
		if ds, ok := p.DatasetByID(exp.DatasetID); ok {
			totalRows = len(ds.Data)
		}
		updates := make(chan tui.Update, 16)
		r.OnRow = func(_ model.Experiment, run model.ExperimentRun) {
			publish(run)
			updates <- tui.Update{Run: run}
		}

		var finalRun model.ExperimentRun
		var runErr error
		go func() {
			_, finalRun, runErr = r.Run(cmd.Context(), p, exp.ID)
			publish(finalRun)
			updates <- tui.Update{Run: finalRun, Err: runErr, Done: true}
			close(updates)
		}()

		if err := tui.Watch(exp, totalRows, updates); err != nil {
			return err
		}
		// If the watcher exited before the run finished, drain until the run
		// goroutine closes the channel so finalRun reflects the terminal state.
		for range updates {
		}
		if runErr != nil {
			return runErr
		}
		return printJSON(runReport(finalRun))
	},
}

var experimentListCmd = &cobra.Command{
	Use:   "list <prompt>",
	Short: "List a prompt's experiments",
	Args:  cobra.ExactArgs(1),
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
		out := make([]experimentSummary, 0, len(p.Experiments))
		for _, e := range p.Experiments {
			out = append(out, summarizeExperiment(e))
		}
		return printJSON(out)
	},
}

var experimentResultsCmd = &cobra.Command{
	Use:   "results <prompt> <experiment>",
	Short: "Show an experiment's run results",
	Long: `Print the results of one run. Defaults to the most recent run; pick an
earlier one with --run.`,
	Args: cobra.ExactArgs(2),
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
		exp, err := findExperiment(p, args[1])
		if err != nil {
			return err
		}
		if len(exp.Runs) == 0 {
			return fmt.Errorf("experiment %q has no runs", exp.Name)
		}
		run := exp.Runs[len(exp.Runs)-1]
		if flagExpRunID != "" {
			r, ok := exp.Run(flagExpRunID)
			if !ok {
				return fmt.Errorf("run %q not found in experiment %q", flagExpRunID, exp.Name)
			}
			run = r
		}
		return printJSON(runReport(run))
	},
}

var experimentWatchCmd = &cobra.Command{
	Use:   "watch <prompt> <experiment>",
	Short: "Follow a run started in another terminal",
	Long: `Attach to an in-flight run of the experiment and render its progress
live. The running process announces progress on a local socket; run
state itself is re-read from the data directory on each announcement.`,
	Args: cobra.ExactArgs(2),
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
		exp, err := findExperiment(p, args[1])
		if err != nil {
			return err
		}
		totalRows := 0
		if ds, ok := p.DatasetByID(exp.DatasetID); ok {
			totalRows = len(ds.Data)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		feedStore := feed.NewStore(5 * time.Minute)
		collector := feed.NewCollector(feedStore, feed.DefaultSocketPath())
		if err := collector.Start(ctx); err != nil {
			return err
		}

		updates := make(chan tui.Update, 16)
		go func() {
			defer close(updates)
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			var lastRunID string
			var lastRows int
			var lastStatus model.RunStatus
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
				e, ok := feedStore.Latest(time.Now().UTC(), exp.ID)
				if !ok || (e.RunID == lastRunID && e.Rows == lastRows && e.Status == lastStatus) {
					continue
				}
				lastRunID, lastRows, lastStatus = e.RunID, e.Rows, e.Status

				// The announcement only says something changed; the run
				// itself comes from the persisted aggregate.
				current, err := st.FindPrompt(user, p.ID)
				if err != nil {
					continue
				}
				currentExp, ok := current.ExperimentByID(exp.ID)
				if !ok {
					continue
				}
				run, ok := currentExp.Run(e.RunID)
				if !ok {
					continue
				}
				updates <- tui.Update{Run: run, Done: run.Status.Terminal()}
				if run.Status.Terminal() {
					return
				}
			}
		}()

		return tui.Watch(exp, totalRows, updates)
	},
}

var experimentDeleteCmd = &cobra.Command{
	Use:   "delete <prompt> <experiment>",
	Short: "Delete an experiment and its run history",
	Args:  cobra.ExactArgs(2),
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
		exp, err := findExperiment(p, args[1])
		if err != nil {
			return err
		}
		p = graph.DeleteExperiment(p, exp.ID)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted experiment %q\n", exp.Name)
		return nil
	},
}

// runSummaryReport is the JSON shape for a finished or historical run.
type runSummaryReport struct {
	ID        string                   `json:"id"`
	Status    model.RunStatus          `json:"status"`
	Pass      int                      `json:"pass"`
	Fail      int                      `json:"fail"`
	Results   []model.ExperimentResult `json:"results"`
	CreatedAt time.Time                `json:"created_at"`
	UpdatedAt time.Time                `json:"updated_at"`
}

func runReport(run model.ExperimentRun) runSummaryReport {
	rep := runSummaryReport{
		ID:        run.ID,
		Status:    run.Status,
		Results:   run.Results,
		CreatedAt: run.CreatedAt,
		UpdatedAt: run.UpdatedAt,
	}
	for _, res := range run.Results {
		if res.Rating == model.RatingPass {
			rep.Pass++
		} else {
			rep.Fail++
		}
	}
	return rep
}

// findExperiment resolves an experiment by id or name.
func findExperiment(p model.Prompt, key string) (model.Experiment, error) {
	if e, ok := p.ExperimentByID(key); ok {
		return e, nil
	}
	for _, e := range p.Experiments {
		if e.Name == key {
			return e, nil
		}
	}
	return model.Experiment{}, fmt.Errorf("experiment %q not found in prompt %q", key, p.Name)
}

func init() {
	experimentCreateCmd.Flags().StringVar(&flagExpDataset, "dataset", "", "dataset id or name (required)")
	experimentCreateCmd.Flags().StringVar(&flagExpVersion, "version", "", "prompt version id (default: latest on current branch)")
	experimentCreateCmd.Flags().StringVar(&flagExpJudge, "judge", "", "judge prompt text")
	experimentCreateCmd.Flags().StringVar(&flagExpJudgeFile, "judge-file", "", "read the judge prompt from a file")
	_ = experimentCreateCmd.MarkFlagRequired("dataset")

	experimentRunCmd.Flags().BoolVar(&flagExpWatch, "watch", false, "render live progress in the terminal")
	experimentResultsCmd.Flags().StringVar(&flagExpRunID, "run", "", "run id (default: most recent)")

	experimentCmd.AddCommand(experimentCreateCmd, experimentRunCmd, experimentWatchCmd, experimentListCmd, experimentResultsCmd, experimentDeleteCmd)
	rootCmd.AddCommand(experimentCmd)
}
