package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/model"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Manage prompts",
}

var promptCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a prompt with an initial version on main",
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

		p := graph.NewPrompt(args[0])
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(p)
	},
}

// promptSummary is the list row for a prompt aggregate.
type promptSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	CurrentBranch string    `json:"current_branch"`
	Versions      int       `json:"versions"`
	TestCases     int       `json:"test_cases"`
	Datasets      int       `json:"datasets"`
	Experiments   int       `json:"experiments"`
	LastAccessed  time.Time `json:"last_accessed"`
}

var promptListCmd = &cobra.Command{
	Use:   "list",
	Short: "List prompts for the active user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, user, err := openStore(cfg)
		if err != nil {
			return err
		}
		prompts, err := st.LoadPrompts(user)
		if err != nil {
			return err
		}

		summaries := make([]promptSummary, 0, len(prompts))
		for _, p := range prompts {
			summaries = append(summaries, promptSummary{
				ID:            p.ID,
				Name:          p.Name,
				CurrentBranch: p.CurrentBranch,
				Versions:      len(p.Versions),
				TestCases:     len(p.TestCases),
				Datasets:      len(p.Datasets),
				Experiments:   len(p.Experiments),
				LastAccessed:  p.LastAccessed,
			})
		}
		return printJSON(summaries)
	},
}

var promptShowCmd = &cobra.Command{
	Use:   "show <prompt>",
	Short: "Print the full prompt aggregate",
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
		return printJSON(p)
	},
}

var promptDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a prompt and everything it owns",
	Long: `Delete a prompt aggregate. Its versions, test cases, datasets, and
experiments are destroyed with it.`,
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
		if err := st.DeletePrompt(user, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted prompt %q\n", args[0])
		return nil
	},
}

// latestCurrent returns the newest version on the prompt's current branch.
func latestCurrent(p model.Prompt) (model.PromptVersion, bool) {
	return graph.LatestVersion(p, p.CurrentBranch)
}

func init() {
	promptCmd.AddCommand(promptCreateCmd, promptListCmd, promptShowCmd, promptDeleteCmd)
	rootCmd.AddCommand(promptCmd)
}
