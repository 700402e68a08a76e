package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/model"
)

var (
	flagBranchFrom    string
	flagBranchMessage string
	flagMergeMessage  string
)

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Manage a prompt's branches",
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <prompt> <branch>",
	Short: "Commit a copy of a version onto a branch",
	Long: `Create a branch (or commit onto an existing one) from a source version.

The new version copies the source's prompt text, system message, and
parameters, records the source as its parent, and becomes the prompt's
current branch. By default the source is the latest version on the
current branch; use --from to pick a specific version id.`,
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
		from, err := resolveVersion(p, flagBranchFrom)
		if err != nil {
			return err
		}

		p, v := graph.CreateBranch(p, from, args[1], flagBranchMessage)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(v)
	},
}

var branchMergeCmd = &cobra.Command{
	Use:   "merge <prompt> <from> <to>",
	Short: "Fast-forward copy the latest version of one branch onto another",
	Long: `Merge copies the newest version of <from> onto <to> as a new commit.
This is a content copy: no diffing and no conflict detection. Merging
from a branch with no versions is rejected without touching the prompt.`,
	Args: cobra.ExactArgs(3),
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

		p, v, err := graph.MergeBranch(p, args[1], args[2], flagMergeMessage)
		if err != nil {
			return err
		}
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(v)
	},
}

var branchDeleteCmd = &cobra.Command{
	Use:   "delete <prompt> <branch>",
	Short: "Remove every version on a branch",
	Long: `Delete all versions on a branch. The main branch cannot be deleted.
If the deleted branch was current, the prompt falls back to main.`,
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
		if args[1] == model.MainBranch {
			fmt.Fprintln(os.Stderr, "refusing to delete main")
			return nil
		}

		p = graph.DeleteBranch(p, args[1])
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted branch %q\n", args[1])
		return nil
	},
}

var branchLogCmd = &cobra.Command{
	Use:   "log <prompt> [branch]",
	Short: "List versions, newest first",
	Args:  cobra.RangeArgs(1, 2),
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

		versions := p.Versions
		if len(args) == 2 {
			branch := args[1]
			filtered := make([]model.PromptVersion, 0, len(versions))
			for _, v := range versions {
				if v.Branch == branch {
					filtered = append(filtered, v)
				}
			}
			versions = filtered
		}
		sort.SliceStable(versions, func(i, j int) bool {
			return versions[i].Timestamp.After(versions[j].Timestamp)
		})
		return printJSON(versions)
	},
}

func init() {
	branchCreateCmd.Flags().StringVar(&flagBranchFrom, "from", "", "source version id (default: latest on current branch)")
	branchCreateCmd.Flags().StringVarP(&flagBranchMessage, "message", "m", "", "commit message")
	branchMergeCmd.Flags().StringVarP(&flagMergeMessage, "message", "m", "", "merge commit message")
	branchCmd.AddCommand(branchCreateCmd, branchMergeCmd, branchDeleteCmd, branchLogCmd)
	rootCmd.AddCommand(branchCmd)
}
