package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/graph"
)

var flagTestCaseInput string

var testcaseCmd = &cobra.Command{
	Use:   "testcase",
	Short: "Manage a prompt's reusable test inputs",
}

var testcaseAddCmd = &cobra.Command{
	Use:   "add <prompt> <name>",
	Short: "Add a test case",
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

		p, tc := graph.AddTestCase(p, args[1], flagTestCaseInput)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(tc)
	},
}

var testcaseListCmd = &cobra.Command{
	Use:   "list <prompt>",
	Short: "List test cases",
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
		return printJSON(p.TestCases)
	},
}

var testcaseDeleteCmd = &cobra.Command{
	Use:   "delete <prompt> <id>",
	Short: "Delete a test case",
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

		p = graph.DeleteTestCase(p, args[1])
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted test case %s\n", args[1])
		return nil
	},
}

func init() {
	testcaseAddCmd.Flags().StringVar(&flagTestCaseInput, "input", "", "test input text")
	testcaseCmd.AddCommand(testcaseAddCmd, testcaseListCmd, testcaseDeleteCmd)
	rootCmd.AddCommand(testcaseCmd)
}
