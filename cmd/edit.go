package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/graph"
)

var (
	flagEditVersion     string
	flagEditText        string
	flagEditTextFile    string
	flagEditSystem      string
	flagEditModel       string
	flagEditTemperature float64
	flagEditMaxTokens   int64
	flagEditTopP        float64
	flagEditMessage     string
)

var editCmd = &cobra.Command{
	Use:   "edit <prompt>",
	Short: "Edit a version in place",
	Long: `Replace a version's content within its prompt. The version keeps its id
and branch but gets the new content, commit message, and a fresh
timestamp. By default the latest version on the current branch is
edited; use --version to target a specific one.

Parameter values are not range-checked here; the provider rejects
out-of-range values at call time.`,
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
		v, err := resolveVersion(p, flagEditVersion)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("text") {
			v.PromptText = flagEditText
		}
		if flagEditTextFile != "" {
			data, err := os.ReadFile(flagEditTextFile)
			if err != nil {
				return fmt.Errorf("read prompt text: %w", err)
			}
			v.PromptText = string(data)
		}
		if cmd.Flags().Changed("system") {
			v.SystemMessage = flagEditSystem
		}
		if cmd.Flags().Changed("model") {
			v.Parameters.Model = flagEditModel
		}
		if cmd.Flags().Changed("temperature") {
			v.Parameters.Temperature = flagEditTemperature
		}
		if cmd.Flags().Changed("max-tokens") {
			v.Parameters.MaxTokens = flagEditMaxTokens
		}
		if cmd.Flags().Changed("top-p") {
			v.Parameters.TopP = flagEditTopP
		}
		if flagEditMessage != "" {
			v.CommitMessage = flagEditMessage
		}
		v.Timestamp = time.Now().UTC()

		p = graph.UpdateVersion(p, v)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		return printJSON(v)
	},
}

func init() {
	editCmd.Flags().StringVar(&flagEditVersion, "version", "", "version id (default: latest on current branch)")
	editCmd.Flags().StringVar(&flagEditText, "text", "", "prompt text")
	editCmd.Flags().StringVar(&flagEditTextFile, "text-file", "", "read prompt text from a file")
	editCmd.Flags().StringVar(&flagEditSystem, "system", "", "system message")
	editCmd.Flags().StringVar(&flagEditModel, "model", "", "model id")
	editCmd.Flags().Float64Var(&flagEditTemperature, "temperature", 0, "sampling temperature")
	editCmd.Flags().Int64Var(&flagEditMaxTokens, "max-tokens", 0, "max output tokens")
	editCmd.Flags().Float64Var(&flagEditTopP, "top-p", 0, "nucleus sampling probability")
	editCmd.Flags().StringVarP(&flagEditMessage, "message", "m", "", "commit message")
	rootCmd.AddCommand(editCmd)
}
