package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/llm"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage provider API keys",
}

var settingsSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider> <key>",
	Short: "Store an API key for a provider",
	Long: `Store an API key for "openai" or "anthropic". Keys are shared across
users and re-read before every LLM call, so a change applies to the
next call of an in-flight run.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		provider := llm.Provider(strings.ToLower(args[0]))
		if provider != llm.ProviderOpenAI && provider != llm.ProviderAnthropic {
			return fmt.Errorf("unknown provider %q (want openai or anthropic)", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		settings, err := st.Settings()
		if err != nil {
			return err
		}
		settings[string(provider)] = args[1]
		if err := st.SaveSettings(settings); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "stored key for %s\n", provider)
		return nil
	},
}

var settingsGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Show which providers have keys configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		settings, err := st.Settings()
		if err != nil {
			return err
		}
		// Keys themselves stay out of the output.
		configured := make(map[string]bool, 2)
		for _, provider := range []llm.Provider{llm.ProviderOpenAI, llm.ProviderAnthropic} {
			_, ok := settings[string(provider)]
			configured[string(provider)] = ok
		}
		return printJSON(configured)
	},
}

func init() {
	settingsCmd.AddCommand(settingsSetKeyCmd, settingsGetCmd)
	rootCmd.AddCommand(settingsCmd)
}
