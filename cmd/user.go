package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the active user",
	Long: `Prompts are partitioned per user; each user sees only their own. The
active user is a stored pointer, overridable per invocation with the
global --user flag.`,
}

var userShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the active user id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, user, err := openStore(cfg)
		if err != nil {
			return err
		}
		fmt.Println(user)
		return nil
	},
}

var userSetCmd = &cobra.Command{
	Use:   "set <user-id>",
	Short: "Switch the active user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, _, err := openStore(cfg)
		if err != nil {
			return err
		}
		if err := st.SetCurrentUser(args[0]); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "active user is now %q\n", args[0])
		return nil
	},
}

func init() {
	userCmd.AddCommand(userShowCmd, userSetCmd)
	rootCmd.AddCommand(userCmd)
}
