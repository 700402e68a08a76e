package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/timvw/promptbench/internal/dataset"
	"github.com/timvw/promptbench/internal/graph"
	"github.com/timvw/promptbench/internal/model"
)

var flagDatasetFile string

var datasetCmd = &cobra.Command{
	Use:   "dataset",
	Short: "Manage a prompt's datasets",
}

var datasetImportCmd = &cobra.Command{
	Use:   "import <prompt> <name>",
	Short: "Parse a CSV file into a dataset",
	Long: `Import comma-separated text as a dataset. The first row names the
columns; quoted fields may embed commas, doubled quotes, and newlines.
All values are strings.`,
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
		text, err := os.ReadFile(flagDatasetFile)
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}

		ds, err := dataset.New(args[1], string(text))
		if err != nil {
			return err
		}
		p = graph.AddDataset(p, ds)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "imported %d rows, %d columns\n", len(ds.Data), len(ds.Columns))
		return printJSON(datasetSummary{ID: ds.ID, Name: ds.Name, Columns: ds.Columns, Rows: len(ds.Data)})
	},
}

type datasetSummary struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    int      `json:"rows"`
}

var datasetListCmd = &cobra.Command{
	Use:   "list <prompt>",
	Short: "List datasets",
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

		summaries := make([]datasetSummary, 0, len(p.Datasets))
		for _, ds := range p.Datasets {
			summaries = append(summaries, datasetSummary{ID: ds.ID, Name: ds.Name, Columns: ds.Columns, Rows: len(ds.Data)})
		}
		return printJSON(summaries)
	},
}

var datasetShowCmd = &cobra.Command{
	Use:   "show <prompt> <dataset>",
	Short: "Print a dataset's rows",
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
		ds, err := findDataset(p, args[1])
		if err != nil {
			return err
		}
		return printJSON(ds)
	},
}

var datasetDeleteCmd = &cobra.Command{
	Use:   "delete <prompt> <dataset>",
	Short: "Delete a dataset",
	Long: `Delete a dataset. Experiments referencing it keep their dataset id and
fail with a configuration error at run time.`,
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
		ds, err := findDataset(p, args[1])
		if err != nil {
			return err
		}

		p = graph.DeleteDataset(p, ds.ID)
		if err := st.UpsertPrompt(user, p); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "deleted dataset %q\n", ds.Name)
		return nil
	},
}

// findDataset matches a dataset by id or name.
func findDataset(p model.Prompt, key string) (model.Dataset, error) {
	for _, ds := range p.Datasets {
		if ds.ID == key || ds.Name == key {
			return ds, nil
		}
	}
	return model.Dataset{}, fmt.Errorf("dataset %q not found in prompt %q", key, p.Name)
}

func init() {
	datasetImportCmd.Flags().StringVar(&flagDatasetFile, "file", "", "path to the CSV file")
	_ = datasetImportCmd.MarkFlagRequired("file")
	datasetCmd.AddCommand(datasetImportCmd, datasetListCmd, datasetShowCmd, datasetDeleteCmd)
	rootCmd.AddCommand(datasetCmd)
}
