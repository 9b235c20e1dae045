package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/teamflow/internal/catalog"
	"github.com/hugo-lorenzo-mato/teamflow/internal/nodeconfig"
	"github.com/hugo-lorenzo-mato/teamflow/internal/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Browse workflow templates",
	Long: `Browse the workflow template library: the embedded templates plus any
found in templates.dir.`,
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return listTemplates(cmd, "")
	},
}

var templatesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy-search templates by name and category",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTemplates(cmd, strings.TrimSpace(args[0]))
	},
}

var templatesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a template as YAML",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesShow,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesSearchCmd)
	templatesCmd.AddCommand(templatesShowCmd)
}

func loadLibrary() (*template.Library, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	configs := nodeconfig.NewStore(nodeconfig.WithStrictAgentTypes(cfg.Nodes.StrictAgentTypes))
	return newLibrary(cfg, catalog.Default(), configs)
}

func listTemplates(cmd *cobra.Command, query string) error {
	lib, err := loadLibrary()
	if err != nil {
		return err
	}

	summaries := lib.Search(query)
	if len(summaries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No templates match %q.\n", query)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tCOMPLEXITY\tAGENTS\tDURATION\tNAME")
	fmt.Fprintln(w, "--\t--------\t----------\t------\t--------\t----")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Category, s.Complexity, s.AgentCount, s.EstimatedDuration, s.Name)
	}
	return w.Flush()
}

func runTemplatesShow(cmd *cobra.Command, args []string) error {
	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	t, err := lib.Get(args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("encoding template: %w", err)
	}
	return enc.Close()
}
