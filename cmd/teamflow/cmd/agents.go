package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/teamflow/internal/catalog"
)

var agentsCmd = &cobra.Command{
	Use:   "agents [query]",
	Short: "List the agent catalog",
	Long: `List the agents that can be placed in a workflow. With a query the list
is fuzzy-filtered by agent name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgents,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = strings.TrimSpace(args[0])
	}

	agents := catalog.Default().Search(query)
	if len(agents) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No agents match %q.\n", query)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tDESCRIPTION")
	fmt.Fprintln(w, "--\t----\t----\t-----------")
	for _, a := range agents {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.AgentType, a.Name, truncate(a.Description, 60))
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
