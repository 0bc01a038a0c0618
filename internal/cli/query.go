package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/dquery"
	"github.com/roach88/dynq/internal/engine"
)

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <request.yaml>",
		Short: "Run a table request",
		Long: `Run a table request read from a YAML or JSON file ("-" reads stdin):

  queryName: Orders
  filters:
    - {token: Total, operation: GreaterThan, value: 100}
  orders:
    - {token: OrderDate, orderType: Descending}
  columns:
    - {token: Number}
    - {token: Customer.Name, displayName: Customer}
  pagination: {mode: Paginate, elementsPerPage: 10, currentPage: 1}

Text output renders the result table; JSON output is the wire form with
compressed columns written as indexes into uniqueValues.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runQuery(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := ReadRequest[engine.QueryRequestDTO](path, cmd.InOrStdin())
	if err != nil {
		return loadFailed(formatter, err)
	}
	env, err := LoadEnvironment(cmd.Context(), opts.Config)
	if err != nil {
		return loadFailed(formatter, err)
	}
	defer env.Close()

	formatter.VerboseLog("Running %s on %s", req.QueryName, env.Provider.Name())
	resp, err := env.Engine.ExecuteQuery(cmd.Context(), req)
	if err != nil {
		return formatter.RequestFailed(err)
	}
	if formatter.Format == "json" {
		return formatter.Success(resp)
	}

	fmt.Fprintln(formatter.Writer, formatter.Table(tableHeaders(resp.Table), tableRows(resp.Table)))
	fmt.Fprintln(formatter.Writer, formatter.Muted(tableSummary(resp.Table)))
	return nil
}

func tableHeaders(t *dquery.ResultTable) []string {
	headers := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		headers[i] = c.DisplayName
	}
	return headers
}

func tableRows(t *dquery.ResultTable) [][]string {
	rows := make([][]string, t.Len())
	for i := range rows {
		row := make([]string, len(t.Columns))
		for j, c := range t.Columns {
			row[j] = describeValue(c.Value(i))
		}
		rows[i] = row
	}
	return rows
}

func tableSummary(t *dquery.ResultTable) string {
	switch p := t.Pagination.(type) {
	case dquery.Paginate:
		if t.TotalElements != nil {
			return fmt.Sprintf("page %d: %d row(s) of %d", p.Page, t.Len(), *t.TotalElements)
		}
		return fmt.Sprintf("page %d: %d row(s)", p.Page, t.Len())
	case dquery.Firsts:
		return fmt.Sprintf("first %d: %d row(s)", p.N, t.Len())
	default:
		return fmt.Sprintf("%d row(s)", t.Len())
	}
}
