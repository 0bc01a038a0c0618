package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/engine"
	"github.com/roach88/dynq/internal/ir"
)

// EntitiesOptions holds flags for the entities command.
type EntitiesOptions struct {
	*RootOptions
	Full bool
}

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntitiesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entities <request.yaml>",
		Short: "List the entities matching a request",
		Long: `Run an entities request read from a YAML or JSON file:

  queryName: Orders
  filters:
    - {token: Shipped, operation: EqualTo, value: false}
  orders:
    - {token: Id}
  count: 5

Prints one lite per matching row, or the full entities with --full.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntities(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "print full entities instead of lites")

	return cmd
}

func runEntities(opts *EntitiesOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := ReadRequest[engine.EntitiesRequestDTO](path, cmd.InOrStdin())
	if err != nil {
		return loadFailed(formatter, err)
	}
	env, err := LoadEnvironment(cmd.Context(), opts.Config)
	if err != nil {
		return loadFailed(formatter, err)
	}
	defer env.Close()

	if !opts.Full {
		lites, err := env.Engine.GetEntitiesLite(cmd.Context(), req)
		if err != nil {
			return formatter.RequestFailed(err)
		}
		if formatter.Format == "json" {
			return formatter.Success(lites)
		}
		rows := make([][]string, len(lites))
		for i, l := range lites {
			rows[i] = []string{l.Key(), l.ToStr}
		}
		fmt.Fprintln(formatter.Writer, formatter.Table([]string{"Entity", "ToString"}, rows))
		return nil
	}

	ents, err := env.Engine.GetEntitiesFull(cmd.Context(), req)
	if err != nil {
		return formatter.RequestFailed(err)
	}
	if formatter.Format == "json" {
		return formatter.Success(ents)
	}
	for _, e := range ents {
		fmt.Fprintln(formatter.Writer, e.ToLite().Key())
		for _, k := range e.Fields.SortedKeys() {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", k, describeEntityField(e.Fields[k]))
		}
	}
	return nil
}

func describeEntityField(v ir.IRValue) string {
	if _, ok := v.(ir.IRArray); ok {
		b, err := ir.MarshalIRValue(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
	return describeValue(v)
}
