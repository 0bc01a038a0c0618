package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/engine"
	"github.com/roach88/dynq/internal/ir"
)

// ValueResult is the JSON payload of value and unique.
type ValueResult struct {
	QueryName string          `json:"queryName"`
	Value     json.RawMessage `json:"value"`
}

// NewValueCommand creates the value command.
func NewValueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "value <request.yaml>",
		Short: "Compute a single value: a count, an aggregate or a token's value",
		Long: `Run a value request read from a YAML or JSON file ("-" reads stdin):

  queryName: Orders
  filters:
    - {token: Customer, operation: EqualTo, value: "Customer;1"}
  valueToken: Total.Sum

Without valueToken the result is the number of matching rows. A
non-aggregate valueToken yields its value on the single matching row,
or the list of values with multipleValues: true.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValue(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValue(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := ReadRequest[engine.ValueRequestDTO](path, cmd.InOrStdin())
	if err != nil {
		return loadFailed(formatter, err)
	}
	env, err := LoadEnvironment(cmd.Context(), opts.Config)
	if err != nil {
		return loadFailed(formatter, err)
	}
	defer env.Close()

	v, err := env.Engine.ExecuteQueryValue(cmd.Context(), req)
	if err != nil {
		return formatter.RequestFailed(err)
	}
	return outputValue(formatter, req.QueryName, v)
}

// NewUniqueCommand creates the unique command.
func NewUniqueCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unique <request.yaml>",
		Short: "Pick one entity of a query",
		Long: `Run a unique-entity request read from a YAML or JSON file:

  queryName: Orders
  orders:
    - {token: Total, orderType: Descending}
  uniqueType: First

uniqueType is First, FirstOrDefault (default), Single, SingleOrDefault
or Only. The result is the entity's lite, or null.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnique(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runUnique(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	req, err := ReadRequest[engine.UniqueEntityRequestDTO](path, cmd.InOrStdin())
	if err != nil {
		return loadFailed(formatter, err)
	}
	env, err := LoadEnvironment(cmd.Context(), opts.Config)
	if err != nil {
		return loadFailed(formatter, err)
	}
	defer env.Close()

	v, err := env.Engine.ExecuteUniqueEntity(cmd.Context(), req)
	if err != nil {
		return formatter.RequestFailed(err)
	}
	return outputValue(formatter, req.QueryName, v)
}

func outputValue(formatter *OutputFormatter, query string, v ir.IRValue) error {
	if formatter.Format == "json" {
		raw, err := ir.MarshalIRValue(v)
		if err != nil {
			return err
		}
		return formatter.Success(ValueResult{QueryName: query, Value: raw})
	}
	if arr, ok := v.(ir.IRArray); ok {
		for _, item := range arr {
			fmt.Fprintln(formatter.Writer, describeValue(item))
		}
		return nil
	}
	fmt.Fprintln(formatter.Writer, describeValue(v))
	return nil
}
