package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/token"
)

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe [query]",
		Short: "List queries or describe one query's columns",
		Long: `Without an argument, list the queries of the schema.
With a query name, print its columns in order: the entity column first,
then the declared columns with their types and display names.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runDescribe(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	env, err := LoadEnvironment(cmd.Context(), opts.Config)
	if err != nil {
		return loadFailed(formatter, err)
	}
	defer env.Close()

	if len(args) == 0 {
		names := env.Engine.QueryNames()
		if formatter.Format == "json" {
			return formatter.Success(names)
		}
		for _, name := range names {
			fmt.Fprintln(formatter.Writer, name)
		}
		return nil
	}

	desc, err := env.Engine.QueryDescription(args[0])
	if err != nil {
		return formatter.RequestFailed(err)
	}
	if formatter.Format == "json" {
		return formatter.Success(desc)
	}

	rows := make([][]string, len(desc.Columns))
	for i, c := range desc.Columns {
		rows[i] = []string{c.Name, c.Type.String(), c.DisplayName}
	}
	fmt.Fprintf(formatter.Writer, "%s %s\n", desc.QueryName, formatter.Muted("("+desc.Entity+")"))
	fmt.Fprintln(formatter.Writer, formatter.Table([]string{"Column", "Type", "Display name"}, rows))
	return nil
}

// TokensOptions holds flags for the tokens command.
type TokensOptions struct {
	*RootOptions
	Element   bool
	AnyAll    bool
	Aggregate bool
}

func (o *TokensOptions) options() token.Options {
	var opts token.Options
	if o.Element {
		opts |= token.CanElement
	}
	if o.AnyAll {
		opts |= token.CanAnyAll
	}
	if o.Aggregate {
		opts |= token.CanAggregate
	}
	return opts
}

// TokenInfo is the printable form of a discovered token.
type TokenInfo struct {
	Key         string   `json:"key"`
	FullKey     string   `json:"full_key"`
	DisplayName string   `json:"display_name"`
	Type        string   `json:"type"`
	Filterable  bool     `json:"filterable"`
	Orderable   bool     `json:"orderable"`
	Operations  []string `json:"operations,omitempty"`
}

func newTokenInfo(t token.Token) TokenInfo {
	info := TokenInfo{
		Key:         t.Key(),
		FullKey:     t.FullKey(),
		DisplayName: t.DisplayName(),
		Type:        t.Type().String(),
		Filterable:  token.CanFilter(t) == "",
		Orderable:   token.CanOrder(t) == "",
	}
	if ft, ok := token.FilterTypeOf(t.Type()); ok && info.Filterable {
		for _, op := range token.OperationsFor(ft) {
			info.Operations = append(info.Operations, string(op))
		}
	}
	return info
}

// NewTokensCommand creates the tokens command.
func NewTokensCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokensOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tokens <query> [token]",
		Short: "List the tokens reachable from a query or a token",
		Long: `Without a token, list the root tokens of a query (its columns).
With a token path such as "Customer" or "Lines.Element", list the
subtokens that may follow it. Flags widen discovery to collection
elements, any/all quantifiers and aggregates.`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			return runTokens(opts, args[0], parent, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Element, "element", false, "include collection Element tokens")
	cmd.Flags().BoolVar(&opts.AnyAll, "any-all", false, "include collection Any/All tokens")
	cmd.Flags().BoolVar(&opts.Aggregate, "aggregate", false, "include aggregates")

	return cmd
}

func runTokens(opts *TokensOptions, query, parent string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	env, err := LoadEnvironment(cmd.Context(), opts.Config)
	if err != nil {
		return loadFailed(formatter, err)
	}
	defer env.Close()

	tokens, err := env.Engine.SubTokens(query, parent, opts.options())
	if err != nil {
		return formatter.RequestFailed(err)
	}
	infos := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		infos[i] = newTokenInfo(t)
	}
	if formatter.Format == "json" {
		return formatter.Success(infos)
	}

	rows := make([][]string, len(infos))
	for i, info := range infos {
		rows[i] = []string{info.FullKey, info.Type, info.DisplayName, strings.Join(info.Operations, " ")}
	}
	fmt.Fprintln(formatter.Writer, formatter.Table([]string{"Token", "Type", "Display name", "Filters"}, rows))
	return nil
}

// describeValue renders a value for text output.
func describeValue(v ir.IRValue) string {
	if ir.IsNull(v) {
		return "null"
	}
	return ir.Display(v)
}
