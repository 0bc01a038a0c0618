package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dynq/internal/compiler"
	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/ir"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	DataFile string
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Entities int      `json:"entities"`
	Queries  []string `json:"queries,omitempty"`
	// Fingerprint hashes the entity names and query shapes; it changes
	// whenever a query's columns or types do.
	Fingerprint string                     `json:"fingerprint,omitempty"`
	Errors      []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [schema-dir]",
		Short: "Validate the schema definitions",
		Long: `Compile the CUE schema definitions and check them without running
any query: names, toStr properties, lite implementations, embedded
cycles and query columns. Every finding is reported with its E-code.

The directory defaults to schema_dir from the config. With --data the
YAML fixtures are loaded against the schema as well.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := opts.Config.SchemaDir
			if len(args) == 1 {
				dir = args[0]
			}
			return runValidate(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DataFile, "data", "", "also load this YAML dataset")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	formatter.VerboseLog("Validating schema in %s", dir)

	schema, err := LoadSchema(dir)
	if err != nil {
		var verrs compiler.ValidationErrors
		if errors.As(err, &verrs) {
			return outputValidationErrors(formatter, verrs)
		}
		return loadFailed(formatter, err)
	}

	if opts.DataFile != "" {
		formatter.VerboseLog("Loading dataset %s", opts.DataFile)
		if _, err := dataset.LoadFile(schema, opts.DataFile); err != nil {
			return loadFailed(formatter, &LoadError{Code: ErrCodeDataset, Message: err.Error()})
		}
	}

	fingerprint, err := schemaFingerprint(schema)
	if err != nil {
		return loadFailed(formatter, err)
	}
	result := ValidationResult{
		Valid:       true,
		Entities:    len(schema.Entities),
		Queries:     schema.QueryNames(),
		Fingerprint: fingerprint,
	}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ Schema valid (%d entities, %d queries)\n", result.Entities, len(result.Queries))
	fmt.Fprintln(formatter.Writer, formatter.Muted("fingerprint "+fingerprint[:12]))
	return nil
}

func schemaFingerprint(schema *ir.Schema) (string, error) {
	entities := ir.IRArray{}
	for _, name := range schema.EntityNames() {
		entities = append(entities, ir.IRString(name))
	}
	queries := ir.IRObject{}
	for _, name := range schema.QueryNames() {
		desc, err := schema.Describe(name)
		if err != nil {
			return "", err
		}
		cols := make(ir.IRArray, len(desc.Columns))
		for i, c := range desc.Columns {
			cols[i] = ir.IRString(c.Name + ":" + c.Type.String())
		}
		queries[name] = ir.IRObject{"entity": ir.IRString(desc.Entity), "columns": cols}
	}
	return ir.SchemaHash(ir.IRObject{"entities": entities, "queries": queries})
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
