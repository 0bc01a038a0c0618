package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dynq/internal/compiler"
	"github.com/roach88/dynq/internal/config"
	"github.com/roach88/dynq/internal/dataset"
	"github.com/roach88/dynq/internal/engine"
	"github.com/roach88/dynq/internal/ir"
	"github.com/roach88/dynq/internal/provider"
)

// LoadError represents an error that occurred while loading the schema,
// the dataset or a request file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
// Schema validation findings use the compiler's E1xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeDataset     = "E007" // Dataset file invalid
	ErrCodeRequest     = "E008" // Request file unreadable or invalid
	ErrCodeBackend     = "E009" // Backend could not be opened
)

// LoadSchema compiles and validates the CUE schema of dir. Validation
// findings come back as compiler.ValidationErrors; every other failure
// is a *LoadError.
func LoadSchema(dir string) (*ir.Schema, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing schema directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	schema, err := compiler.LoadDir(dir)
	if err == nil {
		return schema, nil
	}
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		return nil, verrs
	}
	return nil, convertCompileError(err)
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	if errors.Is(err, compiler.ErrNoSchemaFiles) {
		return &LoadError{Code: ErrCodeNoFiles, Message: err.Error()}
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoadFailed, Message: err.Error()}
}

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch field {
	case "cue":
		return ErrCodeBuildFailed
	case "toStr":
		return compiler.ErrMissingToStr
	case "type", "element":
		return compiler.ErrInvalidFieldType
	case "query.entity":
		return compiler.ErrUnknownQueryEntity
	case "query.columns":
		return compiler.ErrUnknownQueryProperty
	default:
		return ErrCodeGeneric
	}
}

// Environment is what request commands run against: the schema, its
// dataset, the configured backend and an engine over it.
type Environment struct {
	Schema   *ir.Schema
	Dataset  *dataset.Dataset
	Provider provider.Provider
	Engine   *engine.Engine
}

// Close releases the backend.
func (e *Environment) Close() error {
	if c, ok := e.Provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// LoadEnvironment loads the schema and dataset named by cfg, opens its
// backend and builds the engine.
func LoadEnvironment(ctx context.Context, cfg *config.Config) (*Environment, error) {
	schema, err := LoadSchema(cfg.SchemaDir)
	if err != nil {
		return nil, err
	}
	d, err := dataset.LoadFile(schema, cfg.DataFile)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeDataset, Message: err.Error()}
	}
	p, err := provider.Open(ctx, cfg.Backend, cfg.Database, d)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeBackend, Message: err.Error()}
	}

	auth, err := cfg.Authorizer()
	if err != nil {
		closeProvider(p)
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}
	precision, _ := cfg.Precision()
	e, err := engine.New(schema, p,
		engine.WithAuthorizer(auth),
		engine.WithPrecision(precision),
		engine.WithCacheSize(cfg.TokenCacheSize),
	)
	if err != nil {
		closeProvider(p)
		return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
	}

	slog.Debug("environment loaded",
		"schema_dir", cfg.SchemaDir,
		"data_file", cfg.DataFile,
		"backend", p.Name(),
		"queries", len(schema.Queries),
	)
	return &Environment{Schema: schema, Dataset: d, Provider: p, Engine: e}, nil
}

func closeProvider(p provider.Provider) {
	if c, ok := p.(io.Closer); ok {
		_ = c.Close()
	}
}

// ReadRequest decodes a YAML (or JSON) request file into T, rejecting
// unknown keys. A path of "-" reads stdin.
func ReadRequest[T any](path string, stdin io.Reader) (*T, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeRequest, Message: fmt.Sprintf("open request: %v", err)}
		}
		defer f.Close()
		r = f
	}

	var req T
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&req); err != nil {
		return nil, &LoadError{Code: ErrCodeRequest, Message: fmt.Sprintf("decode request %s: %v", path, err)}
	}
	return &req, nil
}

// loadFailed reports a loading error and returns the matching exit error.
func loadFailed(f *OutputFormatter, err error) error {
	var verrs compiler.ValidationErrors
	if errors.As(err, &verrs) {
		_ = f.Error(verrs[0].Code, "schema is invalid", verrs)
		return WrapExitError(ExitFailure, "schema is invalid", err)
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		_ = f.Error(loadErr.Code, loadErr.Error(), nil)
		return WrapExitError(ExitCommandError, loadErr.Message, err)
	}
	_ = f.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "load failed", err)
}
