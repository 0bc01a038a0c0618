package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/dynq/internal/ir"
)

// ErrNoSchemaFiles is returned when a schema directory holds no .cue files.
var ErrNoSchemaFiles = errors.New("no CUE files found")

// LoadDir loads every CUE file of dir as one instance, compiles it and
// validates the result. Validation failures come back as
// ValidationErrors.
func LoadDir(dir string) (*ir.Schema, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("schema directory: not a directory: %s", dir)
	}

	files, err := FindCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoSchemaFiles)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("%s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	return Build(value)
}

// CompileString compiles schema source held in memory.
func CompileString(src, filename string) (*ir.Schema, error) {
	value := cuecontext.New().CompileString(src, cue.Filename(filename))
	return Build(value)
}

// Build compiles v and validates the schema.
func Build(v cue.Value) (*ir.Schema, error) {
	schema, err := CompileSchema(v)
	if err != nil {
		return nil, err
	}
	if errs := Validate(schema); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return schema, nil
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
