package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/dynq/internal/testutil"
)

// project is a temporary working directory holding the Orders fixture
// and a config file pointing at it.
type project struct {
	dir    string
	config string
}

// newProject writes schema/orders.cue, data.yaml and dynq.toml. extra is
// appended to the config.
func newProject(t *testing.T, backend, extra string) *project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "schema"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema", "orders.cue"), []byte(testutil.OrdersSchemaSource), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.yaml"), testutil.OrdersDataSource, 0644))

	cfg := fmt.Sprintf("schema_dir = \"schema\"\ndata_file = \"data.yaml\"\nbackend = %q\n\n[output]\ncolor = \"never\"\n%s", backend, extra)
	path := filepath.Join(dir, "dynq.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0644))
	return &project{dir: dir, config: path}
}

// request writes a request file and returns its path.
func (p *project) request(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(p.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// run executes the root command with the project's config.
func (p *project) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return execute(t, append([]string{"--config", p.config}, args...)...)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// backends lists the backends every request command is checked on.
var backends = []string{"memory", "sqlite"}
